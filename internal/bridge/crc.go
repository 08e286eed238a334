// internal/bridge/crc.go
package bridge

import (
	"github.com/sigurn/crc16"
)

// crcTable is the CRC-16/MODBUS parameter set (poly 0xA001 reflected,
// init 0xFFFF), shared by every frame the client emits.
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the CRC-16/MODBUS value of data
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// ChecksumBytes returns the checksum as a two byte trailer. highFirst
// selects the wire order used by the bridge protocol: the low-order half
// of the register transmitted first (the conventional Modbus RTU order),
// which the bridge calls "high byte first".
func ChecksumBytes(data []byte, highFirst bool) []byte {
	crc := Checksum(data)
	lo := byte(crc & 0xFF)
	hi := byte(crc >> 8)
	if highFirst {
		return []byte{lo, hi}
	}
	return []byte{hi, lo}
}

// AppendChecksum returns payload with its CRC trailer appended in the
// default wire order
func AppendChecksum(payload []byte) []byte {
	framed := make([]byte, 0, len(payload)+2)
	framed = append(framed, payload...)
	return append(framed, ChecksumBytes(payload, true)...)
}

// VerifyChecksum reports whether frame ends with a valid CRC trailer over
// the preceding bytes
func VerifyChecksum(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	body, trailer := frame[:len(frame)-2], frame[len(frame)-2:]
	crc := Checksum(body)
	return trailer[0] == byte(crc&0xFF) && trailer[1] == byte(crc>>8)
}
