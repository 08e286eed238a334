// internal/bridge/crc_test.go
package bridge

import (
	"bytes"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"reference vector", []byte{0x01, 0x02, 0x03, 0x04, 0x05}, 0xbb2a},
		{"empty", nil, 0xffff},
		{"single byte", []byte{0x00}, 0x40bf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = %#04x, want %#04x", got, tt.want)
			}
		})
	}
}

func TestChecksumBytes(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05} // crc 0xbb2a

	if got := ChecksumBytes(data, true); !bytes.Equal(got, []byte{0x2a, 0xbb}) {
		t.Errorf("ChecksumBytes(high first) = %x, want 2abb", got)
	}
	if got := ChecksumBytes(data, false); !bytes.Equal(got, []byte{0xbb, 0x2a}) {
		t.Errorf("ChecksumBytes(low first) = %x, want bb2a", got)
	}
}

func TestAppendVerifyChecksum(t *testing.T) {
	payloads := [][]byte{
		{0x01, 0x03, 0x00, 0x00, 0x00, 0x02},
		{0xff},
		{},
	}

	for _, payload := range payloads {
		frame := AppendChecksum(payload)
		if len(frame) != len(payload)+2 {
			t.Fatalf("AppendChecksum() length = %d, want %d", len(frame), len(payload)+2)
		}
		if len(payload) > 0 && !VerifyChecksum(frame) {
			t.Errorf("VerifyChecksum(%x) = false, want true", frame)
		}
	}
}

func TestVerifyChecksumRejectsMutation(t *testing.T) {
	frame := AppendChecksum([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02})

	for i := range frame {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), frame...)
			mutated[i] ^= 1 << bit
			if VerifyChecksum(mutated) {
				t.Errorf("VerifyChecksum accepted frame with bit %d of byte %d flipped", bit, i)
			}
		}
	}
}

func TestVerifyChecksumShortFrame(t *testing.T) {
	if VerifyChecksum([]byte{0x01, 0x02}) {
		t.Error("VerifyChecksum accepted a frame too short to carry a trailer")
	}
}
