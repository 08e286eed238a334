// internal/bridge/modbus.go
package bridge

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Modbus function codes used by the typed helpers
const (
	funcReadCoils            = 0x01
	funcReadHoldingRegisters = 0x03
	funcWriteSingleRegister  = 0x06
	funcWriteMultipleRegs    = 0x10
)

// responseHeaderLen covers slave address, function code and byte count
const responseHeaderLen = 3

// WriteResult is the typed outcome of a register write
type WriteResult struct {
	Token  string
	Status Status
	Err    error
}

// IsError reports whether the write failed
func (r *WriteResult) IsError() bool { return r.Err != nil }

// RegisterResult is the typed outcome of a holding-register read
type RegisterResult struct {
	Token     string
	Status    Status
	Registers []uint16
	Err       error
}

// IsError reports whether the read failed
func (r *RegisterResult) IsError() bool { return r.Err != nil }

// CoilResult is the typed outcome of a coil read
type CoilResult struct {
	Token  string
	Status Status
	Bits   []bool
	Err    error
}

// IsError reports whether the read failed
func (r *CoilResult) IsError() bool { return r.Err != nil }

// WriteRegister writes a single holding register and blocks until the
// bridge answers or the wait deadline passes
func (c *Client) WriteRegister(deviceClass, channel string, unit byte, address, value uint16, opts SubmitOptions) *WriteResult {
	payload := []byte{
		unit, funcWriteSingleRegister,
		byte(address >> 8), byte(address),
		byte(value >> 8), byte(value),
	}
	opts.ResponseLength = 8

	token, resp := c.waitFor(deviceClass, channel, payload, opts)
	return &WriteResult{Token: token, Status: resp.Status, Err: responseError(resp)}
}

// WriteRegisters writes consecutive holding registers starting at address
func (c *Client) WriteRegisters(deviceClass, channel string, unit byte, address uint16, values []uint16, opts SubmitOptions) *WriteResult {
	payload := []byte{
		unit, funcWriteMultipleRegs,
		byte(address >> 8), byte(address),
		byte(len(values) >> 8), byte(len(values)),
		byte(len(values) * 2),
	}
	for _, v := range values {
		payload = append(payload, byte(v>>8), byte(v))
	}
	opts.ResponseLength = 8

	token, resp := c.waitFor(deviceClass, channel, payload, opts)
	return &WriteResult{Token: token, Status: resp.Status, Err: responseError(resp)}
}

// ReadHoldingRegisters reads count 16-bit registers starting at address
func (c *Client) ReadHoldingRegisters(deviceClass, channel string, unit byte, address, count uint16, opts SubmitOptions) *RegisterResult {
	payload := []byte{
		unit, funcReadHoldingRegisters,
		byte(address >> 8), byte(address),
		byte(count >> 8), byte(count),
	}
	opts.ResponseLength = responseHeaderLen + int(count)*2 + 2

	token, resp := c.waitFor(deviceClass, channel, payload, opts)
	if err := responseError(resp); err != nil {
		return &RegisterResult{Token: token, Status: resp.Status, Err: err}
	}

	registers, err := decodeRegisters(resp.Data, int(count))
	status := StatusSuccess
	if err != nil {
		status = StatusInvalidResponse
	}
	return &RegisterResult{Token: token, Status: status, Registers: registers, Err: err}
}

// ReadCoils reads count single-bit coils starting at address
func (c *Client) ReadCoils(deviceClass, channel string, unit byte, address, count uint16, opts SubmitOptions) *CoilResult {
	payload := []byte{
		unit, funcReadCoils,
		byte(address >> 8), byte(address),
		byte(count >> 8), byte(count),
	}
	opts.ResponseLength = responseHeaderLen + int(count+7)/8 + 2

	token, resp := c.waitFor(deviceClass, channel, payload, opts)
	if err := responseError(resp); err != nil {
		return &CoilResult{Token: token, Status: resp.Status, Err: err}
	}

	bits, err := decodeCoils(resp.Data, int(count))
	status := StatusSuccess
	if err != nil {
		status = StatusInvalidResponse
	}
	return &CoilResult{Token: token, Status: status, Bits: bits, Err: err}
}

// waitFor submits a request and blocks on its one-shot completion
// channel. If the wait deadline passes first a synthetic timeout response
// is returned; a result arriving after that feeds only the event stream.
func (c *Client) waitFor(deviceClass, channel string, payload []byte, opts SubmitOptions) (string, *Response) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.cfg.DefaultTimeout
	}
	deadline := timeout + c.cfg.SweepGrace + c.cfg.SweepInterval

	token, done := c.submit(deviceClass, channel, payload, opts)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case resp := <-done:
		return token, resp
	case <-timer.C:
		return token, &Response{Token: token, DeviceClass: deviceClass, Status: StatusTimeout, Timestamp: time.Now()}
	case <-c.stopCh:
		return token, &Response{Token: token, DeviceClass: deviceClass, Status: StatusSendFailed, Timestamp: time.Now()}
	}
}

// responseError folds a response status into an error for typed results
func responseError(resp *Response) error {
	if resp == nil {
		return fmt.Errorf("no response")
	}
	if resp.IsError() {
		return fmt.Errorf("bridge request failed: %s", resp.Status)
	}
	return nil
}

// decodeRegisters parses big-endian 16-bit values following the 3-byte
// response header
func decodeRegisters(data []byte, count int) ([]uint16, error) {
	need := responseHeaderLen + count*2
	if len(data) < need {
		return nil, fmt.Errorf("short register response: got %d bytes, need %d", len(data), need)
	}

	registers := make([]uint16, count)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(data[responseHeaderLen+i*2:])
	}
	return registers, nil
}

// decodeCoils extracts count bits LSB-first from the payload bytes
// following the 3-byte response header, ignoring trailing padding bits
func decodeCoils(data []byte, count int) ([]bool, error) {
	need := responseHeaderLen + (count+7)/8
	if len(data) < need {
		return nil, fmt.Errorf("short coil response: got %d bytes, need %d", len(data), need)
	}

	bits := make([]bool, count)
	for i := range bits {
		bits[i] = data[responseHeaderLen+i/8]&(1<<(i%8)) != 0
	}
	return bits, nil
}
