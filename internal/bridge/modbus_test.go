// internal/bridge/modbus_test.go
package bridge

import (
	"reflect"
	"testing"
)

func TestDecodeRegisters(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		count   int
		want    []uint16
		wantErr bool
	}{
		{
			"two registers",
			[]byte{0x01, 0x03, 0x04, 0x00, 0x7B, 0x02, 0x71},
			2,
			[]uint16{123, 625},
			false,
		},
		{
			"single register with crc trailer",
			[]byte{0x01, 0x03, 0x02, 0x01, 0x90, 0xb9, 0xa4},
			1,
			[]uint16{400},
			false,
		},
		{
			"short response",
			[]byte{0x01, 0x03, 0x04, 0x00},
			2,
			nil,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRegisters(tt.data, tt.count)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeRegisters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeRegisters() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeCoils(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		count   int
		want    []bool
		wantErr bool
	}{
		{
			"three coils from one byte",
			[]byte{0x01, 0x01, 0x01, 0x05},
			3,
			[]bool{true, false, true},
			false,
		},
		{
			"count ignores padding bits",
			[]byte{0x01, 0x01, 0x01, 0xFF},
			2,
			[]bool{true, true},
			false,
		},
		{
			"nine coils across two bytes",
			[]byte{0x01, 0x01, 0x02, 0x01, 0x01},
			9,
			[]bool{true, false, false, false, false, false, false, false, true},
			false,
		},
		{
			"short response",
			[]byte{0x01, 0x01, 0x01},
			3,
			nil,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeCoils(tt.data, tt.count)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeCoils() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeCoils() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponseError(t *testing.T) {
	if err := responseError(&Response{Status: StatusSuccess}); err != nil {
		t.Errorf("responseError(success) = %v, want nil", err)
	}
	if err := responseError(&Response{Status: StatusTimeout}); err == nil {
		t.Error("responseError(timeout) = nil, want error")
	}
	if err := responseError(nil); err == nil {
		t.Error("responseError(nil) = nil, want error")
	}
}
