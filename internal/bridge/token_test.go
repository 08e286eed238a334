// internal/bridge/token_test.go
package bridge

import (
	"strings"
	"sync"
	"testing"
)

func TestNewTokenFormat(t *testing.T) {
	payload := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0xc4, 0x0b}
	token := NewToken("EC", "/dev/ttyUSB0", payload)

	parts := strings.Split(token, "_")
	if len(parts) != 5 {
		t.Fatalf("token %q has %d parts, want 5", token, len(parts))
	}
	if parts[0] != "ttyUSB0" {
		t.Errorf("channel part = %q, want ttyUSB0", parts[0])
	}
	if parts[1] != "EC" {
		t.Errorf("device class part = %q, want EC", parts[1])
	}
	if parts[2] != "010300000002" {
		t.Errorf("payload digest = %q, want 010300000002", parts[2])
	}
	if len(parts[3]) != 14 {
		t.Errorf("timestamp part = %q, want 14 digits", parts[3])
	}
	if len(parts[4]) != suffixLen {
		t.Errorf("suffix length = %d, want %d", len(parts[4]), suffixLen)
	}
}

func TestNewTokenShortPayload(t *testing.T) {
	token := NewToken("Relay", "/dev/ttyAMA2", []byte{0xfe})
	if parts := strings.Split(token, "_"); parts[2] != "fe" {
		t.Errorf("payload digest = %q, want fe", parts[2])
	}
}

func TestNewTokenConcurrentUniqueness(t *testing.T) {
	// Identical command, channel and second; distinctness rests entirely
	// on the random suffix.
	const n = 100
	payload := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}

	var mu sync.Mutex
	tokens := make(map[string]struct{}, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := NewToken("pH", "/dev/ttyUSB0", payload)
			mu.Lock()
			tokens[token] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(tokens) != n {
		t.Errorf("got %d distinct tokens out of %d", len(tokens), n)
	}
}

func TestChannelLeaf(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{"/dev/ttyUSB0", "ttyUSB0"},
		{"/dev/serial/by-id/usb-0001", "usb-0001"},
		{"ttyAMA1", "ttyAMA1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ChannelLeaf(tt.channel); got != tt.want {
			t.Errorf("ChannelLeaf(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

func TestTokenChannel(t *testing.T) {
	token := NewToken("THC", "/dev/ttyUSB1", []byte{0x01})
	if got := TokenChannel(token); got != "ttyUSB1" {
		t.Errorf("TokenChannel(%q) = %q, want ttyUSB1", token, got)
	}
	if got := TokenChannel("noseparator"); got != "noseparator" {
		t.Errorf("TokenChannel without separator = %q", got)
	}
}
