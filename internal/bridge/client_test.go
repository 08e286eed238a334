// internal/bridge/client_test.go
package bridge

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeBridge is a loopback stand-in for the remote bridge process. It
// accepts connections, reads frame lines, and answers with whatever the
// handler returns (empty string means swallow the frame).
type fakeBridge struct {
	ln      net.Listener
	handler func(fields []string) string
}

func newFakeBridge(t *testing.T, handler func(fields []string) string) *fakeBridge {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	fb := &fakeBridge{ln: ln, handler: handler}
	go fb.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return fb
}

func (fb *fakeBridge) port() int {
	return fb.ln.Addr().(*net.TCPAddr).Port
}

func (fb *fakeBridge) acceptLoop() {
	for {
		conn, err := fb.ln.Accept()
		if err != nil {
			return
		}
		go fb.serve(conn)
	}
}

func (fb *fakeBridge) serve(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply := fb.handler(strings.Split(scanner.Text(), ":"))
		if reply == "" {
			continue
		}
		conn.Write([]byte(reply + "\n"))
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.CommandInterval = time.Millisecond
	cfg.DefaultTimeout = 250 * time.Millisecond
	cfg.SweepInterval = 20 * time.Millisecond
	cfg.SweepGrace = 10 * time.Millisecond
	cfg.ReadPollInterval = 5 * time.Millisecond
	cfg.WatchdogInterval = 50 * time.Millisecond
	cfg.ReconnectAttempts = 1
	cfg.ReconnectBackoff = 10 * time.Millisecond
	cfg.ReconnectBackoffMax = 10 * time.Millisecond
	return cfg
}

func startClient(t *testing.T, cfg *Config, fb *fakeBridge) *Client {
	t.Helper()

	c := NewClient(cfg, zap.NewNop())
	t.Cleanup(c.Stop)

	if fb != nil {
		if err := c.Connect("127.0.0.1", fb.port()); err != nil {
			t.Fatalf("failed to connect to fake bridge: %v", err)
		}
	}
	return c
}

func TestClientReadHoldingRegisters(t *testing.T) {
	fb := newFakeBridge(t, func(fields []string) string {
		// unit 01, func 03, 4 data bytes: 0x007B, 0x0271
		return fields[0] + ":010304007b0271"
	})
	c := startClient(t, testConfig(), fb)

	result := c.ReadHoldingRegisters("EC", "/dev/ttyUSB0", 0x01, 0x0000, 2, SubmitOptions{Timeout: 2 * time.Second})
	if result.IsError() {
		t.Fatalf("read failed: %v", result.Err)
	}
	if len(result.Registers) != 2 || result.Registers[0] != 123 || result.Registers[1] != 625 {
		t.Errorf("registers = %v, want [123 625]", result.Registers)
	}
}

func TestClientReadCoils(t *testing.T) {
	fb := newFakeBridge(t, func(fields []string) string {
		return fields[0] + ":01010105"
	})
	c := startClient(t, testConfig(), fb)

	result := c.ReadCoils("Relay", "/dev/ttyAMA2", 0x01, 0x0000, 3, SubmitOptions{Timeout: 2 * time.Second})
	if result.IsError() {
		t.Fatalf("read failed: %v", result.Err)
	}
	want := []bool{true, false, true}
	for i, bit := range want {
		if result.Bits[i] != bit {
			t.Fatalf("bits = %v, want %v", result.Bits, want)
		}
	}
}

func TestClientServerError(t *testing.T) {
	fb := newFakeBridge(t, func(fields []string) string {
		return fields[0] + ":ERROR:device_error:1724500000"
	})
	c := startClient(t, testConfig(), fb)

	result := c.WriteRegister("pH", "/dev/ttyUSB1", 0x02, 0x0010, 500, SubmitOptions{Timeout: 2 * time.Second})
	if !result.IsError() {
		t.Fatal("write succeeded against an erroring bridge")
	}
	if !strings.Contains(result.Err.Error(), "device_error") {
		t.Errorf("error = %v, want the server code device_error", result.Err)
	}
}

func TestClientSubmitEvent(t *testing.T) {
	fb := newFakeBridge(t, func(fields []string) string {
		return fields[0] + ":0106001001f4"
	})
	c := startClient(t, testConfig(), fb)

	events := c.Events().Subscribe(EventResponse)
	token := c.Submit("THC", "/dev/ttyUSB0", []byte{0x01, 0x06, 0x00, 0x10, 0x01, 0xf4}, SubmitOptions{Timeout: 2 * time.Second})

	select {
	case event := <-events:
		if event.Response == nil || event.Response.Token != token {
			t.Fatalf("event = %+v, want response for token %s", event, token)
		}
		if event.Response.Status != StatusSuccess {
			t.Errorf("status = %s, want success", event.Response.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response event within 2s")
	}
}

func TestClientSweepTimeout(t *testing.T) {
	// The bridge swallows every frame; only the sweeper can resolve.
	fb := newFakeBridge(t, func(fields []string) string { return "" })
	c := startClient(t, testConfig(), fb)

	_, done := c.submit("EC", "/dev/ttyUSB0", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, SubmitOptions{})

	select {
	case resp := <-done:
		if resp.Status != StatusTimeout {
			t.Errorf("status = %s, want timeout", resp.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never resolved the abandoned request")
	}
}

func TestClientSendFailedWithoutEndpoint(t *testing.T) {
	c := startClient(t, testConfig(), nil)

	// A failed send must not wedge the dispatcher; the request queued
	// behind it has to resolve too.
	_, first := c.submit("EC", "/dev/ttyUSB0", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, SubmitOptions{})
	_, second := c.submit("pH", "/dev/ttyUSB1", []byte{0x02, 0x03, 0x00, 0x00, 0x00, 0x01}, SubmitOptions{})

	for name, done := range map[string]<-chan *Response{"first": first, "second": second} {
		select {
		case resp := <-done:
			if resp.Status != StatusSendFailed {
				t.Errorf("%s request status = %s, want send_failed", name, resp.Status)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s request against an unconfigured client never resolved", name)
		}
	}
}

func TestClientQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	c := NewClient(cfg, zap.NewNop())

	// With the workers stopped nothing drains the queue, so the second
	// submit must be rejected at the door.
	c.Stop()

	_, first := c.submit("EC", "/dev/ttyUSB0", []byte{0x01}, SubmitOptions{})
	_, second := c.submit("EC", "/dev/ttyUSB0", []byte{0x02}, SubmitOptions{})

	select {
	case <-first:
		t.Error("first request resolved; it should sit in the queue")
	default:
	}

	select {
	case resp := <-second:
		if resp.Status != StatusQueueFull {
			t.Errorf("status = %s, want queue_full", resp.Status)
		}
	default:
		t.Fatal("overflow submit did not resolve immediately")
	}
}

func TestClientUnknownTokenTolerated(t *testing.T) {
	c := startClient(t, testConfig(), nil)

	// Must be dropped without touching any pending state.
	c.handleLine("ttyUSB0_EC_0103_20260101000000_ab12:0102")

	if c.registry.len() != 0 {
		t.Errorf("registry length = %d after unknown response, want 0", c.registry.len())
	}
}

func TestClientStats(t *testing.T) {
	fb := newFakeBridge(t, func(fields []string) string {
		return fields[0] + ":01030200c8aaaa"
	})
	c := startClient(t, testConfig(), fb)

	result := c.ReadHoldingRegisters("EC", "/dev/ttyUSB0", 0x01, 0x0000, 1, SubmitOptions{Timeout: 2 * time.Second})
	if result.IsError() {
		t.Fatalf("read failed: %v", result.Err)
	}

	stats := c.Stats()
	if !stats.Connected {
		t.Error("stats report disconnected after a successful round trip")
	}
	if stats.Sent == 0 || stats.Succeeded == 0 {
		t.Errorf("stats = %+v, want sent and succeeded counted", stats)
	}
	if stats.Pending != 0 {
		t.Errorf("pending = %d after resolution, want 0", stats.Pending)
	}
}

func TestClientStopDiscardsQueued(t *testing.T) {
	frames := make(chan string, 8)
	fb := newFakeBridge(t, func(fields []string) string {
		frames <- fields[0]
		return ""
	})

	// A long spacing interval keeps everything after the first request
	// waiting inside the dispatcher when Stop arrives.
	cfg := testConfig()
	cfg.CommandInterval = 200 * time.Millisecond
	c := NewClient(cfg, zap.NewNop())
	if err := c.Connect("127.0.0.1", fb.port()); err != nil {
		t.Fatalf("failed to connect to fake bridge: %v", err)
	}

	sentToken, _ := c.submit("EC", "/dev/ttyUSB0", []byte{0x01}, SubmitOptions{})
	select {
	case token := <-frames:
		if token != sentToken {
			t.Fatalf("bridge received token %s, want %s", token, sentToken)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first frame never reached the bridge")
	}

	_, second := c.submit("EC", "/dev/ttyUSB0", []byte{0x02}, SubmitOptions{})
	_, third := c.submit("EC", "/dev/ttyUSB0", []byte{0x03}, SubmitOptions{})

	c.Stop()

	if depth := len(c.queue); depth != 0 {
		t.Errorf("queue depth = %d after Stop, want 0", depth)
	}
	for name, done := range map[string]<-chan *Response{"second": second, "third": third} {
		select {
		case resp := <-done:
			t.Errorf("%s request resolved with %s after Stop, want discarded without resolution", name, resp.Status)
		default:
		}
	}
	select {
	case token := <-frames:
		t.Errorf("frame %s reached the bridge after Stop", token)
	default:
	}
}

func TestClientReconnectBackoff(t *testing.T) {
	// A listener that is closed right away leaves a port that refuses
	// connections immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := testConfig()
	cfg.ReconnectAttempts = 2
	cfg.ReconnectBackoff = 150 * time.Millisecond
	cfg.ReconnectBackoffMax = 150 * time.Millisecond
	c := NewClient(cfg, zap.NewNop())
	t.Cleanup(c.Stop)
	c.conn.setTarget("127.0.0.1", port)

	start := time.Now()
	if c.reconnect() {
		t.Fatal("reconnect succeeded against a closed port")
	}
	elapsed := time.Since(start)

	// Two attempts sleep the backoff once, between them, not after the
	// final failure.
	if elapsed >= 300*time.Millisecond {
		t.Errorf("reconnect took %v, want roughly one 150ms backoff", elapsed)
	}
}

func TestClientStopIdempotent(t *testing.T) {
	c := NewClient(testConfig(), zap.NewNop())
	c.Stop()
	c.Stop()
}
