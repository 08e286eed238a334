// internal/bridge/registry_test.go
package bridge

import (
	"testing"
	"time"
)

func testRequest(token string) *Request {
	return &Request{
		Token:       token,
		DeviceClass: "EC",
		Channel:     "/dev/ttyUSB0",
		Timeout:     time.Second,
	}
}

func TestRegistryTakeExactlyOnce(t *testing.T) {
	r := newRegistry()
	r.add(testRequest("tok1"))

	if r.take("tok1") == nil {
		t.Fatal("first take returned nil for a registered token")
	}
	if r.take("tok1") != nil {
		t.Error("second take returned an entry; resolution must be exactly once")
	}
	if r.len() != 0 {
		t.Errorf("registry length = %d after take, want 0", r.len())
	}
}

func TestRegistryTakeUnknown(t *testing.T) {
	r := newRegistry()
	r.add(testRequest("tok1"))

	if r.take("missing") != nil {
		t.Error("take returned an entry for an unknown token")
	}
	if r.len() != 1 {
		t.Errorf("registry length = %d, want 1; unknown take must not mutate state", r.len())
	}
}

func TestRegistryMarkSentOnce(t *testing.T) {
	r := newRegistry()
	r.add(testRequest("tok1"))

	first := time.Now()
	if !r.markSent("tok1", first) {
		t.Fatal("markSent returned false for a registered token")
	}
	r.markSent("tok1", first.Add(time.Hour))

	entry := r.take("tok1")
	if !entry.sentAt.Equal(first) {
		t.Errorf("sentAt = %v, want first stamp %v; send time must never move", entry.sentAt, first)
	}

	if r.markSent("missing", time.Now()) {
		t.Error("markSent returned true for an unknown token")
	}
}

func TestRegistryExpired(t *testing.T) {
	r := newRegistry()
	grace := 500 * time.Millisecond
	now := time.Now()

	// Sent long ago: expired.
	r.add(testRequest("old"))
	r.markSent("old", now.Add(-2*time.Second))

	// Sent recently: not expired.
	r.add(testRequest("fresh"))
	r.markSent("fresh", now)

	// Never sent: not subject to age-based expiry.
	r.add(testRequest("queued"))

	expired := r.expired(now, grace)
	if len(expired) != 1 || expired[0].token != "old" {
		t.Fatalf("expired = %v, want exactly the old entry", tokensOf(expired))
	}
}

func TestRegistryDoneBuffered(t *testing.T) {
	r := newRegistry()
	done := r.add(testRequest("tok1"))

	entry := r.take("tok1")
	// Must not block even with nobody receiving yet.
	entry.done <- &Response{Token: "tok1", Status: StatusTimeout}

	select {
	case resp := <-done:
		if resp.Status != StatusTimeout {
			t.Errorf("status = %s, want timeout", resp.Status)
		}
	default:
		t.Error("done channel empty after resolution")
	}
}

func tokensOf(entries []*pendingRequest) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.token
	}
	return out
}
