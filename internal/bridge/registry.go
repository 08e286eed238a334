// internal/bridge/registry.go
package bridge

import (
	"sync"
	"time"
)

// pendingRequest is the registry's record of an in-flight request.
// sentAt stays zero while the request is still queued and is stamped
// exactly once, when the dispatcher writes the frame to the socket.
type pendingRequest struct {
	token          string
	deviceClass    string
	sentAt         time.Time
	responseLength int
	timeout        time.Duration
	queuedAt       time.Time

	// done receives the single terminal Response. Buffered so resolution
	// never blocks on an absent waiter.
	done chan *Response
}

// registry is the single source of truth for requests in flight, shared
// by the dispatcher, the reader and the sweeper. All mutation happens
// under its mutex; an entry is deleted in the same critical section that
// claims the right to resolve it, which makes resolution exactly-once.
type registry struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*pendingRequest)}
}

// add registers a new pending entry and returns its completion channel
func (r *registry) add(req *Request) <-chan *Response {
	entry := &pendingRequest{
		token:          req.Token,
		deviceClass:    req.DeviceClass,
		responseLength: req.ResponseLength,
		timeout:        req.Timeout,
		queuedAt:       time.Now(),
		done:           make(chan *Response, 1),
	}

	r.mu.Lock()
	r.entries[req.Token] = entry
	r.mu.Unlock()

	return entry.done
}

// markSent stamps the entry's send time; the timeout deadline starts
// here, not at queue insertion
func (r *registry) markSent(token string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok {
		return false
	}
	if entry.sentAt.IsZero() {
		entry.sentAt = at
	}
	return true
}

// take removes and returns the entry for token, claiming the exclusive
// right to resolve it. A nil return means the token is unknown or was
// already resolved by another path; the caller must discard its response.
func (r *registry) take(token string) *pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok {
		return nil
	}
	delete(r.entries, token)
	return entry
}

// expired collects entries whose send time is stamped and whose age
// exceeds their timeout plus grace. Entries never sent are left alone;
// they are bounded by the facade's wait deadline instead.
func (r *registry) expired(now time.Time, grace time.Duration) []*pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*pendingRequest
	for _, entry := range r.entries {
		if entry.sentAt.IsZero() {
			continue
		}
		if now.Sub(entry.sentAt) > entry.timeout+grace {
			out = append(out, entry)
		}
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
