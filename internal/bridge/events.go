// internal/bridge/events.go
package bridge

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types published by the client
const (
	EventResponse     = "response"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// Event represents a client lifecycle or response event
type Event struct {
	Type      string    `json:"type"`
	Response  *Response `json:"response,omitempty"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter distributes client events to subscribers. Async Submit callers
// observe their results here; the WebSocket layer streams it outward.
// Slow subscribers are skipped rather than allowed to stall resolution.
type Emitter struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	events      chan Event
	stop        chan struct{}
	logger      *zap.Logger
}

// NewEmitter creates an emitter and starts its distribution loop
func NewEmitter(logger *zap.Logger) *Emitter {
	e := &Emitter{
		subscribers: make(map[string][]chan Event),
		events:      make(chan Event, 1000),
		stop:        make(chan struct{}),
		logger:      logger.With(zap.String("component", "emitter")),
	}
	go e.run()
	return e
}

func (e *Emitter) run() {
	for {
		select {
		case event := <-e.events:
			e.distribute(event)
		case <-e.stop:
			return
		}
	}
}

// Publish queues an event for distribution, dropping it if the emitter
// is saturated
func (e *Emitter) Publish(event Event) {
	select {
	case e.events <- event:
	case <-e.stop:
	default:
		e.logger.Warn("Event buffer full, dropping event", zap.String("event_type", event.Type))
	}
}

// Subscribe returns a channel receiving events of the given type
func (e *Emitter) Subscribe(eventType string) <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	subscriber := make(chan Event, 100)
	e.subscribers[eventType] = append(e.subscribers[eventType], subscriber)
	return subscriber
}

func (e *Emitter) distribute(event Event) {
	e.mu.RLock()
	subscribers := e.subscribers[event.Type]
	e.mu.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// subscriber is slow, skip
		}
	}
}

// Stop halts distribution; pending events are dropped
func (e *Emitter) Stop() {
	close(e.stop)
}
