// internal/bridge/types.go
package bridge

import (
	"time"
)

// Status represents the terminal outcome of a bridge request
type Status string

const (
	StatusSuccess         Status = "success"
	StatusQueueFull       Status = "queue_full"
	StatusSendFailed      Status = "send_failed"
	StatusTimeout         Status = "timeout"
	StatusInvalidResponse Status = "invalid_response"
	StatusUnknownError    Status = "unknown_error"
)

// Request represents a command queued for transmission to the bridge
type Request struct {
	Token          string
	DeviceClass    string
	Channel        string
	Payload        []byte
	BaudRate       int
	ResponseLength int
	Timeout        time.Duration

	// Frame is the fully serialized wire line, CRC appended, newline terminated.
	// Built once at submit time so the dispatcher only writes bytes.
	Frame []byte
}

// Response represents the resolved outcome of a request. Exactly one
// Response is produced per token, by whichever resolution path fires first
// (reader, sweeper, or dispatcher).
type Response struct {
	Token       string    `json:"token"`
	DeviceClass string    `json:"device_class"`
	Data        []byte    `json:"data,omitempty"`
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsError reports whether the response carries anything other than success
func (r *Response) IsError() bool {
	return r.Status != StatusSuccess
}

// SubmitOptions carries per-request overrides for Submit
type SubmitOptions struct {
	BaudRate       int           // default from config when 0
	ResponseLength int           // expected response byte count, 0 when unknown
	Timeout        time.Duration // default from config when 0
}

// Stats is a point-in-time snapshot of client health, reported
// periodically by the health monitor and served by the HTTP layer
type Stats struct {
	Connected     bool   `json:"connected"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Pending       int    `json:"pending"`
	Sent          uint64 `json:"sent"`
	Succeeded     uint64 `json:"succeeded"`
	TimedOut      uint64 `json:"timed_out"`
	Failed        uint64 `json:"failed"`
}
