// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"

	"bridge-service/internal/bridge"
)

// OperationType represents the type of bus operation
type OperationType string

const (
	OperationTypeReadRegisters  OperationType = "READ_HOLDING_REGISTERS"
	OperationTypeReadCoils      OperationType = "READ_COILS"
	OperationTypeWriteRegister  OperationType = "WRITE_REGISTER"
	OperationTypeWriteRegisters OperationType = "WRITE_REGISTERS"
	OperationTypeRawCommand     OperationType = "RAW_COMMAND"
)

// BusOperation is the record kept for each command issued through the
// service layer. Records live in a bounded in-memory ring; the bridge
// itself is stateless by design.
type BusOperation struct {
	ID          uuid.UUID     `json:"id"`
	Type        OperationType `json:"type"`
	DeviceClass string        `json:"device_class"`
	Channel     string        `json:"channel"`
	Token       string        `json:"token"`
	Status      bridge.Status `json:"status"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	CreatedAt   time.Time     `json:"created_at"`
}

// IsError reports whether the operation ended in anything but success
func (op *BusOperation) IsError() bool {
	return op.Status != bridge.StatusSuccess
}

// OperationStats aggregates outcomes across recorded operations
type OperationStats struct {
	Total     uint64 `json:"total"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
}
