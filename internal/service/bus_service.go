// internal/service/bus_service.go
package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bridge-service/internal/bridge"
	"bridge-service/internal/config"
	"bridge-service/internal/model"
	"bridge-service/internal/utils"
)

// recentOperationLimit bounds the in-memory operation history
const recentOperationLimit = 100

// BusService wraps the bridge client with operation tracking. Every
// command issued through the HTTP layer gets an operation ID, a log
// trail, and a slot in the recent-operations ring.
type BusService struct {
	client *bridge.Client
	config *config.Config
	logger *utils.ServiceLogger

	mu     sync.Mutex
	recent []*model.BusOperation
	stats  model.OperationStats
}

// NewBusService creates a new bus service instance
func NewBusService(client *bridge.Client, cfg *config.Config, logger *zap.Logger) *BusService {
	return &BusService{
		client: client,
		config: cfg,
		logger: utils.NewServiceLogger(logger, "bus-service"),
	}
}

// OperationError carries the bridge status alongside the failure so the
// HTTP layer can map it to a meaningful response code
type OperationError struct {
	Status bridge.Status
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Status, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ReadRegistersRequest describes a holding-register read
type ReadRegistersRequest struct {
	DeviceClass string
	Channel     string
	Unit        byte
	Address     uint16
	Count       uint16
	BaudRate    int
	Timeout     time.Duration
}

// ReadRegistersResult is the outcome of a holding-register read
type ReadRegistersResult struct {
	OperationID uuid.UUID     `json:"operation_id"`
	Token       string        `json:"token"`
	Registers   []uint16      `json:"registers"`
	Duration    time.Duration `json:"duration_ns"`
}

// ReadCoilsRequest describes a coil read
type ReadCoilsRequest struct {
	DeviceClass string
	Channel     string
	Unit        byte
	Address     uint16
	Count       uint16
	BaudRate    int
	Timeout     time.Duration
}

// ReadCoilsResult is the outcome of a coil read
type ReadCoilsResult struct {
	OperationID uuid.UUID     `json:"operation_id"`
	Token       string        `json:"token"`
	Coils       []bool        `json:"coils"`
	Duration    time.Duration `json:"duration_ns"`
}

// WriteRegisterRequest describes a single-register write
type WriteRegisterRequest struct {
	DeviceClass string
	Channel     string
	Unit        byte
	Address     uint16
	Value       uint16
	BaudRate    int
	Timeout     time.Duration
}

// WriteRegistersRequest describes a multi-register write
type WriteRegistersRequest struct {
	DeviceClass string
	Channel     string
	Unit        byte
	Address     uint16
	Values      []uint16
	BaudRate    int
	Timeout     time.Duration
}

// WriteResult is the outcome of a register write
type WriteResult struct {
	OperationID uuid.UUID     `json:"operation_id"`
	Token       string        `json:"token"`
	Duration    time.Duration `json:"duration_ns"`
}

// RawCommandRequest describes a fire-and-forget raw command
type RawCommandRequest struct {
	DeviceClass    string
	Channel        string
	Payload        []byte
	BaudRate       int
	ResponseLength int
	Timeout        time.Duration
}

// RawCommandResult acknowledges a queued raw command; its outcome
// arrives on the event stream
type RawCommandResult struct {
	OperationID uuid.UUID `json:"operation_id"`
	Token       string    `json:"token"`
}

// ReadHoldingRegisters reads 16-bit registers from a device on the bus
func (s *BusService) ReadHoldingRegisters(req *ReadRegistersRequest) (*ReadRegistersResult, error) {
	opID := uuid.New()
	opLogger := utils.NewOperationLogger(s.logger.Logger, string(model.OperationTypeReadRegisters), opID.String())
	opLogger.Start(
		zap.String("device_class", req.DeviceClass),
		zap.String("channel", req.Channel),
		zap.Uint16("address", req.Address),
		zap.Uint16("count", req.Count),
	)

	start := time.Now()
	result := s.client.ReadHoldingRegisters(req.DeviceClass, req.Channel, req.Unit, req.Address, req.Count, bridge.SubmitOptions{
		BaudRate: req.BaudRate,
		Timeout:  req.Timeout,
	})
	duration := time.Since(start)

	s.record(opID, model.OperationTypeReadRegisters, req.DeviceClass, req.Channel, result.Token, result.Status, result.Err, duration)

	if result.IsError() {
		opLogger.Error(result.Err)
		return nil, &OperationError{Status: result.Status, Err: result.Err}
	}

	opLogger.Success(zap.String("token", result.Token))
	return &ReadRegistersResult{
		OperationID: opID,
		Token:       result.Token,
		Registers:   result.Registers,
		Duration:    duration,
	}, nil
}

// ReadCoils reads single-bit coils from a device on the bus
func (s *BusService) ReadCoils(req *ReadCoilsRequest) (*ReadCoilsResult, error) {
	opID := uuid.New()
	opLogger := utils.NewOperationLogger(s.logger.Logger, string(model.OperationTypeReadCoils), opID.String())
	opLogger.Start(
		zap.String("device_class", req.DeviceClass),
		zap.String("channel", req.Channel),
		zap.Uint16("address", req.Address),
		zap.Uint16("count", req.Count),
	)

	start := time.Now()
	result := s.client.ReadCoils(req.DeviceClass, req.Channel, req.Unit, req.Address, req.Count, bridge.SubmitOptions{
		BaudRate: req.BaudRate,
		Timeout:  req.Timeout,
	})
	duration := time.Since(start)

	s.record(opID, model.OperationTypeReadCoils, req.DeviceClass, req.Channel, result.Token, result.Status, result.Err, duration)

	if result.IsError() {
		opLogger.Error(result.Err)
		return nil, &OperationError{Status: result.Status, Err: result.Err}
	}

	opLogger.Success(zap.String("token", result.Token))
	return &ReadCoilsResult{
		OperationID: opID,
		Token:       result.Token,
		Coils:       result.Bits,
		Duration:    duration,
	}, nil
}

// WriteRegister writes one holding register on a device
func (s *BusService) WriteRegister(req *WriteRegisterRequest) (*WriteResult, error) {
	opID := uuid.New()
	opLogger := utils.NewOperationLogger(s.logger.Logger, string(model.OperationTypeWriteRegister), opID.String())
	opLogger.Start(
		zap.String("device_class", req.DeviceClass),
		zap.String("channel", req.Channel),
		zap.Uint16("address", req.Address),
		zap.Uint16("value", req.Value),
	)

	start := time.Now()
	result := s.client.WriteRegister(req.DeviceClass, req.Channel, req.Unit, req.Address, req.Value, bridge.SubmitOptions{
		BaudRate: req.BaudRate,
		Timeout:  req.Timeout,
	})
	duration := time.Since(start)

	s.record(opID, model.OperationTypeWriteRegister, req.DeviceClass, req.Channel, result.Token, result.Status, result.Err, duration)

	if result.IsError() {
		opLogger.Error(result.Err)
		return nil, &OperationError{Status: result.Status, Err: result.Err}
	}

	opLogger.Success(zap.String("token", result.Token))
	return &WriteResult{OperationID: opID, Token: result.Token, Duration: duration}, nil
}

// WriteRegisters writes consecutive holding registers on a device
func (s *BusService) WriteRegisters(req *WriteRegistersRequest) (*WriteResult, error) {
	opID := uuid.New()
	opLogger := utils.NewOperationLogger(s.logger.Logger, string(model.OperationTypeWriteRegisters), opID.String())
	opLogger.Start(
		zap.String("device_class", req.DeviceClass),
		zap.String("channel", req.Channel),
		zap.Uint16("address", req.Address),
		zap.Int("count", len(req.Values)),
	)

	start := time.Now()
	result := s.client.WriteRegisters(req.DeviceClass, req.Channel, req.Unit, req.Address, req.Values, bridge.SubmitOptions{
		BaudRate: req.BaudRate,
		Timeout:  req.Timeout,
	})
	duration := time.Since(start)

	s.record(opID, model.OperationTypeWriteRegisters, req.DeviceClass, req.Channel, result.Token, result.Status, result.Err, duration)

	if result.IsError() {
		opLogger.Error(result.Err)
		return nil, &OperationError{Status: result.Status, Err: result.Err}
	}

	opLogger.Success(zap.String("token", result.Token))
	return &WriteResult{OperationID: opID, Token: result.Token, Duration: duration}, nil
}

// SubmitRaw queues a raw command without waiting for its outcome. The
// caller correlates the eventual result by token on the event stream.
func (s *BusService) SubmitRaw(req *RawCommandRequest) *RawCommandResult {
	opID := uuid.New()
	token := s.client.Submit(req.DeviceClass, req.Channel, req.Payload, bridge.SubmitOptions{
		BaudRate:       req.BaudRate,
		ResponseLength: req.ResponseLength,
		Timeout:        req.Timeout,
	})

	s.logger.Info("Raw command queued",
		zap.String("operation_id", opID.String()),
		zap.String("token", token),
		zap.String("device_class", req.DeviceClass),
	)

	return &RawCommandResult{OperationID: opID, Token: token}
}

// Operations returns the recent operations, newest first
func (s *BusService) Operations() []*model.BusOperation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.BusOperation, len(s.recent))
	for i, op := range s.recent {
		out[len(s.recent)-1-i] = op
	}
	return out
}

// ServiceStats combines bridge health with operation aggregates
type ServiceStats struct {
	Bridge     bridge.Stats         `json:"bridge"`
	Operations model.OperationStats `json:"operations"`
}

// Stats returns a snapshot of service and bridge health
func (s *BusService) Stats() *ServiceStats {
	s.mu.Lock()
	opStats := s.stats
	s.mu.Unlock()

	return &ServiceStats{
		Bridge:     s.client.Stats(),
		Operations: opStats,
	}
}

// record appends an operation to the bounded history and updates the
// aggregate counters
func (s *BusService) record(opID uuid.UUID, opType model.OperationType, deviceClass, channel, token string, status bridge.Status, err error, duration time.Duration) {
	op := &model.BusOperation{
		ID:          opID,
		Type:        opType,
		DeviceClass: deviceClass,
		Channel:     channel,
		Token:       token,
		Status:      status,
		Duration:    duration,
		CreatedAt:   time.Now(),
	}
	if err != nil {
		op.Error = err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, op)
	if len(s.recent) > recentOperationLimit {
		s.recent = s.recent[1:]
	}

	s.stats.Total++
	switch status {
	case bridge.StatusSuccess:
		s.stats.Succeeded++
	case bridge.StatusTimeout:
		s.stats.TimedOut++
	default:
		s.stats.Failed++
	}
}
