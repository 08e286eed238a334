// internal/service/bus_service_test.go
package service

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"bridge-service/internal/bridge"
	"bridge-service/internal/model"
)

func TestRecordRingBounded(t *testing.T) {
	s := &BusService{}

	for i := 0; i < recentOperationLimit+10; i++ {
		s.record(uuid.New(), model.OperationTypeReadRegisters, "EC", "/dev/ttyUSB0", "tok", bridge.StatusSuccess, nil, time.Millisecond)
	}

	if got := len(s.Operations()); got != recentOperationLimit {
		t.Errorf("history length = %d, want %d", got, recentOperationLimit)
	}
}

func TestRecordNewestFirst(t *testing.T) {
	s := &BusService{}

	first := uuid.New()
	second := uuid.New()
	s.record(first, model.OperationTypeWriteRegister, "EC", "/dev/ttyUSB0", "tok1", bridge.StatusSuccess, nil, time.Millisecond)
	s.record(second, model.OperationTypeWriteRegister, "EC", "/dev/ttyUSB0", "tok2", bridge.StatusTimeout, nil, time.Millisecond)

	ops := s.Operations()
	if len(ops) != 2 {
		t.Fatalf("history length = %d, want 2", len(ops))
	}
	if ops[0].ID != second || ops[1].ID != first {
		t.Error("operations are not ordered newest first")
	}
}

func TestRecordAggregates(t *testing.T) {
	s := &BusService{}

	s.record(uuid.New(), model.OperationTypeReadCoils, "Relay", "/dev/ttyAMA2", "tok1", bridge.StatusSuccess, nil, time.Millisecond)
	s.record(uuid.New(), model.OperationTypeReadCoils, "Relay", "/dev/ttyAMA2", "tok2", bridge.StatusTimeout, nil, time.Millisecond)
	s.record(uuid.New(), model.OperationTypeReadCoils, "Relay", "/dev/ttyAMA2", "tok3", bridge.StatusSendFailed, nil, time.Millisecond)

	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	want := model.OperationStats{Total: 3, Succeeded: 1, Failed: 1, TimedOut: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}
