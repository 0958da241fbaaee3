package eventbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestBusHandshakeReturnsMatchingAck(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	go func() {
		evt := <-bus.Events()
		_ = bus.Ack(evt.Ack())
	}()
	evt := NewStepEvent(1, 10, 2, "Chop", 15, 20, 2)
	ack, err := bus.Handshake(context.Background(), evt)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if ack.EventID != evt.EventID || ack.WorkerID != 1 || ack.StepIndex != 2 {
		t.Fatalf("unexpected ack %+v for %+v", ack, evt)
	}
}

func TestBusDiscardsMismatchedAcks(t *testing.T) {
	logger := &recordingLogger{}
	bus := NewBus(WithBusLogger(logger))
	defer bus.Close()
	evt := NewStepEvent(0, 1, 3, "Plate Dish", 91, 12, 1)
	go func() {
		got := <-bus.Events()
		_ = bus.Ack(StepAck{WorkerID: got.WorkerID, StepIndex: got.StepIndex - 1})
		_ = bus.Ack(got.Ack())
	}()
	ack, err := bus.Handshake(context.Background(), evt)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if ack.StepIndex != 3 {
		t.Fatalf("accepted wrong ack %+v", ack)
	}
	if !logger.contains("discarded ack for step 2") {
		t.Fatalf("expected mismatch to be logged, got %v", logger.lines)
	}
}

func TestBusHandshakeTimesOut(t *testing.T) {
	bus := NewBus(WithAckTimeout(20 * time.Millisecond))
	defer bus.Close()
	_, err := bus.Handshake(context.Background(), NewStepEvent(0, 1, 0, "ingredients", 28, 26, 1))
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
}

func TestBusHandshakeReturnsContextErrorOnShutdown(t *testing.T) {
	bus := NewBus(WithAckTimeout(time.Minute))
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := bus.Handshake(ctx, NewStepEvent(2, 1, 0, "ingredients", 28, 26, 1))
		done <- err
	}()
	<-bus.Events()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("handshake ignored cancellation")
	}
}

func TestBusRejectsInvalidAck(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	if err := bus.Ack(StepAck{WorkerID: -1}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestDecodeAckAppliesSchema(t *testing.T) {
	if _, err := DecodeAck([]byte(`{"worker_id": 1, "step_index": 2}`)); err != nil {
		t.Fatalf("expected valid ack, got %v", err)
	}
	for _, raw := range []string{
		`{"worker_id": 1}`,
		`{"worker_id": "one", "step_index": 0}`,
		`{"worker_id": 1.5, "step_index": 0}`,
		`not json`,
	} {
		if _, err := DecodeAck([]byte(raw)); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
}
