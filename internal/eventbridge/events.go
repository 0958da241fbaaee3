package eventbridge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
)

// StepEvent asks the spatial coordinator to move a chef's agent to a target
// cell. The chef blocks until the matching StepAck arrives.
type StepEvent struct {
	EventID      string    `json:"event_id"`
	WorkerID     int       `json:"worker_id"`
	OrderID      int       `json:"order_id"`
	StepIndex    int       `json:"step_index"`
	Step         string    `json:"step"`
	TargetX      int       `json:"target_x"`
	TargetY      int       `json:"target_y"`
	PauseSeconds int       `json:"pause_seconds"`
	Emitted      time.Time `json:"emitted"`
}

// NewStepEvent stamps a fresh event id and emission time.
func NewStepEvent(worker, order, step int, name string, x, y, pause int) StepEvent {
	return StepEvent{
		EventID:      uuid.NewString(),
		WorkerID:     worker,
		OrderID:      order,
		StepIndex:    step,
		Step:         name,
		TargetX:      x,
		TargetY:      y,
		PauseSeconds: pause,
		Emitted:      time.Now().UTC(),
	}
}

// Ack builds the acknowledgment that closes this event.
func (e StepEvent) Ack() StepAck {
	return StepAck{EventID: e.EventID, WorkerID: e.WorkerID, StepIndex: e.StepIndex}
}

// Validate enforces baseline requirements for events read off the wire.
func (e StepEvent) Validate() error {
	if e.WorkerID < 0 {
		return fmt.Errorf("worker_id %d must not be negative", e.WorkerID)
	}
	if e.StepIndex < 0 {
		return fmt.Errorf("step_index %d must not be negative", e.StepIndex)
	}
	return nil
}

// StepAck reports that a chef's agent reached the target of one step.
// EventID is optional; when present it must match the event being awaited.
type StepAck struct {
	EventID   string `json:"event_id,omitempty"`
	WorkerID  int    `json:"worker_id"`
	StepIndex int    `json:"step_index"`
}

// Normalize applies canonical formatting before validation.
func (a *StepAck) Normalize() {
	if a == nil {
		return
	}
	a.EventID = strings.TrimSpace(a.EventID)
}

// Validate enforces baseline requirements for incoming acks.
func (a StepAck) Validate() error {
	if a.WorkerID < 0 {
		return errors.New("worker_id must not be negative")
	}
	if a.StepIndex < 0 {
		return errors.New("step_index must not be negative")
	}
	return nil
}

// Matches reports whether a closes e.
func (a StepAck) Matches(e StepEvent) bool {
	if a.WorkerID != e.WorkerID || a.StepIndex != e.StepIndex {
		return false
	}
	return a.EventID == "" || e.EventID == "" || a.EventID == e.EventID
}

// AckProcessor consumes validated acks.
type AckProcessor interface {
	HandleAck(StepAck) error
}

// AckProcessorFunc adapts a function into an AckProcessor.
type AckProcessorFunc func(StepAck) error

// HandleAck executes f(a).
func (f AckProcessorFunc) HandleAck(a StepAck) error {
	if f == nil {
		return nil
	}
	return f(a)
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Clients       int    `json:"clients"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type ackResponse struct {
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}
