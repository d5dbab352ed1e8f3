package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/triage/retry"
	"github.com/google/uuid"
)

// Outcome describes how a node invocation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetried Outcome = "retried"
	OutcomeFailure Outcome = "failure"
)

// TraceEvent records a single node invocation. Exactly one event is emitted
// per invocation regardless of how many retry attempts it took; the attempts
// are nested inside the event.
type TraceEvent struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	VisitID   string          `json:"visit_id"`
	Node      string          `json:"node"`
	Sequence  int64           `json:"sequence"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Outcome   Outcome         `json:"outcome"`
	Attempts  []retry.Attempt `json:"attempts,omitempty"`
	Payload   map[string]any  `json:"payload,omitempty"`
}

// Validate validates the trace event
func (e *TraceEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if e.Node == "" {
		return fmt.Errorf("node name is required")
	}
	if e.Sequence <= 0 {
		return fmt.Errorf("sequence must be positive")
	}
	if e.StartedAt.IsZero() {
		return fmt.Errorf("start time is required")
	}
	return nil
}

// Checkpoint captures a run's state so a suspended run can be resumed in a
// different process. It is also the record returned when listing runs.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	VisitID   string    `json:"visit_id"`
	Status    Status    `json:"status"`
	State     *Snapshot `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunFilter defines criteria for listing runs
type RunFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// Validate validates the filter parameters
func (f RunFilter) Validate() error {
	if f.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if f.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	return nil
}

// TraceStore persists trace events and run checkpoints.
type TraceStore interface {

	// AppendEvents appends events to a run's trace in order.
	AppendEvents(ctx context.Context, events []*TraceEvent) error

	// GetEvents returns the full trace of a run, ordered by sequence.
	GetEvents(ctx context.Context, runID string) ([]*TraceEvent, error)

	// SaveCheckpoint saves the latest checkpoint for a run, replacing any
	// previous one.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// GetCheckpoint returns the latest checkpoint for a run.
	GetCheckpoint(ctx context.Context, runID string) (*Checkpoint, error)

	// ListRuns returns checkpoints matching the filter, newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*Checkpoint, error)

	// DeleteRun removes a run's trace and checkpoint.
	DeleteRun(ctx context.Context, runID string) error
}

// NewRunID creates a new run id
func NewRunID() string {
	return "run-" + uuid.NewString()
}
