package workflow

import (
	"context"
	"time"

	"github.com/deepnoodle-ai/triage/retry"
	"github.com/google/uuid"
)

// nodeCall describes one node invocation for the executor.
type nodeCall struct {
	Name   string
	Policy retry.Policy

	// Run performs the node's work and returns the payload recorded on the
	// trace event.
	Run func(ctx context.Context) (map[string]any, error)

	// Fallback, when set, is applied after Run fails on every attempt. It
	// mutates state with a degraded substitute and returns payload extras
	// for the trace event. A node with a fallback never fails the run.
	Fallback func(err error) map[string]any
}

// executeNode runs a node under its retry policy and records exactly one
// trace event for the invocation, with all attempts nested inside it.
func (e *Execution) executeNode(ctx context.Context, call nodeCall) (map[string]any, error) {
	started := time.Now()

	var payload map[string]any
	attempts, err := retry.Do(ctx, call.Policy, func() error {
		var runErr error
		payload, runErr = call.Run(ctx)
		return runErr
	})

	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeFailure
	case len(attempts) > 1:
		outcome = OutcomeRetried
	}

	if err != nil {
		e.state.AppendError(call.Name, err)
		if call.Fallback != nil {
			payload = call.Fallback(err)
			if payload == nil {
				payload = map[string]any{}
			}
			payload["fallback_applied"] = true
			payload["error"] = err.Error()
			err = nil
		}
	}

	event := &TraceEvent{
		ID:        "event-" + uuid.NewString(),
		RunID:     e.state.RunID,
		VisitID:   e.state.Visit.VisitID,
		Node:      call.Name,
		Sequence:  e.state.NextSequence(),
		StartedAt: started,
		EndedAt:   time.Now(),
		Outcome:   outcome,
		Attempts:  attempts,
		Payload:   payload,
	}
	e.recordEvent(ctx, event)
	return payload, err
}

// recordEvent appends an event to the in-memory trace and the trace store.
// A store write failure is logged but does not fail the run; the in-memory
// trace on the result remains complete.
func (e *Execution) recordEvent(ctx context.Context, event *TraceEvent) {
	e.state.AppendTrace(event)
	// Events must still be persisted on the cancellation path.
	ctx = context.WithoutCancel(ctx)
	if err := e.store.AppendEvents(ctx, []*TraceEvent{event}); err != nil {
		e.logger.Warn("failed to persist trace event",
			"run_id", e.state.RunID, "node", event.Node, "error", err)
	}
}
