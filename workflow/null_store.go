package workflow

import (
	"context"
	"fmt"
)

// NullTraceStore discards events and checkpoints. Used when tracing is
// disabled; runs that suspend cannot be resumed with this store.
type NullTraceStore struct{}

// NewNullTraceStore creates a no-op trace store
func NewNullTraceStore() *NullTraceStore {
	return &NullTraceStore{}
}

func (n *NullTraceStore) AppendEvents(ctx context.Context, events []*TraceEvent) error {
	return nil
}

func (n *NullTraceStore) GetEvents(ctx context.Context, runID string) ([]*TraceEvent, error) {
	return []*TraceEvent{}, nil
}

func (n *NullTraceStore) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	return nil
}

func (n *NullTraceStore) GetCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	return nil, fmt.Errorf("checkpoint not found for run %s", runID)
}

func (n *NullTraceStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Checkpoint, error) {
	return []*Checkpoint{}, nil
}

func (n *NullTraceStore) DeleteRun(ctx context.Context, runID string) error {
	return nil
}
