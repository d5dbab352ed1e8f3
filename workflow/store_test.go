package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/deepnoodle-ai/triage"
	"github.com/deepnoodle-ai/triage/retry"
	"github.com/stretchr/testify/require"
)

func testEvent(runID string, seq int64, node string) *TraceEvent {
	now := time.Now()
	return &TraceEvent{
		ID:        fmt.Sprintf("event-%s-%d", runID, seq),
		RunID:     runID,
		VisitID:   "visit-1",
		Node:      node,
		Sequence:  seq,
		StartedAt: now,
		EndedAt:   now,
		Outcome:   OutcomeSuccess,
		Attempts:  []retry.Attempt{{Number: 1}},
		Payload:   map[string]any{"probability": 0.5},
	}
}

func testCheckpoint(runID string, status Status) *Checkpoint {
	return &Checkpoint{
		RunID:   runID,
		VisitID: "visit-1",
		Status:  status,
		State: &Snapshot{
			RunID:    runID,
			Visit:    testVisit(3),
			Decision: triage.DecisionPendingReview,
			Status:   status,
			EventSeq: 3,
		},
	}
}

func runTraceStoreTests(t *testing.T, store TraceStore) {
	ctx := context.Background()

	t.Run("events round trip", func(t *testing.T) {
		require.NoError(t, store.AppendEvents(ctx, []*TraceEvent{
			testEvent("run-a", 1, NodeSeverityCheck),
			testEvent("run-a", 2, NodeStructuredPredict),
		}))
		require.NoError(t, store.AppendEvents(ctx, []*TraceEvent{
			testEvent("run-a", 3, NodeFinalize),
		}))

		events, err := store.GetEvents(ctx, "run-a")
		require.NoError(t, err)
		require.Len(t, events, 3)
		require.Equal(t, NodeSeverityCheck, events[0].Node)
		require.Equal(t, NodeFinalize, events[2].Node)
		require.Equal(t, int64(3), events[2].Sequence)
		require.Equal(t, 0.5, events[0].Payload["probability"])
		require.Len(t, events[0].Attempts, 1)
	})

	t.Run("unknown run has empty trace", func(t *testing.T) {
		events, err := store.GetEvents(ctx, "run-missing")
		require.NoError(t, err)
		require.Empty(t, events)
	})

	t.Run("checkpoint round trip", func(t *testing.T) {
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpoint("run-a", StatusWaitingReview)))

		checkpoint, err := store.GetCheckpoint(ctx, "run-a")
		require.NoError(t, err)
		require.Equal(t, "run-a", checkpoint.RunID)
		require.Equal(t, StatusWaitingReview, checkpoint.Status)
		require.Equal(t, "visit-1", checkpoint.State.Visit.VisitID)
		require.Equal(t, int64(3), checkpoint.State.EventSeq)
		require.False(t, checkpoint.CreatedAt.IsZero())

		// Saving again replaces the previous checkpoint
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpoint("run-a", StatusCompleted)))
		checkpoint, err = store.GetCheckpoint(ctx, "run-a")
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, checkpoint.Status)
	})

	t.Run("missing checkpoint", func(t *testing.T) {
		_, err := store.GetCheckpoint(ctx, "run-missing")
		require.Error(t, err)
	})

	t.Run("list runs", func(t *testing.T) {
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpoint("run-b", StatusWaitingReview)))

		all, err := store.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)

		waiting := StatusWaitingReview
		filtered, err := store.ListRuns(ctx, RunFilter{Status: &waiting})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		require.Equal(t, "run-b", filtered[0].RunID)

		limited, err := store.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)

		_, err = store.ListRuns(ctx, RunFilter{Limit: -1})
		require.Error(t, err)
	})

	t.Run("delete run", func(t *testing.T) {
		require.NoError(t, store.DeleteRun(ctx, "run-b"))
		_, err := store.GetCheckpoint(ctx, "run-b")
		require.Error(t, err)
		require.NoError(t, store.DeleteRun(ctx, "run-b"))
	})
}

func TestFileTraceStore(t *testing.T) {
	runTraceStoreTests(t, NewFileTraceStore(t.TempDir()))
}

func TestSQLiteTraceStore(t *testing.T) {
	store, err := NewSQLiteTraceStore(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer store.Close()
	runTraceStoreTests(t, store)
}

func TestSQLiteTraceStoreValidatesEvents(t *testing.T) {
	store, err := NewSQLiteTraceStore(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer store.Close()

	event := testEvent("run-a", 1, NodeSeverityCheck)
	event.ID = ""
	err = store.AppendEvents(context.Background(), []*TraceEvent{event})
	require.Error(t, err)
	require.Contains(t, err.Error(), "event id is required")

	events, err := store.GetEvents(context.Background(), "run-a")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestNullTraceStore(t *testing.T) {
	ctx := context.Background()
	store := NewNullTraceStore()
	require.NoError(t, store.AppendEvents(ctx, []*TraceEvent{testEvent("run-a", 1, NodeFinalize)}))
	events, err := store.GetEvents(ctx, "run-a")
	require.NoError(t, err)
	require.Empty(t, events)
	_, err = store.GetCheckpoint(ctx, "run-a")
	require.Error(t, err)
}
