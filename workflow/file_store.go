package workflow

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileTraceStore implements TraceStore using file system storage. Each run
// gets its own directory holding an append-only events.jsonl and the latest
// checkpoint.json.
type FileTraceStore struct {
	basePath string
	mutex    sync.RWMutex
}

// NewFileTraceStore creates a new file-based trace store
func NewFileTraceStore(basePath string) *FileTraceStore {
	return &FileTraceStore{
		basePath: basePath,
	}
}

// AppendEvents appends events to the run's trace file
func (f *FileTraceStore) AppendEvents(ctx context.Context, events []*TraceEvent) error {
	if len(events) == 0 {
		return nil
	}

	runID := events[0].RunID
	f.mutex.Lock()
	defer f.mutex.Unlock()

	runDir := filepath.Join(f.basePath, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	eventsFile := filepath.Join(runDir, "events.jsonl")
	file, err := os.OpenFile(eventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}

	return nil
}

// GetEvents retrieves the full trace for a run, ordered by sequence
func (f *FileTraceStore) GetEvents(ctx context.Context, runID string) ([]*TraceEvent, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	eventsFile := filepath.Join(f.basePath, runID, "events.jsonl")
	file, err := os.Open(eventsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return []*TraceEvent{}, nil
		}
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer file.Close()

	var events []*TraceEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event TraceEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Sequence < events[j].Sequence
	})
	return events, nil
}

// SaveCheckpoint writes the run's checkpoint with an atomic rename
func (f *FileTraceStore) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	runDir := filepath.Join(f.basePath, checkpoint.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	checkpointFile := filepath.Join(runDir, "checkpoint.json")
	tempFile := checkpointFile + ".tmp"

	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}
	defer file.Close()

	checkpoint.UpdatedAt = time.Now()
	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = checkpoint.UpdatedAt
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := os.Rename(tempFile, checkpointFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	return nil
}

// GetCheckpoint retrieves the latest checkpoint for a run
func (f *FileTraceStore) GetCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	checkpointFile := filepath.Join(f.basePath, runID, "checkpoint.json")
	file, err := os.Open(checkpointFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint not found for run %s", runID)
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListRuns returns checkpoints matching the filter, newest first
func (f *FileTraceStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Checkpoint{}, nil
		}
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	var checkpoints []*Checkpoint
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		checkpoint, err := f.GetCheckpoint(ctx, entry.Name())
		if err != nil {
			// Runs without checkpoints are skipped
			continue
		}
		if filter.Status != nil && checkpoint.Status != *filter.Status {
			continue
		}
		checkpoints = append(checkpoints, checkpoint)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt)
	})

	start := filter.Offset
	if start >= len(checkpoints) {
		return []*Checkpoint{}, nil
	}
	end := len(checkpoints)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return checkpoints[start:end], nil
}

// DeleteRun removes all files associated with a run
func (f *FileTraceStore) DeleteRun(ctx context.Context, runID string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	runDir := filepath.Join(f.basePath, runID)
	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to delete run directory: %w", err)
	}
	return nil
}
