package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteTraceStore implements TraceStore using a SQLite database. Events are
// stored append-only; checkpoints are upserted per run.
type SQLiteTraceStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trace_events (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	visit_id   TEXT NOT NULL,
	node       TEXT NOT NULL,
	sequence   INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	ended_at   TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	attempts   TEXT,
	payload    TEXT,
	UNIQUE (run_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_trace_events_run ON trace_events (run_id, sequence);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id     TEXT PRIMARY KEY,
	visit_id   TEXT NOT NULL,
	status     TEXT NOT NULL,
	state      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints (status);
`

// NewSQLiteTraceStore opens (and if needed creates) a SQLite-backed trace
// store at the given path.
func NewSQLiteTraceStore(path string) (*SQLiteTraceStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteTraceStore{db: db}, nil
}

// Close closes the underlying database
func (s *SQLiteTraceStore) Close() error {
	return s.db.Close()
}

// AppendEvents appends events to the run's trace
func (s *SQLiteTraceStore) AppendEvents(ctx context.Context, events []*TraceEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, event := range events {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("invalid trace event: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events
			(id, run_id, visit_id, node, sequence, started_at, ended_at, outcome, attempts, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		attempts, err := json.Marshal(event.Attempts)
		if err != nil {
			return fmt.Errorf("failed to encode attempts: %w", err)
		}
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			event.ID, event.RunID, event.VisitID, event.Node, event.Sequence,
			event.StartedAt.Format(time.RFC3339Nano),
			event.EndedAt.Format(time.RFC3339Nano),
			string(event.Outcome), string(attempts), string(payload))
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return tx.Commit()
}

// GetEvents retrieves the full trace for a run, ordered by sequence
func (s *SQLiteTraceStore) GetEvents(ctx context.Context, runID string) ([]*TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, visit_id, node, sequence, started_at, ended_at, outcome, attempts, payload
		FROM trace_events WHERE run_id = ? ORDER BY sequence`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*TraceEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	if events == nil {
		events = []*TraceEvent{}
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*TraceEvent, error) {
	var event TraceEvent
	var startedAt, endedAt, outcome string
	var attempts, payload sql.NullString
	err := rows.Scan(&event.ID, &event.RunID, &event.VisitID, &event.Node,
		&event.Sequence, &startedAt, &endedAt, &outcome, &attempts, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	event.Outcome = Outcome(outcome)
	if event.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse start time: %w", err)
	}
	if event.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return nil, fmt.Errorf("failed to parse end time: %w", err)
	}
	if attempts.Valid && attempts.String != "" && attempts.String != "null" {
		if err := json.Unmarshal([]byte(attempts.String), &event.Attempts); err != nil {
			return nil, fmt.Errorf("failed to decode attempts: %w", err)
		}
	}
	if payload.Valid && payload.String != "" && payload.String != "null" {
		if err := json.Unmarshal([]byte(payload.String), &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	return &event, nil
}

// SaveCheckpoint upserts the run's checkpoint
func (s *SQLiteTraceStore) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()
	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = checkpoint.UpdatedAt
	}

	state, err := json.Marshal(checkpoint.State)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, visit_id, status, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		checkpoint.RunID, checkpoint.VisitID, string(checkpoint.Status), string(state),
		checkpoint.CreatedAt.Format(time.RFC3339Nano),
		checkpoint.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the latest checkpoint for a run
func (s *SQLiteTraceStore) GetCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, visit_id, status, state, created_at, updated_at
		FROM checkpoints WHERE run_id = ?`, runID)
	checkpoint, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint not found for run %s", runID)
	}
	return checkpoint, err
}

// ListRuns returns checkpoints matching the filter, newest first
func (s *SQLiteTraceStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	query := `SELECT run_id, visit_id, status, state, created_at, updated_at FROM checkpoints`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, checkpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	if checkpoints == nil {
		checkpoints = []*Checkpoint{}
	}
	return checkpoints, nil
}

// DeleteRun removes a run's trace and checkpoint
func (s *SQLiteTraceStore) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trace_events WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var checkpoint Checkpoint
	var status, state, createdAt, updatedAt string
	err := row.Scan(&checkpoint.RunID, &checkpoint.VisitID, &status, &state,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	checkpoint.Status = Status(status)
	if err := json.Unmarshal([]byte(state), &checkpoint.State); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	if checkpoint.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created time: %w", err)
	}
	if checkpoint.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated time: %w", err)
	}
	return &checkpoint, nil
}
