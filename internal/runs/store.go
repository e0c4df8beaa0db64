package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxStderrTail caps the stderr excerpt persisted with a finished run.
const maxStderrTail = 64 * 1024

var ErrNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new running run and returns it.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Run, error) {
	if req.ScriptPath == "" {
		return nil, fmt.Errorf("script path is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs(id, task, script_path, script_hash, status, started_at)
VALUES(?, ?, ?, ?, ?, ?);
`, id, req.Task, req.ScriptPath, req.ScriptHash, StatusRunning, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return &Run{
		ID:         id,
		Task:       req.Task,
		ScriptPath: req.ScriptPath,
		ScriptHash: req.ScriptHash,
		Status:     StatusRunning,
		StartedAt:  now,
	}, nil
}

// Finish records the terminal status, exit code and stderr excerpt of a run.
func (s *Store) Finish(ctx context.Context, id string, status Status, exitCode int, stderrTail string) error {
	if len(stderrTail) > maxStderrTail {
		stderrTail = stderrTail[len(stderrTail)-maxStderrTail:]
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET status = ?, exit_code = ?, stderr_tail = ?, finished_at = ?
WHERE id = ?;
`, status, exitCode, stderrTail, now, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch refreshes the run's heartbeat timestamp.
func (s *Store) Touch(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET last_heartbeat_at = ? WHERE id = ?;`, now, id)
	if err != nil {
		return fmt.Errorf("touch run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, task, script_path, script_hash, status, exit_code, stderr_tail,
       started_at, finished_at, last_heartbeat_at
FROM runs
WHERE id = ?;
`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, task, script_path, script_hash, status, exit_code, stderr_tail,
       started_at, finished_at, last_heartbeat_at
FROM runs
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordWait inserts a pending durable wait row and returns its ID.
func (s *Store) RecordWait(ctx context.Context, runID, kind string, resumeAt time.Time) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is empty")
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_waits(id, run_id, kind, resume_at, created_at)
VALUES(?, ?, ?, ?, ?);
`, id, runID, kind, resumeAt.UTC().Format(time.RFC3339Nano), now)
	if err != nil {
		return "", fmt.Errorf("record wait: %w", err)
	}
	return id, nil
}

// CompleteWait marks a durable wait as finished.
func (s *Store) CompleteWait(ctx context.Context, waitID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `UPDATE run_waits SET completed_at = ? WHERE id = ?;`, now, waitID)
	if err != nil {
		return fmt.Errorf("complete wait: %w", err)
	}
	return nil
}

// Waits returns the durable waits recorded for a run, oldest first.
func (s *Store) Waits(ctx context.Context, runID string) ([]*Wait, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, kind, resume_at, created_at, completed_at
FROM run_waits
WHERE run_id = ?
ORDER BY created_at ASC, rowid ASC;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list waits: %w", err)
	}
	defer rows.Close()

	var out []*Wait
	for rows.Next() {
		var (
			w           Wait
			resumeAtS   string
			createdAtS  string
			completedAt sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.RunID, &w.Kind, &resumeAtS, &createdAtS, &completedAt); err != nil {
			return nil, fmt.Errorf("scan wait: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, resumeAtS); err == nil {
			w.ResumeAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			w.CreatedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
				w.CompletedAt = &t
			}
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r            Run
		statusS      string
		exitCode     sql.NullInt64
		stderrTail   sql.NullString
		startedAtS   string
		finishedAtS  sql.NullString
		heartbeatAtS sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Task, &r.ScriptPath, &r.ScriptHash, &statusS, &exitCode, &stderrTail,
		&startedAtS, &finishedAtS, &heartbeatAtS,
	)
	if err != nil {
		return nil, err
	}

	r.Status = Status(statusS)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	if stderrTail.Valid {
		r.StderrTail = &stderrTail.String
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
		r.StartedAt = t
	}
	if finishedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAtS.String); err == nil {
			r.FinishedAt = &t
		}
	}
	if heartbeatAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, heartbeatAtS.String); err == nil {
			r.LastHeartbeatAt = &t
		}
	}
	return &r, nil
}
