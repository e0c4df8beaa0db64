package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const DefaultMaxMetadataBytes = 1 << 20 // 1 MiB

// Store persists the key/value metadata document of each run. Scripts
// mutate it through metadata.set and metadata.append events.
type Store struct {
	db       *sql.DB
	maxBytes int
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		maxBytes: DefaultMaxMetadataBytes,
	}
}

// Get returns the full metadata document for a run, or {} if missing.
func (s *Store) Get(ctx context.Context, runID string) (json.RawMessage, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT metadata FROM run_metadata WHERE run_id = ?;", runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return json.RawMessage(`{}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run metadata: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored metadata is invalid JSON for run=%q", runID)
	}
	return json.RawMessage(raw), nil
}

// Set assigns value to key in the run's metadata document.
func (s *Store) Set(ctx context.Context, runID, key string, value json.RawMessage) (json.RawMessage, error) {
	return s.mutate(ctx, runID, key, value, false)
}

// Append appends value to the array stored at key. A missing key becomes a
// one-element array; a non-array current value is coerced into an array
// with the existing value first.
func (s *Store) Append(ctx context.Context, runID, key string, value json.RawMessage) (json.RawMessage, error) {
	return s.mutate(ctx, runID, key, value, true)
}

func (s *Store) mutate(ctx context.Context, runID, key string, value json.RawMessage, appendMode bool) (json.RawMessage, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is empty")
	}
	if key == "" {
		return nil, fmt.Errorf("metadata key is empty")
	}
	if len(value) == 0 {
		value = json.RawMessage(`null`)
	}
	if !json.Valid(value) {
		return nil, fmt.Errorf("metadata value is invalid JSON")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Read current document (or {}).
	var curRaw string
	err = tx.QueryRowContext(ctx, "SELECT metadata FROM run_metadata WHERE run_id = ?;", runID).Scan(&curRaw)
	if errors.Is(err, sql.ErrNoRows) {
		curRaw = "{}"
	} else if err != nil {
		return nil, fmt.Errorf("read run metadata: %w", err)
	}

	doc, err := decodeObjectOrEmpty(json.RawMessage(curRaw))
	if err != nil {
		return nil, fmt.Errorf("decode stored metadata: %w", err)
	}

	if appendMode {
		doc[key], err = appendToArray(doc[key], value)
		if err != nil {
			return nil, fmt.Errorf("append to %q: %w", key, err)
		}
	} else {
		doc[key] = value
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if len(merged) > s.maxBytes {
		return nil, fmt.Errorf("run metadata exceeds max size (%d bytes)", s.maxBytes)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
INSERT INTO run_metadata(run_id, metadata, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  metadata = excluded.metadata,
  updated_at = excluded.updated_at;
`, runID, string(merged), now)
	if err != nil {
		return nil, fmt.Errorf("upsert run metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return json.RawMessage(merged), nil
}

func appendToArray(current, value json.RawMessage) (json.RawMessage, error) {
	var arr []json.RawMessage
	if len(current) > 0 {
		if err := json.Unmarshal(current, &arr); err != nil {
			// Coerce a scalar or object into a one-element array.
			arr = []json.RawMessage{current}
		}
	}
	arr = append(arr, value)
	return json.Marshal(arr)
}

func decodeObjectOrEmpty(b json.RawMessage) (map[string]json.RawMessage, error) {
	if len(b) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("invalid JSON")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m, nil
}
