package runs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banphlet/trigger.dev-rails/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.Create(ctx, CreateRequest{
		Task:       "nightly-import",
		ScriptPath: "/opt/scripts/import.py",
		ScriptHash: "abc123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly-import", got.Task)
	assert.Equal(t, "/opt/scripts/import.py", got.ScriptPath)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.ExitCode)
	assert.Nil(t, got.FinishedAt)
}

func TestStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Finish(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.Create(ctx, CreateRequest{ScriptPath: "/tmp/x.py", ScriptHash: "h"})
	require.NoError(t, err)

	require.NoError(t, s.Finish(ctx, run.ID, StatusFailed, 7, "boom"))

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 7, *got.ExitCode)
	require.NotNil(t, got.StderrTail)
	assert.Equal(t, "boom", *got.StderrTail)
	assert.NotNil(t, got.FinishedAt)

	assert.ErrorIs(t, s.Finish(ctx, "missing", StatusFailed, 1, ""), ErrNotFound)
}

func TestStore_Touch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.Create(ctx, CreateRequest{ScriptPath: "/tmp/x.py", ScriptHash: "h"})
	require.NoError(t, err)

	require.NoError(t, s.Touch(ctx, run.ID))

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastHeartbeatAt)

	assert.ErrorIs(t, s.Touch(ctx, "missing"), ErrNotFound)
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := s.Create(ctx, CreateRequest{ScriptPath: "/tmp/x.py", ScriptHash: "h"})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestStore_Waits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.Create(ctx, CreateRequest{ScriptPath: "/tmp/x.py", ScriptHash: "h"})
	require.NoError(t, err)

	resumeAt := time.Now().Add(30 * time.Second)
	waitID, err := s.RecordWait(ctx, run.ID, "for", resumeAt)
	require.NoError(t, err)

	waits, err := s.Waits(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, waits, 1)
	assert.Equal(t, "for", waits[0].Kind)
	assert.Nil(t, waits[0].CompletedAt)

	require.NoError(t, s.CompleteWait(ctx, waitID))

	waits, err = s.Waits(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, waits, 1)
	assert.NotNil(t, waits[0].CompletedAt)
}
