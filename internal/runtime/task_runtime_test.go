package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banphlet/trigger.dev-rails/internal/events"
	"github.com/banphlet/trigger.dev-rails/internal/log"
	"github.com/banphlet/trigger.dev-rails/internal/runs"
	"github.com/banphlet/trigger.dev-rails/internal/state"
	"github.com/banphlet/trigger.dev-rails/internal/storage"
)

func newTestRuntime(t *testing.T) (*TaskRuntime, *runs.Store, *state.Store, *events.Hub, *bytes.Buffer) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runStore := runs.NewStore(db)
	metaStore := state.NewStore(db)
	hub := events.NewHub(32)

	run, err := runStore.Create(context.Background(), runs.CreateRequest{
		ScriptPath: "/tmp/x.py",
		ScriptHash: "h",
	})
	require.NoError(t, err)

	var logBuf bytes.Buffer
	rt := NewTaskRuntime(run.ID, runStore, metaStore, hub, log.NewWriterLogger(&logBuf, slog.LevelDebug))
	rt.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return rt, runStore, metaStore, hub, &logBuf
}

func TestWaitDuration_Duration(t *testing.T) {
	d := WaitDuration{Seconds: 30, Minutes: 1, Hours: 1, Days: 1, Weeks: 1}
	expected := 30*time.Second + time.Minute + time.Hour + 24*time.Hour + 7*24*time.Hour
	assert.Equal(t, expected, d.Duration())
	assert.Equal(t, time.Duration(0), WaitDuration{}.Duration())
}

func TestTaskRuntime_Heartbeat(t *testing.T) {
	rt, runStore, _, hub, _ := newTestRuntime(t)
	ctx := context.Background()

	require.NoError(t, rt.Heartbeat(ctx))

	run, err := runStore.Get(ctx, rt.runID)
	require.NoError(t, err)
	assert.NotNil(t, run.LastHeartbeatAt)

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeRunHeartbeat, evs[0].Type)
	assert.Equal(t, rt.runID, evs[0].RunID)
}

func TestTaskRuntime_WaitFor(t *testing.T) {
	rt, runStore, _, hub, _ := newTestRuntime(t)
	ctx := context.Background()

	require.NoError(t, rt.WaitFor(ctx, WaitDuration{Seconds: 10}))

	waits, err := runStore.Waits(ctx, rt.runID)
	require.NoError(t, err)
	require.Len(t, waits, 1)
	assert.Equal(t, "for", waits[0].Kind)
	assert.NotNil(t, waits[0].CompletedAt)

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeRunWait, evs[0].Type)
}

func TestTaskRuntime_WaitUntil(t *testing.T) {
	rt, runStore, _, _, _ := newTestRuntime(t)
	ctx := context.Background()

	require.NoError(t, rt.WaitUntil(ctx, time.Now().Add(5*time.Second)))

	waits, err := runStore.Waits(ctx, rt.runID)
	require.NoError(t, err)
	require.Len(t, waits, 1)
	assert.Equal(t, "until", waits[0].Kind)
}

func TestTaskRuntime_WaitFor_Cancelled(t *testing.T) {
	rt, _, _, _, _ := newTestRuntime(t)
	rt.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rt.WaitFor(ctx, WaitDuration{Hours: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTaskRuntime_Log(t *testing.T) {
	rt, _, _, hub, logBuf := newTestRuntime(t)

	require.NoError(t, rt.Log(context.Background(), "processing row", map[string]any{"index": 5}))

	assert.Contains(t, logBuf.String(), "processing row")
	assert.Contains(t, logBuf.String(), `"index":5`)

	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeRunLog, evs[0].Type)
}

func TestTaskRuntime_Metadata(t *testing.T) {
	rt, _, metaStore, _, _ := newTestRuntime(t)
	ctx := context.Background()

	require.NoError(t, rt.SetMetadata(ctx, "stage", json.RawMessage(`"extract"`)))
	require.NoError(t, rt.AppendMetadata(ctx, "steps", json.RawMessage(`"fetch"`)))

	doc, err := metaStore.Get(ctx, rt.runID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"extract","steps":["fetch"]}`, string(doc))
}
