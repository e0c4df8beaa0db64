package scripts

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
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

func newTestSupervisor(t *testing.T) (*Supervisor, *sql.DB) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "host.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Supervisor{
		Runs:     runs.NewStore(db),
		Metadata: state.NewStore(db),
		Hub:      events.NewHub(100),
		Logger:   log.NewWriterLogger(&bytes.Buffer{}, slog.LevelError),
	}, db
}

func TestSupervisor_SuccessfulRun(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	events0, cancel := sup.Hub.Subscribe()
	defer cancel()

	script := writeScript(t, `
echo '__TRIGGER_EVENT__:{"type":"heartbeat"}'
echo '__TRIGGER_EVENT__:{"type":"metadata.set","key":"stage","value":"load"}'
echo '__TRIGGER_EVENT__:{"type":"wait.for","seconds":0}'
read line
echo "all done"
`)

	run, res, err := sup.Execute(ctx, "nightly", script, Options{})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "all done", res.Stdout)

	stored, err := sup.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, runs.StatusSucceeded, stored.Status)
	require.NotNil(t, stored.ExitCode)
	assert.Equal(t, 0, *stored.ExitCode)
	assert.Equal(t, "nightly", stored.Task)
	assert.NotEmpty(t, stored.ScriptHash)
	assert.NotNil(t, stored.FinishedAt)
	assert.NotNil(t, stored.LastHeartbeatAt, "heartbeat should touch the run")

	meta, err := sup.Metadata.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"load"}`, string(meta))

	waits, err := sup.Runs.Waits(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, waits, 1)
	assert.Equal(t, "for", waits[0].Kind)
	assert.NotNil(t, waits[0].CompletedAt)

	types := map[string]bool{}
	for len(events0) > 0 {
		types[(<-events0).Type] = true
	}
	assert.True(t, types[events.TypeRunStarted])
	assert.True(t, types[events.TypeRunFinished])
}

func TestSupervisor_FailedRun(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	script := writeScript(t, `
echo "got halfway" >&2
exit 7
`)

	run, _, err := sup.Execute(ctx, "nightly", script, Options{})
	require.Error(t, err)
	require.NotNil(t, run)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 7, exitErr.ExitCode)

	stored, err := sup.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, runs.StatusFailed, stored.Status)
	require.NotNil(t, stored.ExitCode)
	assert.Equal(t, 7, *stored.ExitCode)
	require.NotNil(t, stored.StderrTail)
	assert.Contains(t, *stored.StderrTail, "got halfway")
}

func TestSupervisor_SignaledRun(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	script := writeScript(t, `kill -KILL $$`)

	run, _, err := sup.Execute(ctx, "nightly", script, Options{})
	require.Error(t, err)
	require.NotNil(t, run)

	stored, err := sup.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, runs.StatusSignaled, stored.Status)
	require.NotNil(t, stored.ExitCode)
	assert.Equal(t, signalExitCode, *stored.ExitCode)
}

func TestSupervisor_MissingScriptCreatesNoRun(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	run, _, err := sup.Execute(ctx, "nightly", "/no/such/script.py", Options{})
	require.Error(t, err)
	assert.Nil(t, run)

	listed, err := sup.Runs.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestSupervisor_LaunchRunsInBackground(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	ctx := context.Background()

	script := writeScript(t, `echo "background done"`)

	run, err := sup.Launch(ctx, "nightly", script, Options{})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, runs.StatusRunning, run.Status)

	require.Eventually(t, func() bool {
		stored, err := sup.Runs.Get(ctx, run.ID)
		return err == nil && stored.Status == runs.StatusSucceeded
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.py")
	require.NoError(t, os.WriteFile(path, []byte("print('hi')\n"), 0o644))

	h1, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "fingerprint must be stable")

	require.NoError(t, os.WriteFile(path, []byte("print('bye')\n"), 0o644))
	h3, err := Fingerprint(path)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	_, err = Fingerprint(filepath.Join(t.TempDir(), "missing.py"))
	assert.Error(t, err)
}
