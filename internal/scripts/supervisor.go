package scripts

import (
	"context"
	"errors"
	"log/slog"

	"github.com/banphlet/trigger.dev-rails/internal/events"
	"github.com/banphlet/trigger.dev-rails/internal/runs"
	"github.com/banphlet/trigger.dev-rails/internal/runtime"
	"github.com/banphlet/trigger.dev-rails/internal/state"
)

// Supervisor ties an invocation to its run record: it creates the run row,
// wires a TaskRuntime for the run ID, executes the script, and persists the
// terminal status. The CLI and the API both go through it.
type Supervisor struct {
	Runs     *runs.Store
	Metadata *state.Store
	Hub      *events.Hub
	Logger   *slog.Logger
}

// Execute runs one script under a fresh run record and blocks until it
// finishes. The returned run is always non-nil once the record was created,
// even when the invocation itself failed.
func (s *Supervisor) Execute(ctx context.Context, task, scriptPath string, opts Options) (*runs.Run, *Result, error) {
	run, err := s.begin(ctx, task, scriptPath)
	if err != nil {
		return nil, nil, err
	}
	result, runErr := s.runAndFinish(ctx, run, scriptPath, opts)
	return run, result, runErr
}

// Launch creates the run record synchronously, then executes the script in
// the background. The invocation is detached from the caller's context so
// an aborted API request does not kill a running script.
func (s *Supervisor) Launch(ctx context.Context, task, scriptPath string, opts Options) (*runs.Run, error) {
	run, err := s.begin(ctx, task, scriptPath)
	if err != nil {
		return nil, err
	}
	go func() {
		_, _ = s.runAndFinish(context.Background(), run, scriptPath, opts)
	}()
	return run, nil
}

func (s *Supervisor) begin(ctx context.Context, task, scriptPath string) (*runs.Run, error) {
	hash, err := Fingerprint(scriptPath)
	if err != nil {
		return nil, err
	}

	run, err := s.Runs.Create(ctx, runs.CreateRequest{
		Task:       task,
		ScriptPath: scriptPath,
		ScriptHash: hash,
	})
	if err != nil {
		return nil, err
	}

	s.Hub.Publish(events.TypeRunStarted, run.ID, map[string]string{
		"task":        task,
		"script_path": scriptPath,
	})
	return run, nil
}

func (s *Supervisor) runAndFinish(ctx context.Context, run *runs.Run, scriptPath string, opts Options) (*Result, error) {
	logger := s.Logger.With("run_id", run.ID)

	rt := runtime.NewTaskRuntime(run.ID, s.Runs, s.Metadata, s.Hub, logger)
	result, runErr := NewRunner(rt, logger).Run(ctx, scriptPath, opts)

	status, exitCode, stderr := outcome(result, runErr)
	if err := s.Runs.Finish(ctx, run.ID, status, exitCode, stderr); err != nil {
		logger.Error("failed to persist run outcome", "error", err)
	}
	s.Hub.Publish(events.TypeRunFinished, run.ID, map[string]any{
		"status":    status,
		"exit_code": exitCode,
	})

	return result, runErr
}

func outcome(result *Result, runErr error) (runs.Status, int, string) {
	if runErr == nil {
		return runs.StatusSucceeded, result.ExitCode, result.Stderr
	}

	var exitErr *ExitError
	if errors.As(runErr, &exitErr) {
		if exitErr.ExitCode == signalExitCode {
			return runs.StatusSignaled, exitErr.ExitCode, exitErr.Stderr
		}
		return runs.StatusFailed, exitErr.ExitCode, exitErr.Stderr
	}
	return runs.StatusFailed, signalExitCode, ""
}
