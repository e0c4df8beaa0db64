package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/banphlet/trigger.dev-rails/internal/events"
	"github.com/banphlet/trigger.dev-rails/internal/runs"
	"github.com/banphlet/trigger.dev-rails/internal/state"
)

// TaskRuntime is the production Runtime: heartbeats and waits are persisted
// in the run database, metadata mutations go through the state store, and
// every operation is published to the event hub for live observers.
type TaskRuntime struct {
	runID    string
	runStore *runs.Store
	metadata *state.Store
	hub      *events.Hub
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewTaskRuntime(runID string, runStore *runs.Store, metadata *state.Store, hub *events.Hub, logger *slog.Logger) *TaskRuntime {
	return &TaskRuntime{
		runID:    runID,
		runStore: runStore,
		metadata: metadata,
		hub:      hub,
		logger:   logger.With("run_id", runID),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *TaskRuntime) Heartbeat(ctx context.Context) error {
	if err := r.runStore.Touch(ctx, r.runID); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	r.hub.Publish(events.TypeRunHeartbeat, r.runID, nil)
	return nil
}

func (r *TaskRuntime) WaitFor(ctx context.Context, d WaitDuration) error {
	return r.wait(ctx, "for", r.now().Add(d.Duration()))
}

func (r *TaskRuntime) WaitUntil(ctx context.Context, t time.Time) error {
	return r.wait(ctx, "until", t)
}

func (r *TaskRuntime) wait(ctx context.Context, kind string, resumeAt time.Time) error {
	waitID, err := r.runStore.RecordWait(ctx, r.runID, kind, resumeAt)
	if err != nil {
		return fmt.Errorf("record %s wait: %w", kind, err)
	}
	r.hub.Publish(events.TypeRunWait, r.runID, map[string]any{
		"kind":      kind,
		"resume_at": resumeAt.UTC().Format(time.RFC3339Nano),
	})

	if err := r.sleep(ctx, resumeAt.Sub(r.now())); err != nil {
		return err
	}

	if err := r.runStore.CompleteWait(ctx, waitID); err != nil {
		return fmt.Errorf("complete %s wait: %w", kind, err)
	}
	return nil
}

func (r *TaskRuntime) Log(ctx context.Context, message string, attrs map[string]any) error {
	args := make([]any, 0, len(attrs)*2)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	r.logger.Info(message, args...)

	r.hub.Publish(events.TypeRunLog, r.runID, map[string]any{
		"message":    message,
		"attributes": attrs,
	})
	return nil
}

func (r *TaskRuntime) SetMetadata(ctx context.Context, key string, value json.RawMessage) error {
	if _, err := r.metadata.Set(ctx, r.runID, key, value); err != nil {
		return err
	}
	r.hub.Publish(events.TypeRunMetadata, r.runID, map[string]any{"op": "set", "key": key})
	return nil
}

func (r *TaskRuntime) AppendMetadata(ctx context.Context, key string, value json.RawMessage) error {
	if _, err := r.metadata.Append(ctx, r.runID, key, value); err != nil {
		return err
	}
	r.hub.Publish(events.TypeRunMetadata, r.runID, map[string]any{"op": "append", "key": key})
	return nil
}
