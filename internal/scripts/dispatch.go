package scripts

import (
	"context"
	"fmt"
	"time"

	"github.com/banphlet/trigger.dev-rails/internal/protocol"
	"github.com/banphlet/trigger.dev-rails/internal/runtime"
)

// dispatch maps one decoded event to its host operation, awaits it, and
// reports whether the child must be acknowledged. A failing handler is
// logged and absorbed — and the ack is still owed for ack-requiring kinds,
// so a failed wait never leaves the child blocked on stdin forever.
func (r *Runner) dispatch(ctx context.Context, ev *protocol.Event) bool {
	ackRequired := ev.Type.RequiresAck()

	if err := r.invoke(ctx, ev); err != nil {
		r.logger.Error("event handler failed", "event_type", string(ev.Type), "error", err)
	}
	return ackRequired
}

func (r *Runner) invoke(ctx context.Context, ev *protocol.Event) error {
	switch ev.Type {
	case protocol.EventHeartbeat:
		return r.rt.Heartbeat(ctx)

	case protocol.EventWaitFor:
		return r.rt.WaitFor(ctx, waitDuration(ev.WaitFor))

	case protocol.EventWaitUntil:
		t, err := time.Parse(time.RFC3339, ev.WaitUntil.Timestamp)
		if err != nil {
			return fmt.Errorf("parse wait.until timestamp %q: %w", ev.WaitUntil.Timestamp, err)
		}
		return r.rt.WaitUntil(ctx, t)

	case protocol.EventLog:
		attrs := ev.Log.Attributes
		if len(attrs) == 0 {
			// The logging operation's convention is "no attributes", not an
			// empty mapping.
			attrs = nil
		}
		return r.rt.Log(ctx, ev.Log.Message, attrs)

	case protocol.EventMetadataSet:
		return r.rt.SetMetadata(ctx, ev.Metadata.Key, ev.Metadata.Value)

	case protocol.EventMetadataAppend:
		return r.rt.AppendMetadata(ctx, ev.Metadata.Key, ev.Metadata.Value)

	default:
		// Unrecognized event kinds are a forward-compatible no-op.
		return nil
	}
}

func waitDuration(p *protocol.WaitForPayload) runtime.WaitDuration {
	deref := func(v *int) int {
		if v == nil {
			return 0
		}
		return *v
	}
	return runtime.WaitDuration{
		Seconds: deref(p.Seconds),
		Minutes: deref(p.Minutes),
		Hours:   deref(p.Hours),
		Days:    deref(p.Days),
		Weeks:   deref(p.Weeks),
		Months:  deref(p.Months),
		Years:   deref(p.Years),
	}
}
