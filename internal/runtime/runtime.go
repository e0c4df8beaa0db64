package runtime

import (
	"context"
	"encoding/json"
	"time"
)

//go:generate mockgen -destination=mocks/mock_runtime.go -package=mocks github.com/banphlet/trigger.dev-rails/internal/runtime Runtime

// Runtime is the set of host operations a supervised script can request
// through control events. Implementations must be safe for use from the
// single event-handling goroutine of one invocation; operations may take
// arbitrarily long (durable waits in particular).
type Runtime interface {
	// Heartbeat refreshes the run's keep-alive timestamp.
	Heartbeat(ctx context.Context) error

	// WaitFor performs a durable relative wait. A zero duration returns
	// immediately.
	WaitFor(ctx context.Context, d WaitDuration) error

	// WaitUntil performs a durable wait until the given instant. Instants in
	// the past return immediately.
	WaitUntil(ctx context.Context, t time.Time) error

	// Log emits a structured log line on the script's behalf. attrs may be
	// nil, meaning no attributes.
	Log(ctx context.Context, message string, attrs map[string]any) error

	// SetMetadata assigns a value in the run's metadata document.
	SetMetadata(ctx context.Context, key string, value json.RawMessage) error

	// AppendMetadata appends a value to the array at key in the run's
	// metadata document.
	AppendMetadata(ctx context.Context, key string, value json.RawMessage) error
}

// WaitDuration is the set of duration components of a relative wait.
// Unset components are zero; components combine additively.
type WaitDuration struct {
	Seconds int
	Minutes int
	Hours   int
	Days    int
	Weeks   int
	Months  int
	Years   int
}

// Calendar-free approximations; durable waits don't need month precision.
const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

func (d WaitDuration) Duration() time.Duration {
	return time.Duration(d.Seconds)*time.Second +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Days)*day +
		time.Duration(d.Weeks)*week +
		time.Duration(d.Months)*month +
		time.Duration(d.Years)*year
}
