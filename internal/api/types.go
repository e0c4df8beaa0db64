package api

import (
	"encoding/json"

	"github.com/banphlet/trigger.dev-rails/internal/runs"
)

// HealthzResponse is returned from GET /healthz.
type HealthzResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	TasksConfigured int    `json:"tasks_configured"`
}

// RunDetailResponse is returned from GET /api/v1/runs/{runID}.
type RunDetailResponse struct {
	Run      *runs.Run       `json:"run"`
	Metadata json.RawMessage `json:"metadata"`
	Waits    []*runs.Wait    `json:"waits,omitempty"`
}

// TriggerRequest is the body of POST /api/v1/tasks/{task}/trigger.
type TriggerRequest struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TriggerResponse is returned from a trigger request. Result fields are only
// populated for synchronous triggers.
type TriggerResponse struct {
	Run    *runs.Run `json:"run"`
	Stdout string    `json:"stdout,omitempty"`
	Stderr string    `json:"stderr,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
