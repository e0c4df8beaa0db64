package runs

import "time"

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSignaled  Status = "signaled"
)

// Run is one script invocation supervised by the host.
type Run struct {
	ID              string     `json:"id"`
	Task            string     `json:"task,omitempty"`
	ScriptPath      string     `json:"script_path"`
	ScriptHash      string     `json:"script_hash"`
	Status          Status     `json:"status"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	StderrTail      *string    `json:"stderr_tail,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
}

// Wait is one durable wait recorded for a run.
type Wait struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Kind        string     `json:"kind"` // "for" or "until"
	ResumeAt    time.Time  `json:"resume_at"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateRequest describes a new run row.
type CreateRequest struct {
	Task       string
	ScriptPath string
	ScriptHash string
}
