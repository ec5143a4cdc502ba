package types

import "time"

type RunMode string

const (
	RunModeFresh  RunMode = "fresh"
	RunModeResume RunMode = "resume"
	RunModeFork   RunMode = "fork"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusError, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Run is the persisted record of one provider invocation. SessionID stays
// empty until the provider announces it in the init message.
type Run struct {
	ID              string    `json:"id"`
	Cwd             string    `json:"cwd"`
	SessionID       string    `json:"session_id,omitempty"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`
	Mode            RunMode   `json:"mode"`
	Status          RunStatus `json:"status"`
	Prompt          string    `json:"prompt"`
	ResultType      string    `json:"result_type,omitempty"`
	ResultJSON      string    `json:"result_json,omitempty"`
	DurationMs      *int64    `json:"duration_ms,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// RunUpdate carries the mutable subset of a Run row. Nil fields are left
// untouched by the store.
type RunUpdate struct {
	SessionID  *string
	Status     *RunStatus
	ResultType *string
	ResultJSON *string
	DurationMs *int64
}

// RunMessage is one recorded provider message. Rows are append-only and
// indexed 0..N-1 per run with no gaps.
type RunMessage struct {
	RunID       string    `json:"run_id"`
	Index       int       `json:"index"`
	MessageType string    `json:"message_type"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunResult is what callers of Start/Resume/Fork receive. Execution
// failures land in Status/Error, never as a returned error.
type RunResult struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Status     RunStatus `json:"status"`
	ResultType string    `json:"result_type,omitempty"`
	ResultJSON string    `json:"result_json,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// RunDetail is a Run row plus its recorded message count, served by the
// single-run endpoint. The embedded fields keep the JSON flat.
type RunDetail struct {
	Run
	MessageCount int `json:"message_count"`
}

// SessionSummary is derived by grouping Run rows; it is never stored.
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	Cwd        string    `json:"cwd"`
	RunCount   int       `json:"run_count"`
	FirstRunAt time.Time `json:"first_run_at"`
	LastRunAt  time.Time `json:"last_run_at"`
}

// ActiveRun is the in-memory view of a running run. It exists in the
// registry iff the run status is running; it is lost on restart.
type ActiveRun struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Mode       RunMode   `json:"mode"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	WebhookURL string    `json:"-"`
}

func CloneRun(r *Run) *Run {
	if r == nil {
		return nil
	}
	out := *r
	if r.DurationMs != nil {
		v := *r.DurationMs
		out.DurationMs = &v
	}
	return &out
}
