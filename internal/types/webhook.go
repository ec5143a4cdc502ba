package types

import "time"

type WebhookEventName string

const (
	WebhookRunStarted   WebhookEventName = "run.started"
	WebhookRunCompleted WebhookEventName = "run.completed"
	WebhookRunFailed    WebhookEventName = "run.failed"
	WebhookRunError     WebhookEventName = "run.error"
	WebhookRunCancelled WebhookEventName = "run.cancelled"
)

// WebhookEvent is the envelope POSTed to a caller-supplied URL. Payload
// shape varies by event name.
type WebhookEvent struct {
	Event     WebhookEventName `json:"event"`
	RunID     string           `json:"run_id"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   any              `json:"payload,omitempty"`
}

type RunStartedPayload struct {
	Mode RunMode `json:"mode"`
	Cwd  string  `json:"cwd"`
}

type RunCompletedPayload struct {
	DurationMs int64   `json:"duration_ms"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	Result     string  `json:"result,omitempty"`
}

type RunFailedPayload struct {
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type RunErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type RunCancelledPayload struct {
	DurationMs int64 `json:"duration_ms"`
}
