package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"relay/internal/logging"
	"relay/internal/types"
)

const defaultWebhookTimeout = 10 * time.Second

// lifecycleNotifier is the best-effort side channel for run lifecycle
// events. Dispatch never blocks the run and never reports failure.
type lifecycleNotifier interface {
	Dispatch(url string, event types.WebhookEvent)
}

type NopNotifier struct{}

func (NopNotifier) Dispatch(string, types.WebhookEvent) {}

// WebhookNotifier POSTs lifecycle events to a caller-supplied URL on a
// background goroutine. Timeouts and non-2xx responses are logged, never
// retried, never surfaced.
type WebhookNotifier struct {
	client *http.Client
	logger logging.Logger
}

func NewWebhookNotifier(timeout time.Duration, logger logging.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (n *WebhookNotifier) Dispatch(url string, event types.WebhookEvent) {
	if n == nil {
		return
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	go n.post(url, event)
}

func (n *WebhookNotifier) post(url string, event types.WebhookEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("webhook payload marshal failed",
			logging.F("event", string(event.Event)),
			logging.F("err", err),
		)
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook dispatch failed",
			logging.F("event", string(event.Event)),
			logging.F("run_id", event.RunID),
			logging.F("err", err),
		)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Warn("webhook dispatch rejected",
			logging.F("event", string(event.Event)),
			logging.F("run_id", event.RunID),
			logging.F("status", resp.StatusCode),
		)
	}
}
