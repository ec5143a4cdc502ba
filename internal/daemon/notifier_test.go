package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relay/internal/types"
)

func TestWebhookNotifierPostsEvent(t *testing.T) {
	received := make(chan types.WebhookEvent, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event types.WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("decode event: %v", err)
		}
		received <- event
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(time.Second, nil)
	notifier.Dispatch(server.URL, types.WebhookEvent{
		Event:     types.WebhookRunStarted,
		RunID:     "r1",
		Timestamp: time.Now().UTC(),
		Payload:   types.RunStartedPayload{Mode: types.RunModeFresh, Cwd: "/tmp"},
	})

	select {
	case event := <-received:
		if event.Event != types.WebhookRunStarted || event.RunID != "r1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("webhook never delivered")
	}
}

func TestWebhookNotifierEmptyURLIsNoop(t *testing.T) {
	notifier := NewWebhookNotifier(time.Second, nil)
	// Must not panic or block.
	notifier.Dispatch("", types.WebhookEvent{Event: types.WebhookRunStarted})
	notifier.Dispatch("   ", types.WebhookEvent{Event: types.WebhookRunStarted})
}

func TestWebhookNotifierSwallowsRejection(t *testing.T) {
	hit := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(time.Second, nil)
	notifier.Dispatch(server.URL, types.WebhookEvent{Event: types.WebhookRunCompleted, RunID: "r1"})

	select {
	case <-hit:
	case <-time.After(5 * time.Second):
		t.Fatalf("webhook never attempted")
	}
}
