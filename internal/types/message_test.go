package types

import (
	"errors"
	"testing"
)

func TestParseAgentMessage(t *testing.T) {
	line := `{"type":"system","subtype":"init","session_id":"s1","tools":["bash"]}`
	msg, err := ParseAgentMessage([]byte(line))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Type != MessageTypeSystem || msg.Subtype != MessageSubtypeInit || msg.SessionID != "s1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if string(msg.Raw) != line {
		t.Fatalf("raw not preserved: %s", msg.Raw)
	}
	if !msg.IsInit() || msg.IsResult() {
		t.Fatalf("classification wrong: %+v", msg)
	}
}

func TestParseAgentMessageRejectsUntyped(t *testing.T) {
	if _, err := ParseAgentMessage([]byte(`{"subtype":"init"}`)); !errors.Is(err, ErrMissingMessageType) {
		t.Fatalf("expected ErrMissingMessageType, got %v", err)
	}
	if _, err := ParseAgentMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestResultDenotesError(t *testing.T) {
	cases := []struct {
		subtype string
		isErr   bool
	}{
		{"success", false},
		{"error_max_turns", true},
		{"error_during_execution", true},
		{"error", true},
		{"", false},
	}
	for _, tc := range cases {
		msg := &AgentMessage{Type: MessageTypeResult, Subtype: tc.subtype}
		if msg.ResultDenotesError() != tc.isErr {
			t.Fatalf("subtype %q: expected isErr=%v", tc.subtype, tc.isErr)
		}
	}
}

func TestResultSummary(t *testing.T) {
	line := `{"type":"result","subtype":"success","duration_ms":1200,"total_cost_usd":0.05,"result":"all good","is_error":false}`
	msg, err := ParseAgentMessage([]byte(line))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	summary := msg.ResultSummary()
	if summary.DurationMs != 1200 || summary.CostUSD != 0.05 || summary.Result != "all good" || summary.IsError {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var nilMsg *AgentMessage
	if got := nilMsg.ResultSummary(); got != (ResultFields{}) {
		t.Fatalf("nil message should yield zero summary, got %+v", got)
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if RunStatusRunning.Terminal() {
		t.Fatalf("running must not be terminal")
	}
	for _, status := range []RunStatus{RunStatusCompleted, RunStatusError, RunStatusCancelled} {
		if !status.Terminal() {
			t.Fatalf("%s must be terminal", status)
		}
	}
}
