package types

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrMissingMessageType = errors.New("message has no type tag")

const (
	MessageTypeSystem    = "system"
	MessageTypeAssistant = "assistant"
	MessageTypeUser      = "user"
	MessageTypeResult    = "result"

	MessageSubtypeInit = "init"
)

// AgentMessage is one line of the provider's stream-json output. Raw keeps
// the full line exactly as emitted; the tagged fields are the subset the
// run lifecycle cares about.
type AgentMessage struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// ParseAgentMessage decodes a single stream-json line. Lines without a type
// tag are rejected; everything else is passed through untouched in Raw.
func ParseAgentMessage(line []byte) (*AgentMessage, error) {
	var msg AgentMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.Type) == "" {
		return nil, ErrMissingMessageType
	}
	msg.Raw = append(json.RawMessage{}, line...)
	return &msg, nil
}

func (m *AgentMessage) IsInit() bool {
	return m != nil && m.Type == MessageTypeSystem && m.Subtype == MessageSubtypeInit
}

func (m *AgentMessage) IsResult() bool {
	return m != nil && m.Type == MessageTypeResult
}

// ResultDenotesError reports whether the terminal result subtype classifies
// the turn as failed. The CLI emits "success" on success and error_* on
// failure; the prefix is the provider's contract.
func (m *AgentMessage) ResultDenotesError() bool {
	return m != nil && strings.HasPrefix(m.Subtype, "error")
}

// ResultFields extracts the summary fields webhooks and results report from
// a terminal message. Missing fields come back zero-valued.
type ResultFields struct {
	DurationMs int64
	CostUSD    float64
	Result     string
	IsError    bool
}

func (m *AgentMessage) ResultSummary() ResultFields {
	var out ResultFields
	if m == nil || len(m.Raw) == 0 {
		return out
	}
	var body struct {
		DurationMs int64   `json:"duration_ms"`
		CostUSD    float64 `json:"total_cost_usd"`
		Result     string  `json:"result"`
		IsError    bool    `json:"is_error"`
	}
	if err := json.Unmarshal(m.Raw, &body); err != nil {
		return out
	}
	out.DurationMs = body.DurationMs
	out.CostUSD = body.CostUSD
	out.Result = body.Result
	out.IsError = body.IsError
	return out
}
