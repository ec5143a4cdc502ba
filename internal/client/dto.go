package client

import "relay/internal/types"

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	PID     int    `json:"pid"`
}

type ImageAttachment struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type StartRunRequest struct {
	Cwd        string            `json:"cwd"`
	Prompt     string            `json:"prompt"`
	Images     []ImageAttachment `json:"images,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Model      string            `json:"model,omitempty"`
	MaxTurns   int               `json:"max_turns,omitempty"`
}

type ContinueRunRequest struct {
	SessionID  string            `json:"session_id"`
	Prompt     string            `json:"prompt"`
	Images     []ImageAttachment `json:"images,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Model      string            `json:"model,omitempty"`
	MaxTurns   int               `json:"max_turns,omitempty"`
}

type RunsResponse struct {
	Runs []*types.Run `json:"runs"`
}

type RunMessagesResponse struct {
	Messages []*types.RunMessage `json:"messages"`
}

type SessionsResponse struct {
	Sessions []*types.SessionSummary `json:"sessions"`
}

type ActiveRunsResponse struct {
	Active []types.ActiveRun `json:"active"`
}
