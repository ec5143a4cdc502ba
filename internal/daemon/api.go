package daemon

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"relay/internal/logging"
	"relay/internal/types"
)

type API struct {
	Version string
	Runs    *RunService
	Logger  logging.Logger
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

type CancelRunResponse struct {
	OK bool `json:"ok"`
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", a.Health)
	mux.HandleFunc("/v1/runs", a.RunsCollection)
	mux.HandleFunc("/v1/runs/resume", a.ResumeRun)
	mux.HandleFunc("/v1/runs/fork", a.ForkRun)
	mux.HandleFunc("/v1/runs/", a.RunByID)
	mux.HandleFunc("/v1/sessions", a.Sessions)
	mux.HandleFunc("/v1/active", a.Active)
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"version": a.Version,
		"pid":     os.Getpid(),
	})
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0
	}
	return val
}

// runPathParts splits "/v1/runs/{id}" and "/v1/runs/{id}/messages".
func runPathParts(path string) (id, rest string) {
	trimmed := strings.TrimPrefix(path, "/v1/runs/")
	parts := strings.SplitN(trimmed, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return id, rest
}
