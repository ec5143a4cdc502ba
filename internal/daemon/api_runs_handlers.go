package daemon

import (
	"context"
	"encoding/json"
	"net/http"

	"relay/internal/store"
	"relay/internal/types"
)

// RunsCollection serves POST /v1/runs (start, blocking until terminal)
// and GET /v1/runs (list persisted runs).
func (a *API) RunsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.startRun(w, r)
	case http.MethodGet:
		a.listRuns(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (a *API) startRun(w http.ResponseWriter, r *http.Request) {
	var params StartRunParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeServiceError(w, invalidError("invalid request body", err))
		return
	}
	result, err := a.Runs.Start(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) ResumeRun(w http.ResponseWriter, r *http.Request) {
	a.continueRun(w, r, a.Runs.Resume)
}

func (a *API) ForkRun(w http.ResponseWriter, r *http.Request) {
	a.continueRun(w, r, a.Runs.Fork)
}

func (a *API) continueRun(w http.ResponseWriter, r *http.Request, invoke func(context.Context, ContinueRunParams) (*types.RunResult, error)) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var params ContinueRunParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeServiceError(w, invalidError("invalid request body", err))
		return
	}
	result, err := invoke(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status:    types.RunStatus(r.URL.Query().Get("status")),
		SessionID: r.URL.Query().Get("session_id"),
	}
	runs, err := a.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

// RunByID serves GET /v1/runs/{id}, GET /v1/runs/{id}/messages and
// POST /v1/runs/{id}/cancel.
func (a *API) RunByID(w http.ResponseWriter, r *http.Request) {
	id, rest := runPathParts(r.URL.Path)
	if id == "" {
		writeServiceError(w, invalidError("run id is required", nil))
		return
	}
	switch {
	case rest == "" && r.Method == http.MethodGet:
		detail, err := a.Runs.GetRunDetail(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case rest == "messages" && r.Method == http.MethodGet:
		limit := parseLimit(r.URL.Query().Get("limit"))
		messages, err := a.Runs.GetRunMessages(r.Context(), id, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RunMessagesResponse{Messages: messages})
	case rest == "cancel" && r.Method == http.MethodPost:
		if err := a.Runs.Cancel(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CancelRunResponse{OK: true})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (a *API) Sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	sessions, err := a.Runs.ListSessions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}

func (a *API) Active(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, ActiveRunsResponse{Active: a.Runs.ListActive()})
}
