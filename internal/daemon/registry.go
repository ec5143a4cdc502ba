package daemon

import (
	"context"
	"sort"
	"sync"
	"time"

	"relay/internal/types"
)

// activeRun pairs the registry view of a running run with its cancel
// handle. An entry exists iff the run is still running.
type activeRun struct {
	info   types.ActiveRun
	cancel context.CancelFunc
}

// activeRegistry is the process-wide index of running runs. Only the run
// service writes to it; one mutex guards the whole map so Cancel and List
// stay safe under concurrent starts.
type activeRegistry struct {
	mu   sync.Mutex
	runs map[string]*activeRun
}

func newActiveRegistry() *activeRegistry {
	return &activeRegistry{runs: make(map[string]*activeRun)}
}

func (r *activeRegistry) Add(runID string, mode types.RunMode, webhookURL string, startedAt time.Time, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = &activeRun{
		info: types.ActiveRun{
			RunID:      runID,
			Mode:       mode,
			Status:     types.RunStatusRunning,
			StartedAt:  startedAt,
			WebhookURL: webhookURL,
		},
		cancel: cancel,
	}
}

// Remove deregisters the run and reports whether this call performed the
// removal. Terminal transitions race with Cancel; exactly one wins.
func (r *activeRegistry) Remove(runID string) (types.ActiveRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[runID]
	if !ok {
		return types.ActiveRun{}, false
	}
	delete(r.runs, runID)
	return entry.info, true
}

func (r *activeRegistry) Get(runID string) (types.ActiveRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[runID]
	if !ok {
		return types.ActiveRun{}, false
	}
	return entry.info, true
}

// TakeForCancel removes the entry and hands back its cancel handle.
// Removal claims the terminal transition, so a Cancel that wins this race
// owns the status write.
func (r *activeRegistry) TakeForCancel(runID string) (context.CancelFunc, types.ActiveRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[runID]
	if !ok {
		return nil, types.ActiveRun{}, false
	}
	delete(r.runs, runID)
	entry.info.Status = types.RunStatusCancelled
	return entry.cancel, entry.info, true
}

func (r *activeRegistry) SetSessionID(runID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.runs[runID]; ok && entry.info.SessionID == "" {
		entry.info.SessionID = sessionID
	}
}

func (r *activeRegistry) List() []types.ActiveRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.ActiveRun, 0, len(r.runs))
	for _, entry := range r.runs {
		out = append(out, entry.info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *activeRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
