package store

import (
	"context"

	"relay/internal/types"
)

// RunFilter narrows List results. Zero values match everything.
type RunFilter struct {
	Status          types.RunStatus
	SessionID       string
	ParentSessionID string
}

type RunStore interface {
	Insert(ctx context.Context, run *types.Run) error
	Update(ctx context.Context, id string, update types.RunUpdate) error
	Get(ctx context.Context, id string) (*types.Run, bool, error)
	List(ctx context.Context, filter RunFilter) ([]*types.Run, error)
	// LatestBySession returns the most recently created run carrying the
	// session id, used to derive cwd for resume/fork.
	LatestBySession(ctx context.Context, sessionID string) (*types.Run, bool, error)
	// ListSessions groups runs by session id into derived summaries.
	ListSessions(ctx context.Context) ([]*types.SessionSummary, error)
}

type RunMessageStore interface {
	// InsertBatch writes all records in one transaction. Atomic per call.
	InsertBatch(ctx context.Context, records []*types.RunMessage) error
	// List returns records for a run ordered by index. limit <= 0 means all.
	List(ctx context.Context, runID string, limit int) ([]*types.RunMessage, error)
	Count(ctx context.Context, runID string) (int, error)
}

type Repository interface {
	Runs() RunStore
	RunMessages() RunMessageStore
	Close() error
}
