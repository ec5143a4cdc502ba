package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"relay/internal/types"
)

var (
	bucketRuns        = []byte("runs")
	bucketRunMessages = []byte("run_messages")
)

type bboltRepository struct {
	db       *bolt.DB
	runs     RunStore
	messages RunMessageStore
}

func NewBboltRepository(path string) (Repository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repository db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &bboltRepository{
		db:       db,
		runs:     &bboltRunStore{db: db},
		messages: &bboltRunMessageStore{db: db},
	}, nil
}

func initSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRuns); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketRunMessages)
		return err
	})
}

func (r *bboltRepository) Runs() RunStore {
	return r.runs
}

func (r *bboltRepository) RunMessages() RunMessageStore {
	return r.messages
}

func (r *bboltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type bboltRunStore struct {
	db *bolt.DB
}

func (s *bboltRunStore) Insert(ctx context.Context, run *types.Run) error {
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return errors.New("run requires an id")
	}
	raw, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return errors.New("runs bucket missing")
		}
		if existing := b.Get([]byte(run.ID)); existing != nil {
			return fmt.Errorf("run %s already exists", run.ID)
		}
		return b.Put([]byte(run.ID), raw)
	})
}

func (s *bboltRunStore) Update(ctx context.Context, id string, update types.RunUpdate) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("run id is required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return errors.New("runs bucket missing")
		}
		raw := b.Get([]byte(id))
		if len(raw) == 0 {
			return fmt.Errorf("run %s not found", id)
		}
		var run types.Run
		if err := json.Unmarshal(raw, &run); err != nil {
			return err
		}
		applyRunUpdate(&run, update)
		next, err := json.Marshal(&run)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), next)
	})
}

func applyRunUpdate(run *types.Run, update types.RunUpdate) {
	if update.SessionID != nil {
		run.SessionID = *update.SessionID
	}
	if update.Status != nil {
		run.Status = *update.Status
	}
	if update.ResultType != nil {
		run.ResultType = *update.ResultType
	}
	if update.ResultJSON != nil {
		run.ResultJSON = *update.ResultJSON
	}
	if update.DurationMs != nil {
		v := *update.DurationMs
		run.DurationMs = &v
	}
}

func (s *bboltRunStore) Get(ctx context.Context, id string) (*types.Run, bool, error) {
	var (
		run *types.Run
		ok  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(id))
		if len(raw) == 0 {
			return nil
		}
		var item types.Run
		if err := json.Unmarshal(raw, &item); err != nil {
			return err
		}
		run = types.CloneRun(&item)
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return run, ok, nil
}

func (s *bboltRunStore) List(ctx context.Context, filter RunFilter) ([]*types.Run, error) {
	out := make([]*types.Run, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var run types.Run
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if !matchesFilter(&run, filter) {
				return nil
			}
			out = append(out, types.CloneRun(&run))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matchesFilter(run *types.Run, filter RunFilter) bool {
	if filter.Status != "" && run.Status != filter.Status {
		return false
	}
	if filter.SessionID != "" && run.SessionID != filter.SessionID {
		return false
	}
	if filter.ParentSessionID != "" && run.ParentSessionID != filter.ParentSessionID {
		return false
	}
	return true
}

func (s *bboltRunStore) LatestBySession(ctx context.Context, sessionID string) (*types.Run, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false, errors.New("session id is required")
	}
	runs, err := s.List(ctx, RunFilter{SessionID: sessionID})
	if err != nil {
		return nil, false, err
	}
	if len(runs) == 0 {
		return nil, false, nil
	}
	// List sorts newest first.
	return runs[0], true, nil
}

func (s *bboltRunStore) ListSessions(ctx context.Context) ([]*types.SessionSummary, error) {
	runs, err := s.List(ctx, RunFilter{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.SessionSummary)
	for _, run := range runs {
		if run.SessionID == "" {
			continue
		}
		summary, ok := byID[run.SessionID]
		if !ok {
			summary = &types.SessionSummary{
				SessionID:  run.SessionID,
				Cwd:        run.Cwd,
				FirstRunAt: run.CreatedAt,
				LastRunAt:  run.CreatedAt,
			}
			byID[run.SessionID] = summary
		}
		summary.RunCount++
		if run.CreatedAt.Before(summary.FirstRunAt) {
			summary.FirstRunAt = run.CreatedAt
			summary.Cwd = run.Cwd
		}
		if run.CreatedAt.After(summary.LastRunAt) {
			summary.LastRunAt = run.CreatedAt
		}
	}
	out := make([]*types.SessionSummary, 0, len(byID))
	for _, summary := range byID {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastRunAt.After(out[j].LastRunAt)
	})
	return out, nil
}

type bboltRunMessageStore struct {
	db *bolt.DB
}

// messageKey orders records by index within a run under a flat bucket.
func messageKey(runID string, index int) []byte {
	return []byte(fmt.Sprintf("%s/%010d", runID, index))
}

func messagePrefix(runID string) []byte {
	return []byte(runID + "/")
}

func (s *bboltRunMessageStore) InsertBatch(ctx context.Context, records []*types.RunMessage) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRunMessages)
		if b == nil {
			return errors.New("run messages bucket missing")
		}
		for _, record := range records {
			if record == nil || strings.TrimSpace(record.RunID) == "" {
				return errors.New("run message requires a run id")
			}
			raw, err := json.Marshal(record)
			if err != nil {
				return err
			}
			if err := b.Put(messageKey(record.RunID, record.Index), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *bboltRunMessageStore) List(ctx context.Context, runID string, limit int) ([]*types.RunMessage, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	out := make([]*types.RunMessage, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRunMessages)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefix := messagePrefix(runID)
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var record types.RunMessage
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			out = append(out, &record)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *bboltRunMessageStore) Count(ctx context.Context, runID string) (int, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return 0, errors.New("run id is required")
	}
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRunMessages)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefix := messagePrefix(runID)
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
