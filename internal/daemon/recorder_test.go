package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"relay/internal/types"
)

// captureMessageStore records every InsertBatch call; failErr makes all
// inserts fail.
type captureMessageStore struct {
	mu      sync.Mutex
	batches [][]*types.RunMessage
	failErr error
}

func (s *captureMessageStore) InsertBatch(ctx context.Context, records []*types.RunMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := append([]*types.RunMessage{}, records...)
	s.batches = append(s.batches, batch)
	return s.failErr
}

func (s *captureMessageStore) List(ctx context.Context, runID string, limit int) ([]*types.RunMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.RunMessage
	for _, batch := range s.batches {
		for _, rec := range batch {
			if rec.RunID == runID {
				out = append(out, rec)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *captureMessageStore) Count(ctx context.Context, runID string) (int, error) {
	records, err := s.List(ctx, runID, 0)
	return len(records), err
}

func (s *captureMessageStore) snapshot() [][]*types.RunMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]*types.RunMessage{}, s.batches...)
}

func agentMsg(t *testing.T, line string) *types.AgentMessage {
	t.Helper()
	msg, err := types.ParseAgentMessage([]byte(line))
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return msg
}

func TestRecorderFlushesBySize(t *testing.T) {
	ctx := context.Background()
	sink := &captureMessageStore{}
	rec := newRunRecorder("r1", sink, nil, 3, time.Hour)

	for i := 0; i < 7; i++ {
		rec.Record(ctx, agentMsg(t, fmt.Sprintf(`{"type":"assistant","n":%d}`, i)))
	}
	rec.Close(ctx)

	batches := sink.snapshot()
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 3 || len(batches[1]) != 3 || len(batches[2]) != 1 {
		t.Fatalf("unexpected batch sizes: %d %d %d", len(batches[0]), len(batches[1]), len(batches[2]))
	}

	next := 0
	for _, batch := range batches {
		for _, record := range batch {
			if record.Index != next {
				t.Fatalf("expected index %d, got %d", next, record.Index)
			}
			if record.RunID != "r1" || record.MessageType != "assistant" {
				t.Fatalf("unexpected record: %+v", record)
			}
			next++
		}
	}
}

func TestRecorderFlushesByTime(t *testing.T) {
	ctx := context.Background()
	sink := &captureMessageStore{}
	rec := newRunRecorder("r1", sink, nil, 100, 20*time.Millisecond)

	rec.Record(ctx, agentMsg(t, `{"type":"assistant","n":0}`))
	rec.Record(ctx, agentMsg(t, `{"type":"assistant","n":1}`))

	deadline := time.Now().Add(5 * time.Second)
	for {
		if batches := sink.snapshot(); len(batches) == 1 {
			if len(batches[0]) != 2 {
				t.Fatalf("expected 2 records in timer flush, got %d", len(batches[0]))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timer flush never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Nothing buffered, so Close must not produce an empty batch.
	rec.Close(ctx)
	if batches := sink.snapshot(); len(batches) != 1 {
		t.Fatalf("expected no extra flush, got %d batches", len(batches))
	}
}

func TestRecorderFinalFlushOnClose(t *testing.T) {
	ctx := context.Background()
	sink := &captureMessageStore{}
	rec := newRunRecorder("r1", sink, nil, 50, time.Hour)

	for i := 0; i < 4; i++ {
		rec.Record(ctx, agentMsg(t, `{"type":"assistant"}`))
	}
	rec.Close(ctx)

	batches := sink.snapshot()
	if len(batches) != 1 || len(batches[0]) != 4 {
		t.Fatalf("expected one final batch of 4, got %+v", batches)
	}
}

func TestRecorderSwallowsFlushFailures(t *testing.T) {
	ctx := context.Background()
	sink := &captureMessageStore{failErr: errors.New("disk full")}
	rec := newRunRecorder("r1", sink, nil, 2, time.Hour)

	for i := 0; i < 4; i++ {
		rec.Record(ctx, agentMsg(t, `{"type":"assistant"}`))
	}
	rec.Close(ctx)

	// Failures never interrupt recording; index assignment continues.
	batches := sink.snapshot()
	if len(batches) != 2 {
		t.Fatalf("expected 2 attempted batches, got %d", len(batches))
	}
	if batches[1][1].Index != 3 {
		t.Fatalf("expected final index 3, got %d", batches[1][1].Index)
	}
}

func TestRecordBranchDrainsAndFlushes(t *testing.T) {
	src := newScriptedSource(nil,
		`{"type":"system","subtype":"init","session_id":"s1"}`,
		`{"type":"assistant"}`,
		`{"type":"result","subtype":"success"}`,
	)
	sink := &captureMessageStore{}
	rec := newRunRecorder("r1", sink, nil, 50, time.Hour)

	recordBranch(context.Background(), src, rec)

	count, err := sink.Count(context.Background(), "r1")
	if err != nil || count != 3 {
		t.Fatalf("expected 3 recorded messages, got %d err=%v", count, err)
	}
}
