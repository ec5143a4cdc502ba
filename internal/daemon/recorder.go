package daemon

import (
	"context"
	"sync"
	"time"

	"relay/internal/logging"
	"relay/internal/store"
	"relay/internal/types"
)

const (
	defaultRecorderBatchSize     = 50
	defaultRecorderFlushInterval = time.Second
)

// runRecorder buffers provider messages and flushes them to the message
// store in batches, by size or by time since the first buffered record,
// whichever comes first. Indexes are assigned on receipt, so the persisted
// sequence for a run is 0..N-1 with no gaps regardless of batch
// boundaries. Flush failures are logged and swallowed; recording is a
// best-effort side channel that must never disturb the run itself.
type runRecorder struct {
	runID         string
	messages      store.RunMessageStore
	logger        logging.Logger
	batchSize     int
	flushInterval time.Duration

	mu    sync.Mutex
	buf   []*types.RunMessage
	next  int
	timer *time.Timer
}

func newRunRecorder(runID string, messages store.RunMessageStore, logger logging.Logger, batchSize int, flushInterval time.Duration) *runRecorder {
	if batchSize <= 0 {
		batchSize = defaultRecorderBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultRecorderFlushInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &runRecorder{
		runID:         runID,
		messages:      messages,
		logger:        logger,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (r *runRecorder) Record(ctx context.Context, msg *types.AgentMessage) {
	if r == nil || msg == nil {
		return
	}
	r.mu.Lock()
	record := &types.RunMessage{
		RunID:       r.runID,
		Index:       r.next,
		MessageType: msg.Type,
		Payload:     append([]byte{}, msg.Raw...),
		CreatedAt:   time.Now().UTC(),
	}
	r.next++
	r.buf = append(r.buf, record)
	if len(r.buf) >= r.batchSize {
		r.flushLocked(ctx)
		r.mu.Unlock()
		return
	}
	if len(r.buf) == 1 {
		r.timer = time.AfterFunc(r.flushInterval, r.flushOnTimer)
	}
	r.mu.Unlock()
}

func (r *runRecorder) flushOnTimer() {
	r.mu.Lock()
	r.flushLocked(context.Background())
	r.mu.Unlock()
}

// Close flushes whatever is still buffered. Called exactly once, after the
// recording branch has drained.
func (r *runRecorder) Close(ctx context.Context) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.flushLocked(ctx)
	r.mu.Unlock()
}

// flushLocked resets the buffer and cancels the pending timer before
// inserting, so a slow insert never blocks index assignment correctness.
func (r *runRecorder) flushLocked(ctx context.Context) {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if len(r.buf) == 0 {
		return
	}
	batch := r.buf
	r.buf = nil
	if err := r.messages.InsertBatch(ctx, batch); err != nil {
		r.logger.Warn("run message flush failed",
			logging.F("run_id", r.runID),
			logging.F("count", len(batch)),
			logging.F("err", err),
		)
	}
}

// recordBranch drains one tee branch into the recorder and performs the
// final flush. Branch errors end recording but are otherwise swallowed.
func recordBranch(ctx context.Context, branch messageSource, recorder *runRecorder) {
	for {
		msg, err := branch.Next(ctx)
		if err != nil {
			break
		}
		recorder.Record(ctx, msg)
	}
	recorder.Close(ctx)
}
