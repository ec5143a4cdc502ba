package daemon

import (
	"context"
	"errors"
	"io"
	"sync"

	"relay/internal/types"
)

// ErrBranchLagging ends a tee branch whose consumer fell more than the
// configured backlog behind the source.
var ErrBranchLagging = errors.New("tee branch lagging behind source")

const defaultTeeMaxLag = 1024

// messageSource is the pull interface shared by TurnStream and tee
// branches, so consumers never care which side of the tee they hold.
type messageSource interface {
	Next(ctx context.Context) (*types.AgentMessage, error)
}

// teeTurnStream duplicates src into two branches consumed at independent
// pace. Every source message reaches both branches in order; a source
// error reaches both; a failed or abandoned branch never blocks the other.
// Backlog per branch is bounded by maxLag: the branch that overflows is
// failed with ErrBranchLagging while delivery to the other continues.
func teeTurnStream(ctx context.Context, src messageSource, maxLag int) (*teeBranch, *teeBranch) {
	if maxLag <= 0 {
		maxLag = defaultTeeMaxLag
	}
	a := newTeeBranch(maxLag)
	b := newTeeBranch(maxLag)
	go func() {
		for {
			msg, err := src.Next(ctx)
			if err != nil {
				a.finish(err)
				b.finish(err)
				return
			}
			a.deliver(msg)
			b.deliver(msg)
		}
	}()
	return a, b
}

type teeBranch struct {
	ch chan *types.AgentMessage

	mu        sync.Mutex
	err       error
	dead      bool // pump stopped delivering; ch closed
	abandoned bool // consumer walked away
}

func newTeeBranch(maxLag int) *teeBranch {
	return &teeBranch{ch: make(chan *types.AgentMessage, maxLag)}
}

// deliver runs on the pump goroutine only; it is the sole sender and
// closer of b.ch.
func (b *teeBranch) deliver(msg *types.AgentMessage) {
	b.mu.Lock()
	if b.dead {
		b.mu.Unlock()
		return
	}
	if b.abandoned {
		b.dead = true
		close(b.ch)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	select {
	case b.ch <- msg:
	default:
		b.mu.Lock()
		b.err = ErrBranchLagging
		b.dead = true
		close(b.ch)
		b.mu.Unlock()
	}
}

func (b *teeBranch) finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead {
		return
	}
	if err != nil && !errors.Is(err, io.EOF) {
		b.err = err
	}
	b.dead = true
	close(b.ch)
}

func (b *teeBranch) endErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	return io.EOF
}

// Next returns the next duplicated message, io.EOF on clean end, or the
// propagated source/branch error. Buffered messages drain before the end
// condition is reported.
func (b *teeBranch) Next(ctx context.Context) (*types.AgentMessage, error) {
	select {
	case msg, ok := <-b.ch:
		if !ok {
			return nil, b.endErr()
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close abandons the branch; the pump stops delivering to it without
// affecting its sibling.
func (b *teeBranch) Close() {
	b.mu.Lock()
	b.abandoned = true
	b.mu.Unlock()
}
