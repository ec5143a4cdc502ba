package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"relay/internal/types"
)

// scriptedSource yields a fixed message sequence, then endErr (io.EOF when
// nil). done closes once the sequence is exhausted.
type scriptedSource struct {
	msgs   []*types.AgentMessage
	endErr error
	pos    int
	done   chan struct{}
}

func newScriptedSource(endErr error, lines ...string) *scriptedSource {
	src := &scriptedSource{endErr: endErr, done: make(chan struct{})}
	for _, line := range lines {
		msg, err := types.ParseAgentMessage([]byte(line))
		if err != nil {
			panic(fmt.Sprintf("bad scripted line %q: %v", line, err))
		}
		src.msgs = append(src.msgs, msg)
	}
	return src
}

func (s *scriptedSource) Next(ctx context.Context) (*types.AgentMessage, error) {
	if s.pos < len(s.msgs) {
		msg := s.msgs[s.pos]
		s.pos++
		return msg, nil
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.endErr != nil {
		return nil, s.endErr
	}
	return nil, io.EOF
}

func waitForSource(t *testing.T, src *scriptedSource) {
	t.Helper()
	select {
	case <-src.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("source never drained")
	}
}

func drainBranch(t *testing.T, branch *teeBranch) ([]*types.AgentMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []*types.AgentMessage
	for {
		msg, err := branch.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}

func TestTeeDeliversToBothBranchesInOrder(t *testing.T) {
	src := newScriptedSource(nil,
		`{"type":"system","subtype":"init","session_id":"s1"}`,
		`{"type":"assistant"}`,
		`{"type":"result","subtype":"success"}`,
	)
	a, b := teeTurnStream(context.Background(), src, 16)
	waitForSource(t, src)

	for name, branch := range map[string]*teeBranch{"a": a, "b": b} {
		msgs, err := drainBranch(t, branch)
		if !errors.Is(err, io.EOF) {
			t.Fatalf("branch %s: expected EOF, got %v", name, err)
		}
		if len(msgs) != 3 {
			t.Fatalf("branch %s: expected 3 messages, got %d", name, len(msgs))
		}
		if msgs[0].Type != "system" || msgs[1].Type != "assistant" || msgs[2].Type != "result" {
			t.Fatalf("branch %s: order broken: %v %v %v", name, msgs[0].Type, msgs[1].Type, msgs[2].Type)
		}
	}
}

func TestTeePropagatesSourceError(t *testing.T) {
	boom := errors.New("stream broke")
	src := newScriptedSource(boom, `{"type":"assistant"}`)
	a, b := teeTurnStream(context.Background(), src, 16)
	waitForSource(t, src)

	for name, branch := range map[string]*teeBranch{"a": a, "b": b} {
		msgs, err := drainBranch(t, branch)
		if len(msgs) != 1 {
			t.Fatalf("branch %s: expected buffered message before error, got %d", name, len(msgs))
		}
		if !errors.Is(err, boom) {
			t.Fatalf("branch %s: expected source error, got %v", name, err)
		}
	}
}

func TestTeeBoundsBacklog(t *testing.T) {
	lines := make([]string, 5)
	for i := range lines {
		lines[i] = fmt.Sprintf(`{"type":"assistant","n":%d}`, i)
	}
	src := newScriptedSource(nil, lines...)
	a, b := teeTurnStream(context.Background(), src, 2)
	waitForSource(t, src)

	// Neither branch consumed while the pump ran, so both hold the two
	// buffered messages and then report the overflow.
	for name, branch := range map[string]*teeBranch{"a": a, "b": b} {
		msgs, err := drainBranch(t, branch)
		if len(msgs) != 2 {
			t.Fatalf("branch %s: expected 2 buffered messages, got %d", name, len(msgs))
		}
		if !errors.Is(err, ErrBranchLagging) {
			t.Fatalf("branch %s: expected ErrBranchLagging, got %v", name, err)
		}
	}
}

func TestTeeAbandonedBranchDoesNotStopSibling(t *testing.T) {
	src := newScriptedSource(nil,
		`{"type":"assistant","n":0}`,
		`{"type":"assistant","n":1}`,
		`{"type":"assistant","n":2}`,
	)
	a, b := teeTurnStream(context.Background(), src, 16)
	a.Close()
	waitForSource(t, src)

	msgs, err := drainBranch(t, b)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("sibling: expected EOF, got %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("sibling: expected all 3 messages, got %d", len(msgs))
	}
}
