package daemon

import (
	"context"
	"errors"
	"io"
	"sync"

	"relay/internal/types"
)

// ErrTurnCancelled ends a turn stream whose context was cancelled before
// the provider finished.
var ErrTurnCancelled = errors.New("turn cancelled")

// ImageAttachment is an inline image sent alongside the prompt.
type ImageAttachment struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

// InvokeRequest describes one turn handed to the provider. The provider is
// always configured to branch session history, so resuming never mutates
// the original session.
type InvokeRequest struct {
	Cwd             string
	Prompt          string
	Images          []ImageAttachment
	ResumeSessionID string
	Model           string
	MaxTurns        int
	IncludePartial  bool
}

// Provider executes one streamed turn and exposes it as a pull-based
// message stream.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, req InvokeRequest) (*TurnStream, error)
}

// TurnStream is the pull side of one provider turn. Next blocks until the
// provider yields a message, the turn ends (io.EOF), or the stream fails.
// A stalled consumer stalls the provider; cancelling the invoke context is
// the only external unblocking mechanism.
type TurnStream struct {
	msgs <-chan *types.AgentMessage

	mu  sync.Mutex
	err error
}

func newTurnStream(msgs <-chan *types.AgentMessage) *TurnStream {
	return &TurnStream{msgs: msgs}
}

// fail records the stream error reported once the message channel drains.
// The first error wins.
func (s *TurnStream) fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *TurnStream) endErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return io.EOF
}

// Next returns the next message. It returns io.EOF on clean turn end and
// the recorded stream error otherwise.
func (s *TurnStream) Next(ctx context.Context) (*types.AgentMessage, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, s.endErr()
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
