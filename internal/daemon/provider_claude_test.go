package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeFakeCLI installs a shell script that mimics the agent CLI's
// stream-json stdout contract. The script ignores its arguments.
func writeFakeCLI(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

func drainStream(t *testing.T, stream *TurnStream) ([]string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var kinds []string
	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			return kinds, err
		}
		kinds = append(kinds, msg.Type)
	}
}

func TestClaudeProviderStreamsTurn(t *testing.T) {
	cli := writeFakeCLI(t, `
echo '{"type":"system","subtype":"init","session_id":"s-test"}'
echo '{"type":"assistant"}'
echo '{"type":"result","subtype":"success"}'
cat >/dev/null
`)
	provider, err := NewClaudeProvider(cli, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	stream, err := provider.Invoke(context.Background(), InvokeRequest{
		Cwd:    t.TempDir(),
		Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	kinds, err := drainStream(t, stream)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected clean end, got %v", err)
	}
	if len(kinds) != 3 || kinds[0] != "system" || kinds[2] != "result" {
		t.Fatalf("unexpected message kinds: %v", kinds)
	}
}

func TestClaudeProviderSkipsNoiseLines(t *testing.T) {
	cli := writeFakeCLI(t, `
echo 'not json at all'
echo '{"no_type":true}'
echo '{"type":"result","subtype":"success"}'
cat >/dev/null
`)
	provider, err := NewClaudeProvider(cli, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	stream, err := provider.Invoke(context.Background(), InvokeRequest{Cwd: t.TempDir(), Prompt: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	kinds, err := drainStream(t, stream)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected clean end, got %v", err)
	}
	if len(kinds) != 1 || kinds[0] != "result" {
		t.Fatalf("expected only the result line, got %v", kinds)
	}
}

func TestClaudeProviderExitBeforeResult(t *testing.T) {
	cli := writeFakeCLI(t, `
echo '{"type":"system","subtype":"init","session_id":"s-test"}'
echo 'something went wrong' >&2
exit 3
`)
	provider, err := NewClaudeProvider(cli, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	stream, err := provider.Invoke(context.Background(), InvokeRequest{Cwd: t.TempDir(), Prompt: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	_, err = drainStream(t, stream)
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected exit error, got %v", err)
	}
	if !strings.Contains(err.Error(), "provider exited before result") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "something went wrong") {
		t.Fatalf("stderr tail missing from error: %v", err)
	}
}

func TestClaudeProviderHoldsStdinOpenUntilResult(t *testing.T) {
	// The script refuses to emit its result until stdin reaches EOF. The
	// gate only closes stdin after observing a result, so a correct
	// implementation deadlocks here; an implementation that closed stdin
	// right after writing the user message would let the result through.
	cli := writeFakeCLI(t, `
echo '{"type":"system","subtype":"init","session_id":"s-test"}'
cat >/dev/null
echo '{"type":"result","subtype":"success"}'
`)
	provider, err := NewClaudeProvider(cli, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := provider.Invoke(ctx, InvokeRequest{Cwd: t.TempDir(), Prompt: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer initCancel()
	msg, err := stream.Next(initCtx)
	if err != nil || msg.Type != "system" {
		t.Fatalf("expected init message, got %v %v", msg, err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer waitCancel()
	if msg, err := stream.Next(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("result leaked through before stdin close: %v %v", msg, err)
	}

	cancel()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	for {
		_, err := stream.Next(drainCtx)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrTurnCancelled) {
			t.Fatalf("expected ErrTurnCancelled after cleanup, got %v", err)
		}
		break
	}
}

func TestClaudeProviderCancellation(t *testing.T) {
	cli := writeFakeCLI(t, `
echo '{"type":"system","subtype":"init","session_id":"s-test"}'
sleep 60
`)
	provider, err := NewClaudeProvider(cli, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := provider.Invoke(ctx, InvokeRequest{Cwd: t.TempDir(), Prompt: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	if _, err := stream.Next(waitCtx); err != nil {
		t.Fatalf("expected init message, got %v", err)
	}
	cancel()

	for {
		_, err := stream.Next(waitCtx)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrTurnCancelled) {
			t.Fatalf("expected ErrTurnCancelled, got %v", err)
		}
		break
	}
}

func TestNewClaudeProviderValidation(t *testing.T) {
	if _, err := NewClaudeProvider("  ", nil); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestBuildUserMessage(t *testing.T) {
	payload := buildUserMessage("describe this", []ImageAttachment{
		{MediaType: "image/png", Data: "aGVsbG8="},
		{Data: ""},
	})

	var decoded struct {
		Type    string `json:"type"`
		Message struct {
			Role    string `json:"role"`
			Content []struct {
				Type   string `json:"type"`
				Text   string `json:"text"`
				Source struct {
					Type      string `json:"type"`
					MediaType string `json:"media_type"`
					Data      string `json:"data"`
				} `json:"source"`
			} `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.Type != "user" || decoded.Message.Role != "user" {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}
	// Empty image blocks are dropped, text always leads.
	if len(decoded.Message.Content) != 2 {
		t.Fatalf("expected text + one image, got %d blocks", len(decoded.Message.Content))
	}
	if decoded.Message.Content[0].Text != "describe this" {
		t.Fatalf("text block wrong: %+v", decoded.Message.Content[0])
	}
	if decoded.Message.Content[1].Source.MediaType != "image/png" || decoded.Message.Content[1].Source.Data != "aGVsbG8=" {
		t.Fatalf("image block wrong: %+v", decoded.Message.Content[1])
	}
}

func TestLimitedWriterCapsBuffer(t *testing.T) {
	var buf bytes.Buffer
	w := limitedWriter(&buf, 4)

	n, err := w.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if buf.String() != "abcd" {
		t.Fatalf("expected capped buffer, got %q", buf.String())
	}

	// Further writes are accepted but dropped.
	if n, err := w.Write([]byte("gh")); err != nil || n != 2 {
		t.Fatalf("second write: n=%d err=%v", n, err)
	}
	if buf.String() != "abcd" {
		t.Fatalf("cap not enforced: %q", buf.String())
	}
}
