package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"relay/internal/logging"
	"relay/internal/types"
)

type claudeProvider struct {
	cmdName string
	logger  logging.Logger
}

func NewClaudeProvider(cmdName string, logger logging.Logger) (Provider, error) {
	if strings.TrimSpace(cmdName) == "" {
		return nil, errors.New("provider command is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &claudeProvider{cmdName: cmdName, logger: logger}, nil
}

func (p *claudeProvider) Name() string {
	return "claude"
}

// Invoke starts one CLI turn. The subprocess reads its user message from
// stdin as stream-json; stdin is held open until a result line has been
// observed on stdout. Closing it earlier puts the CLI into undefined
// behavior, so the release is driven by the reader, never by consumer
// backpressure.
func (p *claudeProvider) Invoke(ctx context.Context, req InvokeRequest) (*TurnStream, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	args := []string{
		"--print",
		"--verbose",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--fork-session",
	}
	if req.IncludePartial {
		args = append(args, "--include-partial-messages")
	}
	if model := strings.TrimSpace(req.Model); model != "" {
		args = append(args, "--model", model)
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}
	if id := strings.TrimSpace(req.ResumeSessionID); id != "" {
		args = append(args, "--resume", id)
	}

	cmd := exec.Command(p.cmdName, args...)
	if strings.TrimSpace(req.Cwd) != "" {
		cmd.Dir = req.Cwd
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	msgs := make(chan *types.AgentMessage)
	stream := newTurnStream(msgs)

	resultSeen := make(chan struct{})
	markResult := sync.OnceFunc(func() { close(resultSeen) })
	procDone := make(chan struct{})

	payload := buildUserMessage(req.Prompt, req.Images)

	// stdin holder: write the single user message, then keep the channel
	// open until the terminal result is observed or the process is gone.
	go func() {
		if _, werr := stdin.Write(append(payload, '\n')); werr != nil {
			p.logger.Warn("provider stdin write failed", logging.F("err", werr))
		}
		select {
		case <-resultSeen:
		case <-procDone:
		case <-ctx.Done():
		}
		_ = stdin.Close()
	}()

	// Cancellation aborts the subprocess; the reader then winds down.
	go func() {
		select {
		case <-ctx.Done():
			stream.fail(fmt.Errorf("%w: %v", ErrTurnCancelled, context.Cause(ctx)))
			_ = cmd.Process.Kill()
		case <-procDone:
		}
	}()

	var stderrBuf bytes.Buffer
	var stderrWG sync.WaitGroup
	stderrWG.Add(1)
	go func() {
		defer stderrWG.Done()
		_, _ = io.Copy(limitedWriter(&stderrBuf, 8*1024), stderrPipe)
	}()

	go func() {
		defer close(msgs)
		sawResult := false
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	read:
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			msg, perr := types.ParseAgentMessage(line)
			if perr != nil {
				p.logger.Warn("provider emitted unparseable line", logging.F("err", perr))
				continue
			}
			if msg.IsResult() {
				sawResult = true
				markResult()
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				break read
			}
		}
		if serr := scanner.Err(); serr != nil {
			stream.fail(serr)
		}
		stderrWG.Wait()
		werr := cmd.Wait()
		close(procDone)
		switch {
		case ctx.Err() != nil:
			stream.fail(fmt.Errorf("%w: %v", ErrTurnCancelled, context.Cause(ctx)))
		case werr != nil && !sawResult:
			stream.fail(providerExitError(werr, stderrBuf.String()))
		}
	}()

	return stream, nil
}

func providerExitError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("provider exited before result: %w", err)
	}
	return fmt.Errorf("provider exited before result: %w: %s", err, stderr)
}

// buildUserMessage serializes the single outbound user turn, text first
// then image blocks.
func buildUserMessage(prompt string, images []ImageAttachment) []byte {
	content := make([]map[string]any, 0, 1+len(images))
	content = append(content, map[string]any{
		"type": "text",
		"text": prompt,
	})
	for _, img := range images {
		if strings.TrimSpace(img.Data) == "" {
			continue
		}
		mediaType := strings.TrimSpace(img.MediaType)
		if mediaType == "" {
			mediaType = "image/png"
		}
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": mediaType,
				"data":       img.Data,
			},
		})
	}
	payload := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
	}
	data, _ := json.Marshal(payload)
	return data
}

type cappedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func limitedWriter(buf *bytes.Buffer, limit int) io.Writer {
	return &cappedWriter{buf: buf, limit: limit}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if remaining := w.limit - w.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
