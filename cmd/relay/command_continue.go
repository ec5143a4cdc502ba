package main

import (
	"context"
	"errors"
	"flag"
	"io"

	relayclient "relay/internal/client"
	"relay/internal/types"
)

var errEmptyPrompt = errors.New("prompt is required")

// ContinueCommand backs both resume and fork; the two differ only in
// which daemon endpoint the request hits.
type ContinueCommand struct {
	name      string
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewContinueCommand(name string, stdout, stderr io.Writer, newClient clientFactory) *ContinueCommand {
	return &ContinueCommand{name: name, stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *ContinueCommand) Run(args []string) error {
	fs := flag.NewFlagSet(c.name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	session := fs.String("session", "", "session to continue")
	prompt := fs.String("prompt", "", "prompt text (or pass it as positional arguments)")
	webhook := fs.String("webhook", "", "webhook URL for lifecycle events")
	model := fs.String("model", "", "model override")
	maxTurns := fs.Int("max-turns", 0, "cap on agent turns (0 = provider default)")
	var images imageList
	fs.Var(&images, "image", "attach an image file (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *session == "" {
		return errors.New("--session is required")
	}
	text := promptFromArgs(*prompt, fs.Args())
	if text == "" {
		return errEmptyPrompt
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	req := relayclient.ContinueRunRequest{
		SessionID:  *session,
		Prompt:     text,
		Images:     images.attachments,
		WebhookURL: *webhook,
		Model:      *model,
		MaxTurns:   *maxTurns,
	}

	var result *types.RunResult
	if c.name == "fork" {
		result, err = client.ForkRun(context.Background(), req)
	} else {
		result, err = client.ResumeRun(context.Background(), req)
	}
	if err != nil {
		return err
	}
	printRunResult(c.stdout, result)
	return nil
}
