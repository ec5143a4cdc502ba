package main

import (
	"context"
	"flag"
	"io"
	"os"

	relayclient "relay/internal/client"
)

type StartCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewStartCommand(stdout, stderr io.Writer, newClient clientFactory) *StartCommand {
	return &StartCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *StartCommand) Run(args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	cwd := fs.String("cwd", "", "working directory for the run (defaults to current directory)")
	prompt := fs.String("prompt", "", "prompt text (or pass it as positional arguments)")
	webhook := fs.String("webhook", "", "webhook URL for lifecycle events")
	model := fs.String("model", "", "model override")
	maxTurns := fs.Int("max-turns", 0, "cap on agent turns (0 = provider default)")
	var images imageList
	fs.Var(&images, "image", "attach an image file (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text := promptFromArgs(*prompt, fs.Args())
	if text == "" {
		return errEmptyPrompt
	}
	dir := *cwd
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir = wd
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	result, err := client.StartRun(context.Background(), relayclient.StartRunRequest{
		Cwd:        dir,
		Prompt:     text,
		Images:     images.attachments,
		WebhookURL: *webhook,
		Model:      *model,
		MaxTurns:   *maxTurns,
	})
	if err != nil {
		return err
	}
	printRunResult(c.stdout, result)
	return nil
}
