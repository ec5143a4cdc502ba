package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
)

type TailCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewTailCommand(stdout, stderr io.Writer, newClient clientFactory) *TailCommand {
	return &TailCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *TailCommand) Run(args []string) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	lines := fs.Int("lines", 0, "limit to the first N recorded messages (0 = all)")
	raw := fs.Bool("raw", false, "print raw JSON payloads without the index prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: relay tail <run-id> [--lines N]")
	}
	runID := fs.Arg(0)

	client, err := c.newClient()
	if err != nil {
		return err
	}
	messages, err := client.ListRunMessages(context.Background(), runID, *lines)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if *raw {
			fmt.Fprintf(c.stdout, "%s\n", msg.Payload)
			continue
		}
		fmt.Fprintf(c.stdout, "%4d  %-10s  %s\n", msg.Index, msg.MessageType, msg.Payload)
	}
	return nil
}
