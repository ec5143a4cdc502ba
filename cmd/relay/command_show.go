package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
)

type ShowCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewShowCommand(stdout, stderr io.Writer, newClient clientFactory) *ShowCommand {
	return &ShowCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *ShowCommand) Run(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	asJSON := fs.Bool("json", false, "print the run record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: relay show <run-id>")
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	run, err := client.GetRun(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	fmt.Fprintf(c.stdout, "run:      %s\n", run.ID)
	fmt.Fprintf(c.stdout, "status:   %s\n", run.Status)
	fmt.Fprintf(c.stdout, "mode:     %s\n", run.Mode)
	fmt.Fprintf(c.stdout, "cwd:      %s\n", run.Cwd)
	fmt.Fprintf(c.stdout, "session:  %s\n", shortID(run.SessionID))
	if run.ParentSessionID != "" {
		fmt.Fprintf(c.stdout, "parent:   %s\n", run.ParentSessionID)
	}
	if run.ResultType != "" {
		fmt.Fprintf(c.stdout, "result:   %s\n", run.ResultType)
	}
	if run.DurationMs != nil {
		fmt.Fprintf(c.stdout, "duration: %dms\n", *run.DurationMs)
	}
	fmt.Fprintf(c.stdout, "messages: %d\n", run.MessageCount)
	fmt.Fprintf(c.stdout, "prompt:   %s\n", run.Prompt)
	return nil
}
