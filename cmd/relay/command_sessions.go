package main

import (
	"context"
	"flag"
	"fmt"
	"io"
)

type SessionsCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewSessionsCommand(stdout, stderr io.Writer, newClient clientFactory) *SessionsCommand {
	return &SessionsCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *SessionsCommand) Run(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	sessions, err := client.ListSessions(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(c.stdout, "no sessions")
		return nil
	}
	printSessions(c.stdout, sessions)
	return nil
}
