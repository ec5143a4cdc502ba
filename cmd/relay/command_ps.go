package main

import (
	"context"
	"flag"
	"fmt"
	"io"
)

type PSCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewPSCommand(stdout, stderr io.Writer, newClient clientFactory) *PSCommand {
	return &PSCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *PSCommand) Run(args []string) error {
	fs := flag.NewFlagSet("ps", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	status := fs.String("status", "", "filter runs by status (running, completed, error, cancelled)")
	active := fs.Bool("active", false, "show only in-flight runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := c.newClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if *active {
		runs, err := client.ListActive(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(c.stdout, "no active runs")
			return nil
		}
		printActive(c.stdout, runs)
		return nil
	}

	runs, err := client.ListRuns(ctx, *status)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.stdout, "no runs")
		return nil
	}
	printRuns(c.stdout, runs)
	return nil
}
