package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	relayclient "relay/internal/client"
	"relay/internal/types"
)

const version = "0.3.0"

type commandRunner interface {
	Run(args []string) error
}

type clientFactory func() (*relayclient.Client, error)

type commandWiring struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
	runDaemon func(logToFile bool) error
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:    stdout,
		stderr:    stderr,
		newClient: relayclient.New,
		runDaemon: runDaemonProcess,
	}
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"daemon":   NewDaemonCommand(wiring.stderr, wiring.runDaemon),
		"start":    NewStartCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"resume":   NewContinueCommand("resume", wiring.stdout, wiring.stderr, wiring.newClient),
		"fork":     NewContinueCommand("fork", wiring.stdout, wiring.stderr, wiring.newClient),
		"cancel":   NewCancelCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"ps":       NewPSCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"show":     NewShowCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"sessions": NewSessionsCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"tail":     NewTailCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"config":   NewConfigCommand(wiring.stdout, wiring.stderr),
	}
}

func printRunResult(out io.Writer, result *types.RunResult) {
	fmt.Fprintf(out, "run %s: %s (%dms)\n", result.RunID, result.Status, result.DurationMs)
	if result.SessionID != "" {
		fmt.Fprintf(out, "session: %s\n", result.SessionID)
	}
	if result.Error != "" {
		fmt.Fprintf(out, "error: %s\n", result.Error)
	}
}

func printRuns(out io.Writer, runs []*types.Run) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMODE\tSESSION\tCREATED\tCWD")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Status, run.Mode,
			shortID(run.SessionID),
			run.CreatedAt.Local().Format(time.DateTime),
			run.Cwd,
		)
	}
	_ = w.Flush()
}

func printSessions(out io.Writer, sessions []*types.SessionSummary) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tRUNS\tLAST RUN\tCWD")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			s.SessionID, s.RunCount,
			s.LastRunAt.Local().Format(time.DateTime),
			s.Cwd,
		)
	}
	_ = w.Flush()
}

func printActive(out io.Writer, active []types.ActiveRun) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tSESSION\tSTARTED")
	for _, run := range active {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			run.RunID, run.Mode,
			shortID(run.SessionID),
			run.StartedAt.Local().Format(time.DateTime),
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if id == "" {
		return "-"
	}
	return id
}

func promptFromArgs(flagPrompt string, positional []string) string {
	if strings.TrimSpace(flagPrompt) != "" {
		return flagPrompt
	}
	return strings.TrimSpace(strings.Join(positional, " "))
}
