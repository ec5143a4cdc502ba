package main

import (
	"fmt"
	"os"
)

const usageText = `relay runs streaming agent turns against the Claude CLI.

Usage:
  relay <command> [flags]

Commands:
  daemon     run the relay daemon
  start      start a fresh run (blocks until the run finishes)
  resume     continue an existing session
  fork       branch a new session off an existing one
  cancel     cancel a running run
  ps         list runs
  show       show one run
  sessions   list derived sessions
  tail       show recorded messages for a run
  config     print effective configuration
  help       show help

Examples:
  relay daemon
  relay start --cwd . "summarize this repo"
  relay resume --session <id> "now add tests"
  relay tail <run-id> --lines 50
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	if err := runner.Run(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "relay %s: %v\n", args[0], err)
		os.Exit(1)
	}
}
