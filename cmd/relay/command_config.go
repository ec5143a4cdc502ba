package main

import (
	"flag"
	"fmt"
	"io"

	"relay/internal/config"
)

type ConfigCommand struct {
	stdout io.Writer
	stderr io.Writer
}

func NewConfigCommand(stdout, stderr io.Writer) *ConfigCommand {
	return &ConfigCommand{stdout: stdout, stderr: stderr}
}

func (c *ConfigCommand) Run(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	showPath := fs.Bool("path", false, "print the config file path instead of contents")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showPath {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, path)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rendered, err := cfg.Render()
	if err != nil {
		return err
	}
	fmt.Fprint(c.stdout, rendered)
	return nil
}
