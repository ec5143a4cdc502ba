package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"relay/internal/config"
	"relay/internal/daemon"
	"relay/internal/logging"
	"relay/internal/store"
)

type DaemonCommand struct {
	stderr io.Writer
	run    func(logToFile bool) error
}

func NewDaemonCommand(stderr io.Writer, run func(logToFile bool) error) *DaemonCommand {
	return &DaemonCommand{stderr: stderr, run: run}
}

func (c *DaemonCommand) Run(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	logToFile := fs.Bool("log-file", false, "append logs to the data-dir log file instead of stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return c.run(*logToFile)
}

// runDaemonProcess wires storage, provider, and the HTTP API together
// and serves until SIGINT or SIGTERM.
func runDaemonProcess(logToFile bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logOut := io.Writer(os.Stderr)
	if logToFile {
		logPath, err := config.LogPath()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			return err
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.New(logOut, logging.ParseLevel(cfg.LogLevel()))

	dbPath, err := config.DBPath()
	if err != nil {
		return err
	}
	repo, err := store.NewBboltRepository(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	tokenPath, err := config.TokenPath()
	if err != nil {
		return err
	}
	token, err := daemon.LoadOrCreateToken(tokenPath)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}

	provider, err := daemon.NewClaudeProvider(cfg.ProviderCommand(), logger)
	if err != nil {
		return err
	}

	notifier := daemon.NewWebhookNotifier(cfg.WebhookTimeout(), logger)
	runs := daemon.NewRunService(provider, repo, notifier, logger, daemon.RunServiceOptions{
		BatchSize:      cfg.RecorderBatchSize(),
		FlushInterval:  cfg.RecorderFlushInterval(),
		TeeMaxLag:      cfg.TeeMaxLag(),
		WebhookURL:     cfg.WebhookURL(),
		Model:          cfg.ProviderModel(),
		MaxTurns:       cfg.Provider.MaxTurns,
		IncludePartial: cfg.Provider.IncludePartial,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(cfg.DaemonAddress(), token, version, runs, logger)
	return d.Run(ctx)
}
