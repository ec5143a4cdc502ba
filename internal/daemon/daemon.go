package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"relay/internal/logging"
)

type Daemon struct {
	addr    string
	token   string
	version string
	runs    *RunService
	logger  logging.Logger
	server  *http.Server
}

func New(addr, token, version string, runs *RunService, logger logging.Logger) *Daemon {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Daemon{
		addr:    addr,
		token:   token,
		version: version,
		runs:    runs,
		logger:  logger,
	}
}

// Run serves the API until ctx is cancelled or the listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	api := &API{
		Version: d.version,
		Runs:    d.runs,
		Logger:  d.logger,
	}
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	d.server = &http.Server{
		Addr:    d.addr,
		Handler: TokenAuthMiddleware(d.token, mux),
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("daemon listening", logging.F("addr", "http://"+d.addr))
		errCh <- d.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return d.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
