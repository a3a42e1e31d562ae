package app

import (
	"context"
	"fmt"
	"net/http"

	"echoclub/internal/retention"
	"echoclub/pkg/api"
	"echoclub/pkg/config"
	"echoclub/pkg/logger"
	"echoclub/pkg/store"
	"echoclub/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff     config.Effective
	version string

	api *api.Server
	srv *http.Server
}

// New initializes resources that do not require a running context (store,
// validation limits, API wiring). Call Run to start the retention scheduler
// and the HTTP server and block until shutdown.
func New(eff config.Effective, version string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	validation.SetLimits(validation.Limits{
		MaxMessageBytes: int64(eff.Config.Limits.MaxMessageBytes),
	})

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	return &App{eff: eff, version: version, api: api.NewServer(eff.Config)}, nil
}

// Run starts the retention scheduler and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	retCancel, err := retention.Start(ctx, a.eff.Config.Retention)
	if err != nil {
		return err
	}
	defer retCancel()

	logger.Info("echoclub_starting",
		"addr", a.eff.Addr, "db", a.eff.DBPath,
		"source", a.eff.Source, "version", a.version)

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return store.Close()
	case err := <-errCh:
		_ = store.Close()
		return err
	}
}
