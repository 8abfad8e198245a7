package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/health"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
)

// Sweeper bulk-deactivates expired sessions.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Readiness     *health.CheckRunner
	Sweeper       Sweeper

	SweepInterval   time.Duration
	ShutdownTimeout time.Duration

	// closers run in order after the server has drained.
	closers []func(context.Context) error
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, readiness *health.CheckRunner, sweeper Sweeper, closers ...func(context.Context) error) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Readiness:       readiness,
		Sweeper:         sweeper,
		SweepInterval:   cfg.SessionSweepInterval,
		ShutdownTimeout: cfg.ShutdownTimeout,
		closers:         closers,
	}
}

// Run serves HTTP and, when configured, sweeps expired sessions until ctx is cancelled or the
// server fails. Shutdown drains the server first, then releases the remaining resources.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.Sweeper != nil && a.SweepInterval > 0 {
		g.Go(func() error {
			a.runSweeper(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(a.SweepInterval)
	defer ticker.Stop()
	a.Logger.Info("session sweeper started", "interval", a.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Sweeper.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Error("session sweep failed", "error", err)
			}
		}
	}
}

func (a *App) shutdown() error {
	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	for _, closeFn := range a.closers {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
	}
	a.Logger.Info("shutdown complete")
	return errors.Join(errs...)
}
