package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/juant72/sniperforge/internal/server"
	"github.com/juant72/sniperforge/internal/server/handler"
)

// DetectMode runs the discovery loop in log-only mode: quotes are polled,
// routes are built and scored, and opportunities are reported, but nothing is
// executed and no HTTP API is exposed.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startDiscovery(ctx, g, deps)

	return g.Wait()
}

// TradeMode runs discovery plus live execution. The HTTP API is started when
// server.enabled is set.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("wallet", deps.Wallet.Address()),
	)

	g, ctx := errgroup.WithContext(ctx)

	a.startDiscovery(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// ServerMode runs discovery in log-only mode together with the read-only
// HTTP API over the attempt journal. No orders are placed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startDiscovery(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// FullMode runs every subsystem: discovery, execution, the HTTP API, and the
// scheduled attempt archive export.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("wallet", deps.Wallet.Address()),
	)

	g, ctx := errgroup.WithContext(ctx)

	a.startDiscovery(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	if deps.Archiver != nil {
		if err := a.startArchiveJob(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	return g.Wait()
}

// startDiscovery adds the engine loop and, when configured, the Orca
// WebSocket prewarm stream to the errgroup.
func (a *App) startDiscovery(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	if deps.OrcaStream != nil {
		g.Go(func() error {
			err := deps.OrcaStream.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
}

// startHTTPServer adds the API server goroutine plus a shutdown watcher to
// the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.NewServer(
		server.Config{Port: a.cfg.Server.Port},
		server.Handlers{
			Health:   handler.NewHealthHandler(deps.Aggregator),
			Status:   handler.NewStatusHandler(deps.Engine, deps.Breaker, deps.Wallet),
			Attempts: handler.NewAttemptHandler(deps.AttemptStore),
		},
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiveJob schedules the attempt archive export on the configured
// cron expression.
func (a *App) startArchiveJob(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("archive scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.CronJob(a.cfg.S3.ExportCron, false),
		gocron.NewTask(func() {
			n, err := deps.Archiver.Run(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "attempt archive export failed",
					slog.String("error", err.Error()))
				return
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "attempt archive exported",
					slog.Int("attempts", n))
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("archive job: %w", err)
	}

	sched.Start()
	g.Go(func() error {
		<-ctx.Done()
		return sched.Shutdown()
	})

	a.logger.InfoContext(ctx, "attempt archive scheduled",
		slog.String("cron", a.cfg.S3.ExportCron))
	return nil
}
