package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/nexahealth-reporter/internal/adapter/http"
	"github.com/couchcryptid/nexahealth-reporter/internal/session"
)

func newServeCmd() *cobra.Command {
	var idle time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the report form HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			return serve(ctx, a, idle)
		}),
	}
	cmd.Flags().DurationVar(&idle, "session-idle", 30*time.Minute, "evict form sessions untouched for this long")
	return cmd
}

func serve(ctx context.Context, a *app, idle time.Duration) error {
	if idle <= 0 {
		return fmt.Errorf("invalid --session-idle %s", idle)
	}
	registry := session.NewRegistry(a.sessionOptions(), a.sessionDeps())
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, httpadapter.Services{
		Sessions:  registry,
		Nearby:    a.nearby,
		Flagged:   a.backend,
		Companion: a.companion,
	}, httpadapter.ReadinessFunc(a.checkReadiness), a.logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := a.clock.NewTicker(idle / 2)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.Chan():
				if n := registry.EvictIdle(idle); n > 0 {
					a.logger.Info("evicted idle sessions", "count", n, "active", registry.Len())
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		a.logger.Error("server error", "error", err)
	}
	a.logger.Info("shutdown complete")
	return err
}
