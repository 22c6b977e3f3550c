// Package bot orchestrates the bridge's long-lived components: the inbound
// webhook HTTP server and the periodic scheduler, running concurrently
// against the shared record store.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Bridge is the main application: one HTTP server and one scheduler, each
// independently resilient to the other's failures.
type Bridge struct {
	logger    *slog.Logger
	server    *http.Server
	scheduler *Scheduler
}

// NewBridge creates the orchestrator for the given HTTP handler and scheduler.
func NewBridge(logger *slog.Logger, listen string, handler http.Handler, scheduler *Scheduler) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		logger: logger.With("component", "bridge"),
		server: &http.Server{
			Addr:              listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		scheduler: scheduler,
	}
}

// Run starts the HTTP server and the scheduler and blocks until the context
// is cancelled or a component fails. Shutdown is graceful: in-flight requests
// and running ticks are given time to finish.
func (b *Bridge) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting webhook server", "listen", b.server.Addr)

		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		b.logger.Info("Shutting down webhook server...")
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			b.logger.Error("Error shutting down webhook server", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bridge stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bridge stopped gracefully.")
	return nil
}
