// Package bot wires the long-running components together and manages their
// lifecycle: the Telegram listener, the scheduler, the expiry sweeper and the
// optional admin server. On shutdown it flushes the snapshot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/chatkeeper/internal/snapshot"
)

const (
	adminShutdownTimeout = 5 * time.Second
	flushTimeout         = 30 * time.Second
)

// Listener receives updates until its context is cancelled.
type Listener interface {
	Start(ctx context.Context)
}

// Sweeper purges expired keys on an interval until its context is cancelled.
type Sweeper interface {
	Run(ctx context.Context, interval time.Duration) error
}

// Flusher writes the final state before exit.
type Flusher interface {
	ForceCleanup(ctx context.Context) (snapshot.SweepResult, error)
}

// Components are the parts the orchestrator runs. Admin may be nil.
type Components struct {
	Listener      Listener
	Scheduler     *Scheduler
	Sweeper       Sweeper
	SweepInterval time.Duration
	Admin         *http.Server
	Flusher       Flusher
}

// Bot manages the lifecycle of its components.
type Bot struct {
	logger *slog.Logger
	c      Components
}

// NewBot creates the orchestrator.
func NewBot(logger *slog.Logger, c Components) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{logger: logger.With("component", "bot_orchestrator"), c: c}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. The snapshot is flushed afterwards in both cases; a failed
// flush is returned.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram listener")
		b.c.Listener.Start(gCtx)
		b.logger.Info("Telegram listener stopped")

		if gCtx.Err() == nil {
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		if err := b.c.Scheduler.Start(gCtx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler")
		if err := b.c.Scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if b.c.Sweeper != nil {
		g.Go(func() error {
			return b.c.Sweeper.Run(gCtx, b.c.SweepInterval)
		})
	}

	if b.c.Admin != nil {
		g.Go(func() error {
			b.logger.Info("Starting admin server", "addr", b.c.Admin.Addr)
			if err := b.c.Admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer cancel()
			if err := b.c.Admin.Shutdown(shutdownCtx); err != nil {
				b.logger.Error("Error stopping admin server", "error", err)
			}
			return nil
		})
	}

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", runErr)
	} else {
		runErr = nil
	}

	if err := b.flush(); err != nil {
		return errors.Join(runErr, err)
	}

	b.logger.Info("Bot orchestrator stopped")
	return runErr
}

func (b *Bot) flush() error {
	if b.c.Flusher == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	result, err := b.c.Flusher.ForceCleanup(ctx)
	if err != nil {
		b.logger.Error("Final snapshot flush failed", "error", err)
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	b.logger.Info("Final snapshot flushed", "messages_removed", result.MessagesRemoved, "stats_keys_removed", result.StatsKeysRemoved)
	return nil
}
