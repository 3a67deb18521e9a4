// Package bot implements lifecycle management and component orchestration
// for the Remindino Telegram bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/remindino/internal/config"
	"github.com/edgard/remindino/internal/metrics"
)

// Poller receives updates until ctx is cancelled. *bot.Bot satisfies it.
type Poller interface {
	Start(ctx context.Context)
}

// Scheduler fires armed jobs between Start and Stop.
type Scheduler interface {
	Start() error
	Stop() error
}

// Restorer re-arms the jobs of every stored user.
type Restorer interface {
	RestoreAll(ctx context.Context) error
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	tgBot     Poller
	scheduler Scheduler
	restorer  Restorer
}

// NewBot creates a new instance of the bot with all required dependencies.
func NewBot(logger *slog.Logger, cfg *config.Config, tgBot Poller, scheduler Scheduler, restorer Restorer) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		tgBot:     tgBot,
		scheduler: scheduler,
		restorer:  restorer,
	}
}

// Run restores scheduled jobs, then runs the Telegram listener, the
// scheduler and the optional metrics endpoint until ctx is cancelled or one
// of them fails.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	// restore failures are logged; the listener starts regardless
	if err := b.restorer.RestoreAll(ctx); err != nil {
		b.logger.Error("Failed to restore scheduled jobs", "error", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")

			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	if b.cfg.Metrics.Enabled {
		g.Go(func() error {
			if err := metrics.Serve(gCtx, b.cfg.Metrics.Addr, b.logger); err != nil {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
