// Package main contains the entrypoint for the Remindino Telegram bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/remindino/internal/bot"
	"github.com/edgard/remindino/internal/bot/handlers"
	"github.com/edgard/remindino/internal/bot/tasks"
	"github.com/edgard/remindino/internal/config"
	"github.com/edgard/remindino/internal/conversation"
	"github.com/edgard/remindino/internal/database"
	"github.com/edgard/remindino/internal/jobs"
	"github.com/edgard/remindino/internal/logger"
	"github.com/edgard/remindino/internal/notify"
	"github.com/edgard/remindino/internal/scheduler"
	"github.com/edgard/remindino/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run wires config, logging, storage, scheduling and the Telegram bot, blocks
// until shutdown and returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	clock := clockwork.NewRealClock()
	sched, err := scheduler.New(log, clock, cfg.Scheduler.DispatchTimeout)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	settings, err := jobs.SettingsFromConfig(cfg.Scheduler)
	if err != nil {
		log.Error("Invalid scheduler settings", "error", err)
		return 1
	}
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	planner := jobs.NewPlanner(sched, store, clock, settings, rng, log)

	// The default handler needs the conversation engine, which needs the bot.
	// Updates only flow after Start, by which time onText is bound.
	var onText tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			onText(ctx, b, update)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	limiter := telegram.NewLimiter(cfg.Telegram.RequestsPerSecond, cfg.Telegram.Burst)
	breaker := telegram.NewBreaker(cfg.Telegram.BreakerFailures, cfg.Telegram.BreakerCooldown, log)
	msgr := telegram.NewMessenger(tg, limiter, breaker, log)

	notify.New(notify.Deps{
		Logger:     log,
		Store:      store,
		Messenger:  msgr,
		Planner:    planner,
		Clock:      clock,
		DueWindow:  cfg.Scheduler.DueWindow,
		WeeklyLead: cfg.Scheduler.WeeklyLead,
	}).Register(sched)

	engine := conversation.New(conversation.Deps{
		Logger:    log,
		Store:     store,
		Messenger: msgr,
		Planner:   planner,
		Clock:     clock,
	})

	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Conversation: engine,
		Messenger:    msgr,
	}
	onText = handlers.PrivateOnly(hDeps)(handlers.NewTextHandler(hDeps))

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	bot.ScheduleTasks(sched, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{Logger: log, Store: store}), log)

	app := bot.NewBot(log, cfg, tg, sched, planner)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
