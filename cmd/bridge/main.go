// Package main contains the entrypoint for the LINE admin bridge.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"linebridge/internal/bot"
	"linebridge/internal/bot/tasks"
	"linebridge/internal/config"
	"linebridge/internal/database"
	"linebridge/internal/line"
	"linebridge/internal/logger"
	"linebridge/internal/notify"
	"linebridge/internal/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// store, notifier, webhook handler, scheduler), handles graceful shutdown,
// and returns an exit code.
func run(ctx context.Context) int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	notifier := notify.NewService(store, log)

	mux := http.NewServeMux()
	webhook.NewHandler(store, notifier, cfg.Line.ChannelSecret, log).Register(mux)

	taskDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		NewSender: func(accessToken string) line.Sender {
			return line.NewClient(accessToken, log)
		},
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(taskDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	bridge := bot.NewBridge(log, cfg.Server.Listen, mux, sched)

	log.Info("Starting bridge...")
	if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Bridge stopped due to error", "error", err)
		return 1
	}

	log.Info("Bridge stopped gracefully.")
	return 0
}
