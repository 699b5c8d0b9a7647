package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"zbudget/internal/amqp"
	"zbudget/internal/config"
	"zbudget/internal/export"
	"zbudget/internal/export/google"
	"zbudget/internal/export/memory"
	applog "zbudget/internal/log"
	"zbudget/internal/services"
	"zbudget/internal/statestore"
	"zbudget/internal/storage"
	"zbudget/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent("worker")
	applog.SetDefault(logger)

	logger.Info("Starting zbudget-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	materializer := services.NewMaterializer(repo, cfg.MaterializeWorkers)
	materializeWindow := func() {
		from := time.Now().UTC()
		to := from.AddDate(0, 0, cfg.MaterializeWindowDays)
		if count, err := materializer.MaterializeWindow(ctx, from, to); err != nil {
			logger.Error("Materialization run failed", "error", err, "instances_created", count)
		} else {
			logger.Info("Materialization run complete", "instances_created", count)
		}
	}

	// Summary export: Google Sheets when configured, otherwise an in-process
	// sink so the change feed still drains.
	var summaryWriter export.SummaryWriter
	if cfg.ExportEnabled {
		sheetsClient, err := google.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		summaryWriter = sheetsClient
		logger.Info("Google Sheets export enabled")
	} else {
		summaryWriter = memory.New()
		logger.Info("Export disabled - summaries are kept in memory only")
	}

	view := statestore.New()
	exportWorker := worker.NewExportWorker(repo, summaryWriter, view)

	// Consume the change feed when AMQP is configured.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			err := amqpClient.ConsumeMonthlyDataChanged(ctx, func(msg *amqp.MonthlyDataChangedMessage) error {
				return exportWorker.HandleChangeMessage(ctx, msg)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Change feed consumption failed", "error", err)
				cancel()
			}
		}()
	} else {
		logger.Info("AMQP disabled - not consuming the change feed")
	}

	// Run the first materialization immediately, then on the cron schedule.
	logger.Info("Running initial rule materialization",
		"window_days", cfg.MaterializeWindowDays,
		"workers", cfg.MaterializeWorkers)
	materializeWindow()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.MaterializeCron, materializeWindow); err != nil {
		logger.Error("Invalid materialize cron expression", "cron", cfg.MaterializeCron, "error", err)
		os.Exit(1)
	}
	if cfg.ExportEnabled {
		// Safety net for feed messages lost while the worker was down.
		_, err := scheduler.AddFunc(cfg.ExportCron, func() {
			if count, err := exportWorker.ExportCurrentMonth(ctx, time.Now().UTC()); err != nil {
				logger.Error("Scheduled export failed", "error", err, "exported", count)
			}
		})
		if err != nil {
			logger.Error("Invalid export cron expression", "cron", cfg.ExportCron, "error", err)
			os.Exit(1)
		}
	}
	scheduler.Start()
	logger.Info("Cron scheduler started",
		"materialize_cron", cfg.MaterializeCron,
		"export_cron", cfg.ExportCron,
		"export_enabled", cfg.ExportEnabled)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down zbudget-worker...")
	cancel()

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		logger.Info("Worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}
