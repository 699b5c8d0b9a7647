package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"zbudget/internal/amqp"
	"zbudget/internal/cache"
	"zbudget/internal/config"
	"zbudget/internal/core"
	apphttp "zbudget/internal/http"
	applog "zbudget/internal/log"
	"zbudget/internal/services"
	"zbudget/internal/statestore"
	"zbudget/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent("api")
	applog.SetDefault(logger)

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

	// AMQP is optional: without it the engine runs, only the change feed is off.
	var publisher services.ChangePublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change feed", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - change feed will not be published")
	}

	view := statestore.New()

	recalculator := services.NewRecalculator(repo, publisher)
	scheduler := services.NewRecalcScheduler(recalculator.Recalculate, services.SchedulerConfig{
		Debounce:    cfg.RecalcDebounce,
		Timeout:     cfg.RecalcTimeout,
		MaxAttempts: cfg.RecalcMaxAttempts,
		BackoffBase: cfg.RecalcBackoffBase,
		BackoffCap:  cfg.RecalcBackoffCap,
	})
	defer scheduler.Stop()

	allocations := services.NewAllocationService(repo, publisher, scheduler, view)

	server := apphttp.NewServer(":"+cfg.Port, repo, allocations, scheduler, view)

	scheduler.OnResult = func(md core.MonthlyData) {
		view.MergeAuthoritative(md)
		server.InvalidateMonth(md.BudgetID, md.Month)
	}
	scheduler.OnError = func(budgetID string, month core.Month, err error) {
		logger.Error("Recalculation permanently failed",
			"budget_id", budgetID,
			"month", month.String(),
			"error", err)
	}

	cacheManager := cache.NewManager()
	server.RegisterCaches(cacheManager)
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting zbudget API", "port", cfg.Port)
	if err := server.Start(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
