package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cashplan/internal/amqp"
	"cashplan/internal/backend"
	"cashplan/internal/config"
	"cashplan/internal/export/sheets"
	applog "cashplan/internal/log"
	"cashplan/internal/worker"
)

func main() {
	// Load .env for local development; in production the environment is
	// already set.
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting cashplan-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("Worker requires GOOGLE_SPREADSHEET_ID; nothing to export without it")
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("Worker requires AMQP_URL to receive project events")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", applog.FieldError, err)
			}
		}()
	}

	sheetsClient, err := sheets.NewFromEnv(ctx)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(result.Backend, sheetsClient, logger, cfg.ResyncInterval)

	// Catch up on anything that changed while the worker was down.
	logger.Info("Performing startup resync")
	if err := syncWorker.ResyncAll(ctx); err != nil {
		logger.Error("Startup resync failed", applog.FieldError, err)
		// Keep running; the periodic resync will retry.
	}

	done := make(chan error, 1)
	go func() { done <- syncWorker.Run(ctx, amqpClient) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
		<-done
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Worker stopped with error", applog.FieldError, err)
			os.Exit(1)
		}
	}

	logger.Info("Worker shutdown complete")
}
