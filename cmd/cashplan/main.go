package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cashplan/internal/amqp"
	"cashplan/internal/backend"
	"cashplan/internal/config"
	"cashplan/internal/export"
	apphttp "cashplan/internal/http"
	"cashplan/internal/identity"
	applog "cashplan/internal/log"
	"cashplan/internal/planner"
)

var (
	flagOutput string
	flagYes    bool
)

var rootCmd = &cobra.Command{
	Use:   "cashplan",
	Short: "Construction cashflow planning service",
	Long:  "Plan, distribute, and track construction project budgets across a 24-month horizon.",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

var exportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Export a project as a portable envelope",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a project from an exported envelope",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Write the envelope to a file instead of stdout")
	importCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "Confirm replacing any stored copy of the imported project")
	rootCmd.AddCommand(serveCmd, exportCmd, importCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and opens the persistence backend.
func setup(ctx context.Context, logger *applog.Logger) (*config.Config, *backend.BackendResult, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("backend: %w", err)
	}
	return cfg, result, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, result, err := setup(ctx, logger)
	if err != nil {
		logger.Error("Startup failed", applog.FieldError, err)
		return err
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", applog.FieldError, err)
			}
		}()
	}

	opts := []planner.Option{planner.WithSaveDebounce(cfg.SaveDebounce)}

	// AMQP is optional: without it the planner simply does not announce
	// changes to the sync worker.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("AMQP connection failed", applog.FieldError, err)
			return err
		}
		defer amqpClient.Close()
		opts = append(opts, planner.WithPublisher(amqpClient))
		logger.Info("AMQP messaging enabled", "exchange", cfg.AMQPExchange)
	}

	pl := planner.New(result.Backend, logger, opts...)
	defer pl.Close()

	if err := pl.LoadAll(ctx); err != nil {
		logger.Error("Failed to load projects", applog.FieldError, err)
		return err
	}

	// React to writes made through other replicas of this store.
	unsubscribe := result.Backend.Subscribe(pl.ApplyRemote)
	defer unsubscribe()

	users := identity.HeaderProvider{DefaultRole: identity.RoleEditor}
	srv := apphttp.NewServer(":"+cfg.Port, pl, users, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting cashplan server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err)
		return err
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	logger := applog.New(applog.Config{Level: slog.LevelWarn, Component: applog.ComponentApp})

	ctx := cmd.Context()
	_, result, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	if result.Cleanup != nil {
		defer func() { _ = result.Cleanup() }()
	}

	pl := planner.New(result.Backend, logger)
	defer pl.Close()
	if err := pl.LoadAll(ctx); err != nil {
		return err
	}

	env, err := pl.Export(args[0], "cli")
	if err != nil {
		return fmt.Errorf("export %s: %w", args[0], err)
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	if flagOutput != "" {
		if err := os.WriteFile(flagOutput, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", flagOutput, err)
		}
		fmt.Fprintf(os.Stderr, "exported project %s to %s\n", args[0], flagOutput)
		return nil
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

func runImport(cmd *cobra.Command, args []string) error {
	// Import replaces any stored copy of the project wholesale, so it
	// needs the same explicit confirmation the API import gets.
	if !flagYes {
		return errors.New("import replaces the stored project wholesale; re-run with --yes to confirm")
	}

	logger := applog.New(applog.Config{Level: slog.LevelWarn, Component: applog.ComponentApp})

	ctx := cmd.Context()
	_, result, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	if result.Cleanup != nil {
		defer func() { _ = result.Cleanup() }()
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	env, err := export.ParseEnvelope(data)
	if err != nil {
		return err
	}

	pl := planner.New(result.Backend, logger)
	defer pl.Close()
	if err := pl.LoadAll(ctx); err != nil {
		return err
	}

	id, err := pl.Import(ctx, env)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	pl.Flush()
	if err := pl.LastError(); err != nil {
		return fmt.Errorf("persist imported project: %w", err)
	}
	fmt.Fprintf(os.Stderr, "imported project %s\n", id)
	return nil
}
