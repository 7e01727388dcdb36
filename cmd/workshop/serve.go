package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/problem-workshop/internal/config"
	"github.com/jonathan/problem-workshop/internal/observability"
	"github.com/jonathan/problem-workshop/internal/server"
	"github.com/jonathan/problem-workshop/internal/server/ratelimit"
	"github.com/jonathan/problem-workshop/internal/storage"
)

var (
	servePort    int
	serveStorage string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workshop web server",
	Long:  `Start an HTTP server that renders the workshop activities and saves progress to the configured storage backend.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveStorage, "storage", "", "Storage backend: memory, sqlite, postgres or redis (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads the effective configuration and applies command-line overrides.
func loadConfig(port int, backend string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if port != 0 {
		cfg.Port = port
	}
	if backend != "" {
		cfg.Storage = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(servePort, serveStorage)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	gateway := storage.NewGateway(store, logger)
	defer func() {
		if err := gateway.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	rateLimit, err := ratelimit.LoadConfig()
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		SaveDelay:   cfg.SaveDelay.Std(),
		SessionTTL:  cfg.SessionTTL.Std(),
		RateLimit:   rateLimit,
	}, gateway, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("storage ready", zap.String("backend", cfg.Storage))
	return srv.Start()
}
