package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/scripthost/backend/internal/config"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scripthost/backend/internal/logging"
	"github.com/GriffinCanCode/scripthost/backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration, using defaults: %v\n", err)
		cfg = config.Default()
	}

	// Flags override environment
	port := flag.String("port", cfg.Server.Port, "Server port")
	host := flag.String("host", cfg.Server.Host, "Bind address")
	level := flag.String("log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (console logs)")
	maxContexts := flag.Int("max-contexts", cfg.Sandbox.MaxContexts, "Concurrent execution contexts")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Server.Host = *host
	cfg.Logging.Level = *level
	cfg.Logging.Development = *dev
	cfg.Sandbox.MaxContexts = *maxContexts
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.New(*cfg, logger, monitoring.NewMetrics())
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Server error", zap.Error(runErr))
	} else {
		logger.Info("Shutting down gracefully...")
	}
	if err := srv.Close(); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if runErr != nil {
		os.Exit(1)
	}
}
