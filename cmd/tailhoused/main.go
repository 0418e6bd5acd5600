// cmd/tailhoused/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/loglens/loglens/internal/api"
	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/internal/registry"
	"github.com/loglens/loglens/internal/watch"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	configPath := os.Getenv("LOGLENS_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	watchMode := watch.ModeNative
	if cfg.Watch.Mode == "poll" {
		watchMode = watch.ModePoll
	}

	reg := registry.New(registry.Config{
		BackfillLines: cfg.Tail.BackfillLines,
		WatchOptions: watch.Options{
			Mode:         watchMode,
			PollInterval: cfg.Watch.PollInterval,
			Logger:       logger,
		},
		Logger: logger,
	})

	server := api.NewServer(&cfg, logger, reg)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		reg.Shutdown()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("ops server shutdown error", zap.Error(err))
		}
		os.Exit(0)
	}()

	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════╗\n")
	fmt.Printf("║         loglens tail engine           ║\n")
	fmt.Printf("╠══════════════════════════════════════╣\n")
	fmt.Printf("║  Ops API: http://localhost:%-9d ║\n", cfg.Server.Port)
	fmt.Printf("║  Watch mode: %-24s ║\n", cfg.Watch.Mode)
	fmt.Printf("║  Backfill lines: %-20d ║\n", cfg.Tail.BackfillLines)
	fmt.Printf("╚══════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if err := server.Start(); err != nil {
		logger.Fatal("ops server failed", zap.Error(err))
	}
}
