// Package main provides the unified server that runs all components together:
// - Ingestion (continuous): launch and buy feeds into storage
// - Classification (scheduled): timing buckets, wallet ranking, snapshot publication
// - Copy trading (continuous): one follower worker per session
// - HTTP: health, metrics, snapshot API and operator controls
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-copytrade-lab/internal/api"
	"solana-copytrade-lab/internal/app"
	"solana-copytrade-lab/internal/config"
	"solana-copytrade-lab/internal/configstore"
	"solana-copytrade-lab/internal/observability"
)

const defaultAnalysisSchedule = "@every 1h"

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	httpAddr := flag.String("http-addr", "", "HTTP address (overrides server.addr)")
	flag.Parse()

	if *useMemory {
		os.Setenv("USE_MEMORY", "true")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}
	if cfg.Analysis.Schedule == "" {
		cfg.Analysis.Schedule = defaultAnalysisSchedule
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("server error")
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	notifier, closeSink, err := app.NewNotifier(ctx, cfg.Notify, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	defer notifier.Close()

	configs := configstore.NewService(stores.Configs, logger)
	if n, err := app.SeedSessions(ctx, cfg.CopyTrade.SessionsFile, configs); err != nil {
		return fmt.Errorf("seed sessions: %w", err)
	} else if n > 0 {
		logger.WithField("sessions", n).Info("session configs saved")
	}

	consumer, err := app.NewConsumer(cfg.Feeds, stores, logger)
	if err != nil {
		return err
	}

	runner := app.NewRunner(cfg.Analysis, stores, notifier, logger)
	if err := runner.Warm(ctx); err != nil {
		logger.WithError(err).Warn("could not restore previous snapshot")
	}

	feed := app.NewTradeFeed(cfg.Feeds, logger)
	orch := app.NewOrchestrator(cfg.CopyTrade, stores, feed, nil, notifier, logger)

	srv := api.New(api.Options{
		Classifier: runner,
		Controller: orch,
		Configs:    configs,
		Orders:     stores.Orders,
		Logger:     logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}
	g.Go(func() error {
		return runner.Schedule(ctx, cfg.Analysis.Schedule)
	})
	g.Go(func() error {
		return orch.Run(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx, cfg.Server.Addr)
	})

	logger.WithFields(logrus.Fields{
		"addr":     cfg.Server.Addr,
		"schedule": cfg.Analysis.Schedule,
		"ingest":   consumer != nil,
	}).Info("server started")
	return g.Wait()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
