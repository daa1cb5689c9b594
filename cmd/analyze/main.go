// Package main runs the early-buyer classification: it drains the launch and
// buy feeds into storage, ranks wallets, and optionally keeps doing so on a
// cron schedule while serving the snapshot API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-copytrade-lab/internal/api"
	"solana-copytrade-lab/internal/app"
	"solana-copytrade-lab/internal/config"
	"solana-copytrade-lab/internal/observability"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "YAML config file")
	launches := flag.String("launches", "", "JSONL launch dump (overrides feeds.launches_file)")
	buys := flag.String("buys", "", "JSONL buy dump (overrides feeds.buys_file)")
	schedule := flag.String("schedule", "", "Cron spec for repeated runs (overrides analysis.schedule)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	report := flag.Bool("report", false, "Print the buyer/timing report as JSON after the first run")
	httpAddr := flag.String("http-addr", "", "Serve the snapshot API on this address while scheduled")
	flag.Parse()

	if *useMemory {
		os.Setenv("USE_MEMORY", "true")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *launches != "" {
		cfg.Feeds.LaunchesFile = *launches
	}
	if *buys != "" {
		cfg.Feeds.BuysFile = *buys
	}
	if *schedule != "" {
		cfg.Analysis.Schedule = *schedule
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *report, *httpAddr, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("analysis failed")
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, printReport bool, httpAddr string, logger *logrus.Logger) error {
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

	consumer, err := app.NewConsumer(cfg.Feeds, stores, logger)
	if err != nil {
		return err
	}
	if consumer != nil {
		stats, err := consumer.Sync(ctx)
		if err != nil {
			return fmt.Errorf("feed sync: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"launches": stats.LaunchesStored,
			"buys":     stats.BuysStored,
			"dropped":  stats.Dropped,
			"gaps":     len(stats.Gaps),
		}).Info("feeds synced")
	}

	runner := app.NewRunner(cfg.Analysis, stores, notifier, logger)
	if err := runner.Warm(ctx); err != nil {
		logger.WithError(err).Warn("could not restore previous snapshot")
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"cohort":   result.Snapshot.CohortID,
		"status":   result.Snapshot.Status,
		"tokens":   result.TokensProcessed,
		"wallets":  len(result.Snapshot.Classifications),
		"invalid":  result.InvalidEvents,
		"duration": result.Duration,
	}).Info("classification complete")

	if printReport {
		rep, err := runner.Report(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	}

	if cfg.Analysis.Schedule == "" {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Schedule(ctx, cfg.Analysis.Schedule)
	})
	if httpAddr != "" {
		srv := api.New(api.Options{Classifier: runner, Logger: logger})
		g.Go(func() error {
			return srv.Run(ctx, httpAddr)
		})
	}
	return g.Wait()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
