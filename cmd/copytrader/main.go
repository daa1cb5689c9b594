// Package main runs the copy-trade orchestrator: it follows every configured
// session's target wallet, mirrors trades through the paper or live broker,
// and serves the control API (status, emergency stop, resume, configs).
package main

import (
	"context"
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
	"solana-copytrade-lab/internal/configstore"
	"solana-copytrade-lab/internal/observability"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "YAML config file")
	sessions := flag.String("sessions", "", "Session config file saved at startup (overrides copytrade.sessions_file)")
	tradeFeed := flag.String("trade-feed", "", "Target trade websocket URL (overrides feeds.trade_ws_url)")
	httpAddr := flag.String("http-addr", "", "Control API address (overrides server.addr)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	if *useMemory {
		os.Setenv("USE_MEMORY", "true")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *sessions != "" {
		cfg.CopyTrade.SessionsFile = *sessions
	}
	if *tradeFeed != "" {
		cfg.Feeds.TradeWSURL = *tradeFeed
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("copytrader failed")
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
	n, err := app.SeedSessions(ctx, cfg.CopyTrade.SessionsFile, configs)
	if err != nil {
		return fmt.Errorf("seed sessions: %w", err)
	}
	if n > 0 {
		logger.WithField("sessions", n).Info("session configs saved")
	}

	feed := app.NewTradeFeed(cfg.Feeds, logger)
	orch := app.NewOrchestrator(cfg.CopyTrade, stores, feed, nil, notifier, logger)

	srv := api.New(api.Options{
		Controller: orch,
		Configs:    configs,
		Orders:     stores.Orders,
		Logger:     logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx, cfg.Server.Addr)
	})
	return g.Wait()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
