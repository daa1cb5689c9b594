package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/analysis"
	"solana-copytrade-lab/internal/config"
	"solana-copytrade-lab/internal/configstore"
	"solana-copytrade-lab/internal/copytrade"
	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/ingestion"
	"solana-copytrade-lab/internal/notify"
	"solana-copytrade-lab/internal/storage"
)

// NewNotifier returns a fire-and-forget notifier over AMQP when configured,
// otherwise over the log. Close the dispatcher, then call cleanup.
func NewNotifier(ctx context.Context, cfg config.NotifyConfig, logger logrus.FieldLogger) (*notify.Dispatcher, func(), error) {
	var (
		sink    notify.Sink
		cleanup = func() {}
	)

	if cfg.AMQPURL != "" {
		amqpSink, err := notify.NewAMQPSink(ctx, cfg.AMQPURL, cfg.Queue, config.Millis(cfg.ConnectWaitMS), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to amqp: %w", err)
		}
		sink = amqpSink
		cleanup = func() { amqpSink.Close() }
	} else {
		sink = notify.NewLogSink(logger)
	}

	d := notify.NewDispatcher(sink, notify.DispatcherOptions{
		QueueSize:      cfg.QueueSize,
		PublishTimeout: config.Millis(cfg.PublishTimeoutMS),
		Logger:         logger,
	})
	return d, cleanup, nil
}

// NewConsumer builds the launch/buy feed consumer over the configured JSONL dumps.
// Returns nil when no launch file is configured.
func NewConsumer(cfg config.FeedConfig, stores *Stores, logger logrus.FieldLogger) (*ingestion.Consumer, error) {
	if cfg.LaunchesFile == "" {
		return nil, nil
	}

	launches, err := ingestion.LoadLaunchesJSONL(cfg.LaunchesFile)
	if err != nil {
		return nil, fmt.Errorf("load launches: %w", err)
	}
	var buyFeed *ingestion.SliceBuyFeed
	if cfg.BuysFile != "" {
		buys, err := ingestion.LoadBuysJSONL(cfg.BuysFile)
		if err != nil {
			return nil, fmt.Errorf("load buys: %w", err)
		}
		buyFeed = ingestion.NewSliceBuyFeed(buys)
	} else {
		buyFeed = ingestion.NewSliceBuyFeed(nil)
	}

	return ingestion.NewConsumer(ingestion.ConsumerOptions{
		LaunchFeed:     ingestion.NewSliceLaunchFeed(launches),
		BuyFeed:        buyFeed,
		LaunchStore:    stores.Launches,
		BuyStore:       stores.Buys,
		ProgressStore:  stores.Progress,
		BatchSize:      cfg.BatchSize,
		PollInterval:   config.Millis(cfg.PollIntervalMS),
		LatenessWindow: config.Millis(cfg.LatenessWindowMS),
		Logger:         logger,
	}), nil
}

// NewRunner builds the classification runner.
func NewRunner(cfg config.AnalysisConfig, stores *Stores, notifier notify.Notifier, logger logrus.FieldLogger) *analysis.Runner {
	return analysis.New(analysis.Options{
		LaunchStore:   stores.Launches,
		BuyStore:      stores.Buys,
		ResultStore:   stores.Results,
		ProgressStore: stores.Progress,
		HistoryStore:  stores.History,
		Cache:         stores.Cache,
		Thresholds:    cfg.Thresholds,
		Notifier:      notifier,
		Concurrency:   cfg.Concurrency,
		CacheTTL:      config.Millis(cfg.CacheTTLMins * 60 * 1000),
		Logger:        logger,
	})
}

// NewTradeFeed returns the websocket feed when a URL is configured, otherwise
// an in-process feed that only carries trades published by this process.
func NewTradeFeed(cfg config.FeedConfig, logger logrus.FieldLogger) ingestion.TradeFeed {
	if cfg.TradeWSURL == "" {
		logger.Warn("no trade feed configured, target trades arrive only in-process")
		return ingestion.NewMemoryTradeFeed(cfg.TradeBuffer)
	}
	wsCfg := ingestion.DefaultWSConfig()
	wsCfg.Buffer = cfg.TradeBuffer
	return ingestion.NewWSTradeFeed(cfg.TradeWSURL, &wsCfg, nil, logger)
}

// NewOrchestrator builds the copy-trade orchestrator. Live configs have no
// broker until one is supplied; their orders are rejected.
func NewOrchestrator(cfg config.CopyTradeConfig, stores *Stores, feed ingestion.TradeFeed, live copytrade.Broker, notifier notify.Notifier, logger logrus.FieldLogger) *copytrade.Orchestrator {
	return copytrade.New(copytrade.Options{
		ConfigStore:     stores.Configs,
		OrderStore:      stores.Orders,
		RiskStore:       stores.Risk,
		PositionStore:   stores.Positions,
		Feed:            feed,
		LiveBroker:      live,
		Notifier:        notifier,
		SubmitTimeout:   config.Millis(cfg.SubmitTimeoutMS),
		RetryInitial:    config.Millis(cfg.RetryInitialMS),
		RetryMaxElapsed: config.Millis(cfg.RetryMaxElapsedMS),
		ExitInterval:    config.Millis(cfg.ExitIntervalMS),
		SessionRefresh:  config.Millis(cfg.SessionRefreshMS),
		QueueSize:       cfg.QueueSize,
		Logger:          logger,
	})
}

// SeedSessions saves the sessions in the configured sessions file. Sessions whose
// active version already matches the file are left alone. Returns how many
// new versions were stored.
func SeedSessions(ctx context.Context, path string, svc *configstore.Service) (int, error) {
	if path == "" {
		return 0, nil
	}
	sessions, err := config.LoadSessions(path)
	if err != nil {
		return 0, err
	}

	saved := 0
	for _, s := range sessions {
		current, err := svc.Get(ctx, s.SessionID)
		switch {
		case err == nil && sameSettings(current, s):
			continue
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return saved, fmt.Errorf("session %q: %w", s.SessionID, err)
		}
		if _, err := svc.Save(ctx, s); err != nil {
			return saved, fmt.Errorf("session %q: %w", s.SessionID, err)
		}
		saved++
	}
	return saved, nil
}

// sameSettings compares two configs after defaults, ignoring version metadata.
func sameSettings(stored, candidate *domain.CopyTradeConfig) bool {
	normalize := func(c *domain.CopyTradeConfig) []byte {
		n := c.WithDefaults()
		if n.Budget.Currency == "" {
			n.Budget.Currency = "SOL"
		}
		n.Version, n.CreatedAt = 0, 0
		data, _ := json.Marshal(n)
		return data
	}
	return bytes.Equal(normalize(stored), normalize(candidate))
}
