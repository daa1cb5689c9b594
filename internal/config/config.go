// Package config loads application settings from YAML, .env files and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/ranking"
)

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// StorageConfig selects and connects persistence backends.
type StorageConfig struct {
	UseMemory     bool   `yaml:"use_memory"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // optional snapshot history
	RedisAddr     string `yaml:"redis_addr"`     // optional snapshot cache
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Migrate       bool   `yaml:"migrate"`
}

// FeedConfig points at the launch, buy and trade feeds.
type FeedConfig struct {
	LaunchesFile     string `yaml:"launches_file"` // JSONL
	BuysFile         string `yaml:"buys_file"`     // JSONL
	TradeWSURL       string `yaml:"trade_ws_url"`
	BatchSize        int    `yaml:"batch_size"`
	PollIntervalMS   int    `yaml:"poll_interval_ms"`
	LatenessWindowMS int    `yaml:"lateness_window_ms"`
	TradeBuffer      int    `yaml:"trade_buffer"`
}

// AnalysisConfig controls the early-buyer classification batch.
type AnalysisConfig struct {
	Schedule     string             `yaml:"schedule"` // cron spec; empty runs once
	Thresholds   ranking.Thresholds `yaml:"thresholds"`
	Concurrency  int                `yaml:"concurrency"`
	CacheTTLMins int                `yaml:"cache_ttl_minutes"` // 0 keeps until replaced
}

// CopyTradeConfig controls the orchestrator.
type CopyTradeConfig struct {
	SessionsFile      string `yaml:"sessions_file"` // session configs saved at startup
	SubmitTimeoutMS   int    `yaml:"submit_timeout_ms"`
	RetryInitialMS    int    `yaml:"retry_initial_ms"`
	RetryMaxElapsedMS int    `yaml:"retry_max_elapsed_ms"`
	ExitIntervalMS    int    `yaml:"exit_interval_ms"`
	SessionRefreshMS  int    `yaml:"session_refresh_ms"`
	QueueSize         int    `yaml:"queue_size"`
}

// NotifyConfig selects the notification sink. Without an AMQP URL events are logged.
type NotifyConfig struct {
	AMQPURL          string `yaml:"amqp_url"`
	Queue            string `yaml:"queue"`
	QueueSize        int    `yaml:"queue_size"`
	PublishTimeoutMS int    `yaml:"publish_timeout_ms"`
	ConnectWaitMS    int    `yaml:"connect_wait_ms"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config aggregates all app configuration knobs.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Feeds     FeedConfig      `yaml:"feeds"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	CopyTrade CopyTradeConfig `yaml:"copytrade"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
}

// LoadEnv loads .env files into the process environment. Missing files are skipped
// and variables already set are never overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: unable to parse %s: %w", path, err)
			}
		}
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Migrate: true,
		},
		Feeds: FeedConfig{
			BatchSize:        500,
			PollIntervalMS:   2000,
			LatenessWindowMS: 30000,
			TradeBuffer:      256,
		},
		Analysis: AnalysisConfig{
			Thresholds:  ranking.DefaultThresholds(),
			Concurrency: 8,
		},
		CopyTrade: CopyTradeConfig{
			SubmitTimeoutMS:   10000,
			RetryInitialMS:    250,
			RetryMaxElapsedMS: 30000,
			ExitIntervalMS:    15000,
			SessionRefreshMS:  30000,
			QueueSize:         256,
		},
		Notify: NotifyConfig{
			Queue:            "copytrade.events",
			QueueSize:        1024,
			PublishTimeoutMS: 5000,
			ConnectWaitMS:    30000,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if c.Feeds.BatchSize == 0 {
		c.Feeds.BatchSize = def.Feeds.BatchSize
	}
	if c.Feeds.PollIntervalMS == 0 {
		c.Feeds.PollIntervalMS = def.Feeds.PollIntervalMS
	}
	if c.Feeds.LatenessWindowMS == 0 {
		c.Feeds.LatenessWindowMS = def.Feeds.LatenessWindowMS
	}
	if c.Feeds.TradeBuffer == 0 {
		c.Feeds.TradeBuffer = def.Feeds.TradeBuffer
	}

	if c.Analysis.Thresholds == (ranking.Thresholds{}) {
		c.Analysis.Thresholds = def.Analysis.Thresholds
	}
	if c.Analysis.Concurrency == 0 {
		c.Analysis.Concurrency = def.Analysis.Concurrency
	}

	if c.CopyTrade.SubmitTimeoutMS == 0 {
		c.CopyTrade.SubmitTimeoutMS = def.CopyTrade.SubmitTimeoutMS
	}
	if c.CopyTrade.RetryInitialMS == 0 {
		c.CopyTrade.RetryInitialMS = def.CopyTrade.RetryInitialMS
	}
	if c.CopyTrade.RetryMaxElapsedMS == 0 {
		c.CopyTrade.RetryMaxElapsedMS = def.CopyTrade.RetryMaxElapsedMS
	}
	if c.CopyTrade.ExitIntervalMS == 0 {
		c.CopyTrade.ExitIntervalMS = def.CopyTrade.ExitIntervalMS
	}
	if c.CopyTrade.SessionRefreshMS == 0 {
		c.CopyTrade.SessionRefreshMS = def.CopyTrade.SessionRefreshMS
	}
	if c.CopyTrade.QueueSize == 0 {
		c.CopyTrade.QueueSize = def.CopyTrade.QueueSize
	}

	if c.Notify.Queue == "" {
		c.Notify.Queue = def.Notify.Queue
	}
	if c.Notify.QueueSize == 0 {
		c.Notify.QueueSize = def.Notify.QueueSize
	}
	if c.Notify.PublishTimeoutMS == 0 {
		c.Notify.PublishTimeoutMS = def.Notify.PublishTimeoutMS
	}
	if c.Notify.ConnectWaitMS == 0 {
		c.Notify.ConnectWaitMS = def.Notify.ConnectWaitMS
	}

	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
}

// applyEnv overrides connection settings and secrets from the environment.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LOG_LEVEL":      &c.Log.Level,
		"POSTGRES_DSN":   &c.Storage.PostgresDSN,
		"CLICKHOUSE_DSN": &c.Storage.ClickhouseDSN,
		"REDIS_ADDR":     &c.Storage.RedisAddr,
		"REDIS_PASSWORD": &c.Storage.RedisPassword,
		"TRADE_FEED_URL": &c.Feeds.TradeWSURL,
		"AMQP_URL":       &c.Notify.AMQPURL,
		"HTTP_ADDR":      &c.Server.Addr,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("USE_MEMORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: USE_MEMORY: %w", err)
		}
		c.Storage.UseMemory = b
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: REDIS_DB: %w", err)
		}
		c.Storage.RedisDB = db
	}
	return nil
}

// Validate rejects settings no component can start with.
func (c *Config) Validate() error {
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		return errors.New("config: storage.postgres_dsn is required unless storage.use_memory is set")
	}
	if err := c.Analysis.Thresholds.Validate(); err != nil {
		return fmt.Errorf("config: analysis.thresholds: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// Millis converts a millisecond knob to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// LoadSessions reads copy-trade session configs from a YAML or JSON file
// holding a list of sessions. Field names follow the API's JSON names.
func LoadSessions(path string) ([]*domain.CopyTradeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}

	// Decimals only decode from JSON, so route YAML through a generic value.
	var raw []any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: unable to parse %s: %w", path, err)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: unable to convert %s: %w", path, err)
	}

	var sessions []*domain.CopyTradeConfig
	if err := json.Unmarshal(encoded, &sessions); err != nil {
		return nil, fmt.Errorf("config: unable to decode sessions in %s: %w", path, err)
	}
	return sessions, nil
}
