// Package config defines the top-level configuration for the nous trading
// pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NOUS_* environment variables.
type Config struct {
	Finnhub  FinnhubConfig  `toml:"finnhub"`
	Alpaca   AlpacaConfig   `toml:"alpaca"`
	News     NewsConfig     `toml:"news"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Trading  TradingConfig  `toml:"trading"`
	Queue    QueueConfig    `toml:"queue"`
	Schedule ScheduleConfig `toml:"schedule"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// FinnhubConfig holds calendar-feed API parameters.
type FinnhubConfig struct {
	ApiKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	// LookaheadDays bounds how far ahead the calendar window reaches.
	LookaheadDays int `toml:"lookahead_days"`
}

// AlpacaConfig holds brokerage API credentials and endpoints. The market-data
// host and the trading host are separate services.
type AlpacaConfig struct {
	ApiKey     string `toml:"api_key"`
	ApiSecret  string `toml:"api_secret"`
	TradingURL string `toml:"trading_url"`
	DataURL    string `toml:"data_url"`
}

// NewsConfig holds the news-search API parameters.
type NewsConfig struct {
	ApiKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	// LookbackDays bounds how old an article may be to count as recent.
	LookbackDays int `toml:"lookback_days"`
	PageSize     int `toml:"page_size"`
}

// GeminiConfig holds the generative-text API parameters.
type GeminiConfig struct {
	ApiKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for cold-storage
// archival of terminal actions.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradingConfig holds the order-formulation parameters.
type TradingConfig struct {
	// OrderQty is the share quantity of each bracket entry.
	OrderQty int `toml:"order_qty"`
	// RunCap bounds how many actions one scheduling run may schedule.
	RunCap int `toml:"run_cap"`
	// CandidateLimit truncates each candidate list after sorting.
	CandidateLimit int `toml:"candidate_limit"`
	// MarketUTCOffsetHours is the fixed offset between the scheduling clock
	// and the market timezone, applied to every execute time.
	MarketUTCOffsetHours int `toml:"market_utc_offset_hours"`
	// SafetyMargin is subtracted from the lower multiplier to form the
	// stop-loss limit price.
	SafetyMargin float64 `toml:"safety_margin"`
}

// QueueConfig holds delayed-dispatch parameters.
type QueueConfig struct {
	// Key is the Redis key prefix for the delayed task set.
	Key          string   `toml:"key"`
	MaxAttempts  int      `toml:"max_attempts"`
	RetryMinWait duration `toml:"retry_min_wait"`
	// MaxConcurrency bounds simultaneously in-flight dispatches, respecting
	// brokerage rate limits.
	MaxConcurrency int      `toml:"max_concurrency"`
	PollInterval   duration `toml:"poll_interval"`
}

// ScheduleConfig holds the periodic entry-point timings.
type ScheduleConfig struct {
	// FormulateCron triggers the aggregation + scheduling run.
	FormulateCron string `toml:"formulate_cron"`
	// ReconcileCron triggers the execution reconciler.
	ReconcileCron string `toml:"reconcile_cron"`
	// ArchiveCron triggers cold-storage archival.
	ArchiveCron          string `toml:"archive_cron"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	ApiKey  string `toml:"api_key"`
}

// NotifyConfig holds social-post credentials. All four Twitter fields must be
// set together for the sender to be constructed.
type NotifyConfig struct {
	TwitterApiKey            string `toml:"twitter_api_key"`
	TwitterApiSecret         string `toml:"twitter_api_secret"`
	TwitterAccessToken       string `toml:"twitter_access_token"`
	TwitterAccessTokenSecret string `toml:"twitter_access_token_secret"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Finnhub: FinnhubConfig{
			BaseURL:       "https://finnhub.io",
			LookaheadDays: 3,
		},
		Alpaca: AlpacaConfig{
			TradingURL: "https://paper-api.alpaca.markets",
			DataURL:    "https://data.alpaca.markets",
		},
		News: NewsConfig{
			BaseURL:      "https://newsapi.org",
			LookbackDays: 180,
			PageSize:     10,
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.5-flash",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "nous",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nous-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Trading: TradingConfig{
			OrderQty:             1,
			RunCap:               5,
			CandidateLimit:       50,
			MarketUTCOffsetHours: 4,
			SafetyMargin:         0.01,
		},
		Queue: QueueConfig{
			Key:            "queue:createstockorder",
			MaxAttempts:    5,
			RetryMinWait:   duration{60 * time.Second},
			MaxConcurrency: 10,
			PollInterval:   duration{time.Second},
		},
		Schedule: ScheduleConfig{
			FormulateCron:        "0 4 * * *",
			ReconcileCron:        "0 * * * *",
			ArchiveCron:          "0 3 1 * *",
			ArchiveRetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":       true,
	"schedule":  true,
	"reconcile": true,
	"serve":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, schedule, reconcile, serve)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Collaborator credentials are required for every mode that trades.
	if c.Mode != "serve" {
		if c.Finnhub.ApiKey == "" {
			errs = append(errs, "finnhub: api_key must not be empty")
		}
		if c.Alpaca.ApiKey == "" || c.Alpaca.ApiSecret == "" {
			errs = append(errs, "alpaca: api_key and api_secret must both be set")
		}
	}
	if c.Finnhub.BaseURL == "" {
		errs = append(errs, "finnhub: base_url must not be empty")
	}
	if c.Alpaca.TradingURL == "" || c.Alpaca.DataURL == "" {
		errs = append(errs, "alpaca: trading_url and data_url must not be empty")
	}
	if c.News.BaseURL == "" {
		errs = append(errs, "news: base_url must not be empty")
	}
	if c.News.PageSize < 1 {
		errs = append(errs, "news: page_size must be >= 1")
	}
	if c.Gemini.BaseURL == "" || c.Gemini.Model == "" {
		errs = append(errs, "gemini: base_url and model must not be empty")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 only matters when archival is on.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Trading
	if c.Trading.OrderQty < 1 {
		errs = append(errs, "trading: order_qty must be >= 1")
	}
	if c.Trading.RunCap < 1 {
		errs = append(errs, "trading: run_cap must be >= 1")
	}
	if c.Trading.CandidateLimit < 1 {
		errs = append(errs, "trading: candidate_limit must be >= 1")
	}
	if c.Trading.SafetyMargin <= 0 || c.Trading.SafetyMargin >= 1 {
		errs = append(errs, fmt.Sprintf("trading: safety_margin must be in (0, 1), got %g", c.Trading.SafetyMargin))
	}

	// Queue
	if c.Queue.Key == "" {
		errs = append(errs, "queue: key must not be empty")
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, "queue: max_attempts must be >= 1")
	}
	if c.Queue.MaxConcurrency < 1 {
		errs = append(errs, "queue: max_concurrency must be >= 1")
	}
	if c.Queue.PollInterval.Duration <= 0 {
		errs = append(errs, "queue: poll_interval must be positive")
	}

	// All four notify credentials must be set together, or all empty.
	nk := c.Notify.TwitterApiKey != ""
	ns := c.Notify.TwitterApiSecret != ""
	nt := c.Notify.TwitterAccessToken != ""
	nts := c.Notify.TwitterAccessTokenSecret != ""
	if nk || ns || nt || nts {
		if !(nk && ns && nt && nts) {
			errs = append(errs, "notify: all four twitter credentials must be set together")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MarketOffset returns the configured market-clock offset as a Duration.
func (c *Config) MarketOffset() time.Duration {
	return time.Duration(c.Trading.MarketUTCOffsetHours) * time.Hour
}
