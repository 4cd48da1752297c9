package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NOUS_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NOUS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Finnhub ---
	setStr(&cfg.Finnhub.ApiKey, "NOUS_FINNHUB_API_KEY")
	setStr(&cfg.Finnhub.ApiKey, "STOCKS_API_KEY") // compatibility alias
	setStr(&cfg.Finnhub.BaseURL, "NOUS_FINNHUB_BASE_URL")
	setInt(&cfg.Finnhub.LookaheadDays, "NOUS_FINNHUB_LOOKAHEAD_DAYS")

	// --- Alpaca ---
	setStr(&cfg.Alpaca.ApiKey, "NOUS_ALPACA_API_KEY")
	setStr(&cfg.Alpaca.ApiSecret, "NOUS_ALPACA_API_SECRET")
	setStr(&cfg.Alpaca.TradingURL, "NOUS_ALPACA_TRADING_URL")
	setStr(&cfg.Alpaca.DataURL, "NOUS_ALPACA_DATA_URL")

	// --- News ---
	setStr(&cfg.News.ApiKey, "NOUS_NEWS_API_KEY")
	setStr(&cfg.News.BaseURL, "NOUS_NEWS_BASE_URL")
	setInt(&cfg.News.LookbackDays, "NOUS_NEWS_LOOKBACK_DAYS")
	setInt(&cfg.News.PageSize, "NOUS_NEWS_PAGE_SIZE")

	// --- Gemini ---
	setStr(&cfg.Gemini.ApiKey, "NOUS_GEMINI_API_KEY")
	setStr(&cfg.Gemini.BaseURL, "NOUS_GEMINI_BASE_URL")
	setStr(&cfg.Gemini.Model, "NOUS_GEMINI_MODEL")

	// --- Postgres ---
	setStr(&cfg.Postgres.DSN, "NOUS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "NOUS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NOUS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NOUS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NOUS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NOUS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NOUS_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NOUS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NOUS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NOUS_POSTGRES_RUN_MIGRATIONS")

	// --- Redis ---
	setStr(&cfg.Redis.Addr, "NOUS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NOUS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NOUS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NOUS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NOUS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NOUS_REDIS_TLS_ENABLED")

	// --- S3 ---
	setBool(&cfg.S3.Enabled, "NOUS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "NOUS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NOUS_S3_REGION")
	setStr(&cfg.S3.Bucket, "NOUS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NOUS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NOUS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NOUS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NOUS_S3_FORCE_PATH_STYLE")

	// --- Trading ---
	setInt(&cfg.Trading.OrderQty, "NOUS_TRADING_ORDER_QTY")
	setInt(&cfg.Trading.RunCap, "NOUS_TRADING_RUN_CAP")
	setInt(&cfg.Trading.CandidateLimit, "NOUS_TRADING_CANDIDATE_LIMIT")
	setInt(&cfg.Trading.MarketUTCOffsetHours, "NOUS_TRADING_MARKET_UTC_OFFSET_HOURS")
	setFloat64(&cfg.Trading.SafetyMargin, "NOUS_TRADING_SAFETY_MARGIN")

	// --- Queue ---
	setStr(&cfg.Queue.Key, "NOUS_QUEUE_KEY")
	setInt(&cfg.Queue.MaxAttempts, "NOUS_QUEUE_MAX_ATTEMPTS")
	setDuration(&cfg.Queue.RetryMinWait, "NOUS_QUEUE_RETRY_MIN_WAIT")
	setInt(&cfg.Queue.MaxConcurrency, "NOUS_QUEUE_MAX_CONCURRENCY")
	setDuration(&cfg.Queue.PollInterval, "NOUS_QUEUE_POLL_INTERVAL")

	// --- Schedule ---
	setStr(&cfg.Schedule.FormulateCron, "NOUS_SCHEDULE_FORMULATE_CRON")
	setStr(&cfg.Schedule.ReconcileCron, "NOUS_SCHEDULE_RECONCILE_CRON")
	setStr(&cfg.Schedule.ArchiveCron, "NOUS_SCHEDULE_ARCHIVE_CRON")
	setInt(&cfg.Schedule.ArchiveRetentionDays, "NOUS_SCHEDULE_ARCHIVE_RETENTION_DAYS")

	// --- Server ---
	setBool(&cfg.Server.Enabled, "NOUS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "NOUS_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "NOUS_SERVER_API_KEY")
	setStr(&cfg.Server.ApiKey, "NOUS_API_KEY") // compatibility alias

	// --- Notify ---
	setStr(&cfg.Notify.TwitterApiKey, "NOUS_TWITTER_API_KEY")
	setStr(&cfg.Notify.TwitterApiSecret, "NOUS_TWITTER_API_SECRET")
	setStr(&cfg.Notify.TwitterAccessToken, "NOUS_TWITTER_ACCESS_TOKEN")
	setStr(&cfg.Notify.TwitterAccessTokenSecret, "NOUS_TWITTER_ACCESS_TOKEN_SECRET")

	// --- Top-level ---
	setStr(&cfg.Mode, "NOUS_MODE")
	setStr(&cfg.LogLevel, "NOUS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
