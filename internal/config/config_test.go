package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Finnhub.ApiKey = "fk"
	cfg.Alpaca.ApiKey = "ak"
	cfg.Alpaca.ApiSecret = "as"
	return cfg
}

func TestValidateAcceptsDefaultsWithCredentials(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCatchesProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "daemon" }, "unknown mode"},
		{"missing finnhub key", func(c *Config) { c.Finnhub.ApiKey = "" }, "finnhub"},
		{"bad postgres port", func(c *Config) { c.Postgres.Port = 99999 }, "postgres: port"},
		{"bad safety margin", func(c *Config) { c.Trading.SafetyMargin = 1.5 }, "safety_margin"},
		{"empty queue key", func(c *Config) { c.Queue.Key = "" }, "queue: key"},
		{"partial twitter creds", func(c *Config) { c.Notify.TwitterApiKey = "only-one" }, "twitter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateServeModeSkipsTradingCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "serve"
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "schedule"

[trading]
run_cap = 9

[queue]
retry_min_wait = "90s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("NOUS_FINNHUB_API_KEY", "from-env")
	t.Setenv("NOUS_TRADING_ORDER_QTY", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File overrides defaults.
	require.Equal(t, "schedule", cfg.Mode)
	require.Equal(t, 9, cfg.Trading.RunCap)
	require.Equal(t, 90*time.Second, cfg.Queue.RetryMinWait.Duration)

	// Env overrides file and defaults.
	require.Equal(t, "from-env", cfg.Finnhub.ApiKey)
	require.Equal(t, 4, cfg.Trading.OrderQty)

	// Untouched defaults survive.
	require.Equal(t, "queue:createstockorder", cfg.Queue.Key)
}

func TestMarketOffset(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 4*time.Hour, cfg.MarketOffset())

	cfg.Trading.MarketUTCOffsetHours = 5
	require.Equal(t, 5*time.Hour, cfg.MarketOffset())
}
