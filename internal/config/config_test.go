package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SectorPulse/internal/strategy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "yahoo", cfg.DataSource.Provider)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, 500, cfg.Batch.ChunkSize)
	assert.Equal(t, strategy.BulkThresholds(), cfg.Strategy.Bulk)
	assert.Equal(t, strategy.SingleTickerThresholds(), cfg.Strategy.Single)
	assert.Contains(t, cfg.GlobalTickers, "^N225")
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
data_source:
  provider: rest
  base_url: http://bars.local
batch:
  workers: 4
  fetch_timeout: 5s
strategy:
  bulk:
    oversold: 33
    overbought: 75
    min_upside_ratio: 2.5
  atr_smoothing: wilder
sectors:
  Banks: 銀行・金融
kafka:
  brokers: [a:9092]
`)
	t.Setenv("BATCH_WORKERS", "16")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rest", cfg.DataSource.Provider)
	assert.Equal(t, 16, cfg.Batch.Workers)
	assert.Equal(t, 5*time.Second, cfg.Batch.FetchTimeout)
	assert.Equal(t, 33.0, cfg.Strategy.Bulk.Oversold)
	assert.Equal(t, 2.5, cfg.Strategy.Bulk.MinUpsideRatio)
	assert.Equal(t, strategy.AggressiveRSIMax, cfg.Strategy.Bulk.AggressiveRSIMax)
	assert.False(t, cfg.Strategy.Bulk.EnableSell)
	assert.Equal(t, "wilder", cfg.Strategy.ATRSmoothing)
	assert.Equal(t, "銀行・金融", cfg.Sectors["Banks"])
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	require.NoError(t, cfg.Validate())
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("BATCH_WORKERS", "many")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "BATCH_WORKERS")
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "batch: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.DataSource.Provider = "bloomberg" }, "data_source.provider"},
		{"rest without url", func(c *Config) { c.DataSource.Provider = "rest" }, "base_url"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "postgres_dsn"},
		{"bad cron", func(c *Config) { c.Schedule.DailyCron = "every day" }, "daily_cron"},
		{"short history", func(c *Config) { c.Batch.HistoryDays = 30 }, "history_days"},
		{"inverted thresholds", func(c *Config) { c.Strategy.Bulk.Oversold = 80 }, "strategy.bulk"},
		{"bad atr", func(c *Config) { c.Strategy.ATRSmoothing = "ema" }, "atr_smoothing"},
		{"polling without token", func(c *Config) { c.Telegram.Polling = true }, "telegram.polling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, Path())
	t.Setenv("CONFIG_PATH", "/etc/sectorpulse.yaml")
	assert.Equal(t, "/etc/sectorpulse.yaml", Path())
}
