package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"SectorPulse/internal/calculator"
	"SectorPulse/internal/macro"
	"SectorPulse/internal/strategy"
)

// DefaultPath is read when CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Discord struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"discord"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Polling  bool   `yaml:"polling"`
	} `yaml:"telegram"`
	Gemini struct {
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model"`
		Temperature float32       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxRetries  int           `yaml:"max_retries"`
	} `yaml:"gemini"`
	DataSource struct {
		// Provider is yahoo, rest or mock.
		Provider  string  `yaml:"provider"`
		BaseURL   string  `yaml:"base_url"`
		APIKey    string  `yaml:"api_key"`
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"data_source"`
	Universe struct {
		Path       string `yaml:"path"`
		ListingURL string `yaml:"listing_url"`
		// RefreshOnStart scrapes the exchange listing before the first run.
		RefreshOnStart bool `yaml:"refresh_on_start"`
	} `yaml:"universe"`
	Reference struct {
		Symbol string `yaml:"symbol"`
	} `yaml:"reference"`
	// GlobalTickers maps provider symbols to the labels in the market snapshot.
	GlobalTickers map[string]string `yaml:"global_tickers"`
	Strategy      struct {
		Bulk         strategy.Thresholds `yaml:"bulk"`
		Single       strategy.Thresholds `yaml:"single"`
		ATRSmoothing string              `yaml:"atr_smoothing"`
	} `yaml:"strategy"`
	// Sectors overrides the industry label to macro bucket table.
	Sectors map[string]string `yaml:"sectors"`
	Batch   struct {
		Workers      int           `yaml:"workers"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
		HistoryDays  int           `yaml:"history_days"`
		ChunkSize    int           `yaml:"chunk_size"`
		NotifyWait   bool          `yaml:"notify_wait"`
	} `yaml:"batch"`
	Schedule struct {
		DailyCron  string `yaml:"daily_cron"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Database struct {
		// Driver is sqlite, postgres or none.
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Telemetry struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"telemetry"`
	RSS struct {
		Feeds   []string `yaml:"feeds"`
		PerFeed int      `yaml:"per_feed"`
	} `yaml:"rss"`
	Proxy string `yaml:"proxy"`
}

// Path returns CONFIG_PATH or the default location.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Threshold presets are filled first so a file may override single fields.
	cfg.Strategy.Bulk = strategy.BulkThresholds()
	cfg.Strategy.Single = strategy.SingleTickerThresholds()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"DISCORD_WEBHOOK_URL": &c.Discord.WebhookURL,
		"TELEGRAM_BOT_TOKEN":  &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":    &c.Telegram.ChatID,
		"GEMINI_API_KEY":      &c.Gemini.APIKey,
		"GEMINI_MODEL":        &c.Gemini.Model,
		"DATA_PROVIDER":       &c.DataSource.Provider,
		"DATA_BASE_URL":       &c.DataSource.BaseURL,
		"DATA_API_KEY":        &c.DataSource.APIKey,
		"UNIVERSE_PATH":       &c.Universe.Path,
		"REFERENCE_SYMBOL":    &c.Reference.Symbol,
		"CRON_DAILY":          &c.Schedule.DailyCron,
		"DB_DRIVER":           &c.Database.Driver,
		"SQLITE_PATH":         &c.Database.SQLitePath,
		"DATABASE_URL":        &c.Database.PostgresDSN,
		"REDIS_ADDR":          &c.Redis.Addr,
		"REDIS_PASSWORD":      &c.Redis.Password,
		"KAFKA_TOPIC":         &c.Kafka.Topic,
		"SERVER_ADDR":         &c.Server.Addr,
		"LOG_LEVEL":           &c.Log.Level,
		"LOG_FORMAT":          &c.Log.Format,
		"HTTPS_PROXY":         &c.Proxy,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("RSS_FEEDS"); v != "" {
		c.RSS.Feeds = splitList(v)
	}

	var errs []error
	if v := os.Getenv("BATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BATCH_WORKERS: %w", err))
		}
		c.Batch.Workers = n
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RUN_ON_START: %w", err))
		}
		c.Schedule.RunOnStart = b
	}
	if v := os.Getenv("TELEGRAM_POLLING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_POLLING: %w", err))
		}
		c.Telegram.Polling = b
	}
	if v := os.Getenv("TELEMETRY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEMETRY_ENABLED: %w", err))
		}
		c.Telemetry.Enabled = b
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.RateLimit == 0 {
		c.DataSource.RateLimit = 5
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = macro.DefaultGeminiModel
	}
	if c.Gemini.Temperature == 0 {
		c.Gemini.Temperature = 0.2
	}
	if c.Gemini.Timeout == 0 {
		c.Gemini.Timeout = 60 * time.Second
	}
	if c.Gemini.MaxRetries == 0 {
		c.Gemini.MaxRetries = 3
	}
	if c.Universe.Path == "" {
		c.Universe.Path = "data/prime_tickers.csv"
	}
	if c.Reference.Symbol == "" {
		c.Reference.Symbol = "^N225"
	}
	if c.GlobalTickers == nil {
		c.GlobalTickers = map[string]string{
			"^N225":  "Nikkei 225",
			"^GSPC":  "S&P 500",
			"^IXIC":  "NASDAQ",
			"^SOX":   "PHLX Semiconductor",
			"JPY=X":  "USD/JPY",
			"^TNX":   "US 10Y yield",
			"CL=F":   "WTI crude",
			"1306.T": "TOPIX ETF",
		}
	}
	if c.Strategy.Bulk == (strategy.Thresholds{}) {
		c.Strategy.Bulk = strategy.BulkThresholds()
	}
	if c.Strategy.Single == (strategy.Thresholds{}) {
		c.Strategy.Single = strategy.SingleTickerThresholds()
	}
	if c.Strategy.ATRSmoothing == "" {
		c.Strategy.ATRSmoothing = calculator.ATRSmoothingSimple
	}
	if c.Batch.Workers == 0 {
		c.Batch.Workers = 8
	}
	if c.Batch.FetchTimeout == 0 {
		c.Batch.FetchTimeout = 20 * time.Second
	}
	if c.Batch.HistoryDays == 0 {
		c.Batch.HistoryDays = 200
	}
	if c.Batch.ChunkSize == 0 {
		c.Batch.ChunkSize = 500
	}
	if c.Schedule.DailyCron == "" {
		// 16:30 JST on weekdays, after the Tokyo close.
		c.Schedule.DailyCron = "0 30 7 * * 1-5"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/sectorpulse.db"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 24 * time.Hour
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "sectorpulse.signals"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "sectorpulse"
	}
	if c.RSS.PerFeed == 0 {
		c.RSS.PerFeed = 5
	}
	if len(c.RSS.Feeds) == 0 {
		c.RSS.Feeds = []string{
			"https://news.google.com/rss/search?q=stock+market&hl=en-US&gl=US&ceid=US:en",
			"https://news.google.com/rss/search?q=%E6%97%A5%E7%B5%8C%E5%B9%B3%E5%9D%87&hl=ja&gl=JP&ceid=JP:ja",
		}
	}
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.DataSource.Provider {
	case "yahoo", "mock":
	case "rest":
		if c.DataSource.BaseURL == "" {
			errs = append(errs, errors.New("data_source.base_url is required for the rest provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("data_source.provider %q is not yahoo, rest or mock", c.DataSource.Provider))
	}
	switch c.Database.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("database.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not sqlite, postgres or none", c.Database.Driver))
	}
	if c.Strategy.ATRSmoothing != calculator.ATRSmoothingSimple && c.Strategy.ATRSmoothing != calculator.ATRSmoothingWilder {
		errs = append(errs, fmt.Errorf("strategy.atr_smoothing %q is not simple or wilder", c.Strategy.ATRSmoothing))
	}
	for name, th := range map[string]strategy.Thresholds{"bulk": c.Strategy.Bulk, "single": c.Strategy.Single} {
		if th.Oversold <= 0 || th.Oversold >= th.Overbought || th.Overbought > 100 {
			errs = append(errs, fmt.Errorf("strategy.%s: need 0 < oversold < overbought <= 100", name))
		}
	}
	if c.Batch.Workers < 1 {
		errs = append(errs, errors.New("batch.workers must be positive"))
	}
	if c.Batch.HistoryDays < calculator.MinBars {
		errs = append(errs, fmt.Errorf("batch.history_days must be at least %d", calculator.MinBars))
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Schedule.DailyCron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.daily_cron: %w", err))
	}
	if c.Telegram.Polling && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram.polling needs bot_token and chat_id"))
	}
	return errors.Join(errs...)
}
