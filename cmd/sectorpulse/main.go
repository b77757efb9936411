package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"SectorPulse/internal/api"
	"SectorPulse/internal/batch"
	"SectorPulse/internal/collector"
	"SectorPulse/internal/config"
	"SectorPulse/internal/events"
	"SectorPulse/internal/logging"
	"SectorPulse/internal/macro"
	"SectorPulse/internal/model"
	"SectorPulse/internal/notifier"
	"SectorPulse/internal/recorder"
	"SectorPulse/internal/scheduler"
	"SectorPulse/internal/sector"
	"SectorPulse/internal/telemetry"
	"SectorPulse/internal/universe"
)

func main() {
	once := flag.Bool("once", false, "run the daily batch once and exit")
	date := flag.String("date", "", "analyze as of YYYY-MM-DD (with -once)")
	refresh := flag.Bool("refresh-universe", false, "scrape the exchange listing into the universe CSV and exit")
	flag.Parse()

	if err := run(*once, *date, *refresh); err != nil {
		fmt.Fprintf(os.Stderr, "sectorpulse: %v\n", err)
		os.Exit(1)
	}
}

func run(once bool, date string, refresh bool) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("sectorpulse starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTracing(context.Background())

	scraper := universe.NewJPXScraper(logger)
	if cfg.Universe.ListingURL != "" {
		scraper.PageURL = cfg.Universe.ListingURL
	}
	if refresh || cfg.Universe.RefreshOnStart {
		if err := refreshUniverse(ctx, scraper, cfg.Universe.Path, logger); err != nil {
			if refresh {
				return err
			}
			logger.Warn("universe refresh failed, using existing file", zap.Error(err))
		}
		if refresh {
			return nil
		}
	}

	fetcher := newFetcher(cfg)
	logger.Info("data source", zap.String("provider", fetcher.Name()))

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	mapper := sector.NewMapper(cfg.Sectors)
	sentiment, closeCache := newSentiment(ctx, cfg, mapper, logger)
	defer closeCache()

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	tn, notif := newNotifiers(cfg, logger)

	runner := batch.NewRunner(batch.Deps{
		Fetcher:   fetcher,
		Sectors:   mapper,
		Sentiment: sentiment,
		Store:     store,
		Notifier:  notif,
		Publisher: publisher,
		Universe: func(context.Context) ([]model.Ticker, error) {
			return universe.Load(cfg.Universe.Path)
		},
	}, batch.Options{
		Workers:          cfg.Batch.Workers,
		FetchTimeout:     cfg.Batch.FetchTimeout,
		HistoryDays:      cfg.Batch.HistoryDays,
		ReferenceSymbol:  cfg.Reference.Symbol,
		GlobalSymbols:    cfg.GlobalTickers,
		Thresholds:       cfg.Strategy.Bulk,
		SingleThresholds: cfg.Strategy.Single,
		ChunkSize:        cfg.Batch.ChunkSize,
		ATRSmoothing:     cfg.Strategy.ATRSmoothing,
		NotifyWait:       cfg.Batch.NotifyWait,
	}, logger)

	if once {
		return runOnce(ctx, runner, date, logger)
	}

	sched := scheduler.NewScheduler(ctx, runner, store, logger)
	if err := sched.RegisterDaily(cfg.Schedule.DailyCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil && cfg.Telegram.Polling {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	if cfg.Schedule.RunOnStart {
		logger.Info("run_on_start enabled, executing daily batch now")
		go sched.RunNow()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.SetupRoutes(api.NewHandler(ctx, runner, store, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("sectorpulse stopped")
	return nil
}

func runOnce(ctx context.Context, runner *batch.Runner, date string, logger *zap.Logger) error {
	var asOf time.Time
	if date != "" {
		d, err := time.Parse(recorder.DateLayout, date)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", date, err)
		}
		asOf = d
	}
	report, err := runner.RunDaily(ctx, asOf)
	if err != nil {
		return err
	}
	logger.Info("batch complete",
		zap.String("run_id", report.RunID),
		zap.Int("results", len(report.Results)),
		zap.Int("actionable", len(report.Actionable())),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("errors", len(report.Errors)),
		zap.Strings("warnings", report.Warnings))
	return nil
}

func refreshUniverse(ctx context.Context, scraper *universe.JPXScraper, path string, logger *zap.Logger) error {
	tickers, err := scraper.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("refresh universe: %w", err)
	}
	if err := universe.Save(path, tickers); err != nil {
		return err
	}
	logger.Info("universe saved", zap.String("path", path), zap.Int("tickers", len(tickers)))
	return nil
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	opts := []collector.Option{
		collector.WithProxy(cfg.Proxy),
		collector.WithRateLimit(cfg.DataSource.RateLimit),
	}
	switch cfg.DataSource.Provider {
	case "mock":
		return &collector.MockFetcher{Price: 1000}
	case "rest":
		return collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, opts...)
	default:
		if cfg.DataSource.BaseURL != "" {
			opts = append(opts, collector.WithBaseURL(cfg.DataSource.BaseURL))
		}
		return collector.NewYahooFetcher(opts...)
	}
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (recorder.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		s, err := recorder.NewPostgresStore(ctx, cfg.Database.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	case "none":
		return recorder.NewNoopStore(), nil
	default:
		s, err := recorder.NewSQLiteStore(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn("init sqlite store failed, using noop", zap.Error(err))
			return recorder.NewNoopStore(), nil
		}
		return s, nil
	}
}

func newSentiment(ctx context.Context, cfg *config.Config, mapper *sector.Mapper, logger *zap.Logger) (*macro.Service, func()) {
	var gen macro.Generator
	if cfg.Gemini.APIKey != "" {
		g, err := macro.NewGeminiGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Temperature)
		if err != nil {
			logger.Warn("gemini client init failed, sentiment will be neutral", zap.Error(err))
		} else {
			gen = g
		}
	} else {
		logger.Warn("gemini api key not set, sentiment will be neutral")
	}

	analyzer := macro.NewAnalyzer(gen, mapper.Buckets(), logger)
	analyzer.Timeout = cfg.Gemini.Timeout
	analyzer.MaxRetries = cfg.Gemini.MaxRetries

	feeds := macro.NewFeedSource(cfg.RSS.Feeds, logger)
	feeds.PerFeed = cfg.RSS.PerFeed

	closeCache := func() {}
	var cache macro.Cache
	if cfg.Redis.Addr != "" {
		rc, err := macro.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			logger.Warn("redis unavailable, sentiment cache disabled", zap.Error(err))
		} else {
			cache = rc
			closeCache = func() { rc.Close() }
		}
	}
	return macro.NewService(analyzer, feeds, cache, logger), closeCache
}

func newPublisher(cfg *config.Config, logger *zap.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NoopPublisher{}
	}
	logger.Info("kafka events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

// newNotifiers returns the Telegram notifier (for polling) and the combined
// notifier, nil when no channel is configured.
func newNotifiers(cfg *config.Config, logger *zap.Logger) (*notifier.TelegramNotifier, notifier.Notifier) {
	var (
		multi notifier.Multi
		tn    *notifier.TelegramNotifier
	)
	if cfg.Discord.WebhookURL != "" {
		multi = append(multi, notifier.NewDiscordNotifier(cfg.Discord.WebhookURL, logger))
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		multi = append(multi, tn)
	}
	if len(multi) == 0 {
		logger.Warn("no notification channel configured")
		return tn, nil
	}
	return tn, multi
}
