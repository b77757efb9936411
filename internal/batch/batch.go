package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"SectorPulse/internal/calculator"
	"SectorPulse/internal/collector"
	"SectorPulse/internal/events"
	"SectorPulse/internal/logging"
	"SectorPulse/internal/model"
	"SectorPulse/internal/notifier"
	"SectorPulse/internal/recorder"
	"SectorPulse/internal/sector"
	"SectorPulse/internal/strategy"
	"SectorPulse/internal/telemetry"
)

// ErrRunInProgress is returned when a daily run is requested while another
// one has not finished.
var ErrRunInProgress = errors.New("batch run already in progress")

// errNoData marks a ticker the provider returned nothing for.
var errNoData = errors.New("no price data")

// Options is the immutable batch configuration.
type Options struct {
	Workers      int
	FetchTimeout time.Duration
	// HistoryDays is the number of sessions requested per ticker.
	HistoryDays     int
	ReferenceSymbol string
	// GlobalSymbols maps provider symbols to the labels used in the macro
	// prompt and the stored market snapshot.
	GlobalSymbols    map[string]string
	Thresholds       strategy.Thresholds
	SingleThresholds strategy.Thresholds
	ChunkSize        int
	// ATRSmoothing is calculator.ATRSmoothingSimple or ATRSmoothingWilder.
	ATRSmoothing string
	// NotifyWait also sends WAIT results. Bulk runs normally send only
	// actionable ones.
	NotifyWait bool
}

// DefaultOptions returns the bulk defaults.
func DefaultOptions() Options {
	return Options{
		Workers:          8,
		FetchTimeout:     20 * time.Second,
		HistoryDays:      200,
		ReferenceSymbol:  "^N225",
		Thresholds:       strategy.BulkThresholds(),
		SingleThresholds: strategy.SingleTickerThresholds(),
		ChunkSize:        recorder.DefaultChunkSize,
		ATRSmoothing:     calculator.ATRSmoothingSimple,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.HistoryDays < calculator.MinBars {
		o.HistoryDays = d.HistoryDays
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ATRSmoothing == "" {
		o.ATRSmoothing = d.ATRSmoothing
	}
	if o.Thresholds == (strategy.Thresholds{}) {
		o.Thresholds = d.Thresholds
	}
	if o.SingleThresholds == (strategy.Thresholds{}) {
		o.SingleThresholds = d.SingleThresholds
	}
	return o
}

// Report summarizes one run.
type Report struct {
	RunID    string
	AsOf     time.Time
	Results  []model.AnalysisResult
	Skipped  map[string]string
	Errors   []error
	Warnings []string
	Macro    *model.MacroSentiment
	// Published is the number of Kafka events written.
	Published int
	Duration  time.Duration
}

// Actionable returns the non-WAIT results.
func (r *Report) Actionable() []model.AnalysisResult {
	var out []model.AnalysisResult
	for _, res := range r.Results {
		if res.Signal.Actionable() {
			out = append(out, res)
		}
	}
	return out
}

// SentimentProvider produces the macro sentiment for an analysis date.
type SentimentProvider interface {
	Snapshot(ctx context.Context, asOf time.Time, quotes map[string]model.MarketQuote) *model.MacroSentiment
}

// UniverseFunc loads the tickers to analyze.
type UniverseFunc func(ctx context.Context) ([]model.Ticker, error)

// Deps are the collaborators of a Runner. Sentiment, Notifier and Publisher
// are optional.
type Deps struct {
	Fetcher   collector.Fetcher
	Sectors   *sector.Mapper
	Sentiment SentimentProvider
	Store     recorder.Store
	Notifier  notifier.Notifier
	Publisher events.Publisher
	Universe  UniverseFunc
}

// Runner evaluates a ticker universe.
type Runner struct {
	deps    Deps
	opts    Options
	logger  *zap.Logger
	running atomic.Bool
}

// NewRunner creates a Runner. Missing Sectors, Store and Publisher get
// defaults.
func NewRunner(deps Deps, opts Options, logger *zap.Logger) *Runner {
	if deps.Sectors == nil {
		deps.Sectors = sector.Default()
	}
	if deps.Store == nil {
		deps.Store = recorder.NewNoopStore()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	return &Runner{deps: deps, opts: opts.withDefaults(), logger: logging.OrNop(logger)}
}

// Options returns the effective configuration.
func (r *Runner) Options() Options { return r.opts }

// Running reports whether a daily run is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

// Run evaluates universe against the latest sessions. Per-ticker failures
// are recorded in the report and never abort the batch. The error is non-nil
// only when ctx ends the run early; the report then holds the finished subset.
func (r *Runner) Run(ctx context.Context, universe []model.Ticker, sentiment *model.MacroSentiment) (*Report, error) {
	return r.run(ctx, universe, sentiment, time.Time{}, r.logger)
}

func (r *Runner) run(ctx context.Context, universe []model.Ticker, sentiment *model.MacroSentiment, asOf time.Time, logger *zap.Logger) (*Report, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "batch.run", attribute.Int("tickers", len(universe)))
	defer span.End()

	if sentiment == nil {
		sentiment = model.NeutralSentiment("sentiment unavailable")
	}
	report := &Report{AsOf: asOf, Skipped: make(map[string]string), Macro: sentiment}
	ref := r.referenceBars(ctx, asOf, logger)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.opts.Workers)

	for _, t := range universe {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := r.evaluate(ctx, t, sentiment, ref, r.opts.Thresholds, asOf)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Results = append(report.Results, *res)
			case errors.Is(err, model.ErrInsufficientData), errors.Is(err, errNoData):
				report.Skipped[t.Symbol] = err.Error()
				logger.Debug("ticker skipped", zap.String("ticker", t.Symbol), zap.Error(err))
			default:
				report.Errors = append(report.Errors, fmt.Errorf("%s: %w", t.Symbol, err))
				logger.Warn("ticker failed", zap.String("ticker", t.Symbol), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Results, func(i, j int) bool { return report.Results[i].Ticker < report.Results[j].Ticker })
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("results", len(report.Results)),
		attribute.Int("skipped", len(report.Skipped)),
		attribute.Int("errors", len(report.Errors)),
	)
	logger.Info("batch finished",
		zap.Int("tickers", len(universe)),
		zap.Int("results", len(report.Results)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", report.Duration))

	if err := ctx.Err(); err != nil {
		telemetry.RecordError(span, err)
		return report, fmt.Errorf("batch interrupted: %w", err)
	}
	return report, nil
}

// referenceBars fetches the correlation reference once per run. Failure only
// disables correlation.
func (r *Runner) referenceBars(ctx context.Context, asOf time.Time, logger *zap.Logger) []model.Bar {
	if r.opts.ReferenceSymbol == "" {
		return nil
	}
	fctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()
	bars, err := r.deps.Fetcher.FetchDailyBars(fctx, r.opts.ReferenceSymbol, r.opts.HistoryDays)
	if err != nil {
		logger.Warn("reference fetch failed, correlation disabled",
			zap.String("symbol", r.opts.ReferenceSymbol), zap.Error(err))
		return nil
	}
	return model.TrimAfter(bars, asOf)
}

// evaluate runs fetch, indicators and classification for one ticker.
func (r *Runner) evaluate(ctx context.Context, t model.Ticker, sentiment *model.MacroSentiment, ref []model.Bar, th strategy.Thresholds, asOf time.Time) (*model.AnalysisResult, error) {
	fctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	bars, err := r.deps.Fetcher.FetchDailyBars(fctx, t.Symbol, r.opts.HistoryDays)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	bars = model.TrimAfter(bars, asOf)
	if len(bars) == 0 {
		return nil, errNoData
	}

	snap, err := calculator.ComputeWith(bars, r.opts.ATRSmoothing)
	if err != nil {
		return nil, err
	}

	bucket := r.deps.Sectors.ResolveSector(t.Sector)
	in := strategy.Input{
		Snapshot:   snap,
		MacroScore: sector.LookupScore(bucket, sentiment),
		RiskEvents: sentiment.RiskEvents,
	}
	if len(ref) > 0 {
		in.Correlation = calculator.CorrelationBars(bars, ref, calculator.CorrelationWindow, calculator.CorrelationMinPoints)
	}

	v, err := strategy.Classify(in, th)
	if err != nil {
		return nil, err
	}

	return &model.AnalysisResult{
		Ticker:        t.Symbol,
		Name:          t.Name,
		Sector:        string(bucket),
		Date:          bars[len(bars)-1].Time,
		ClosePrice:    snap.Close,
		RSI14:         snap.RSI14.Or(0),
		SMA75:         snap.SMA75.Value,
		ATR14:         snap.ATR14.Value,
		BBUpper:       snap.BBUpper.Or(0),
		MACDHist:      snap.MACDHist.Or(0),
		UpsideRatio:   v.UpsideRatio,
		MacroScore:    in.MacroScore,
		Signal:        v.Signal,
		TrendStrength: v.TrendStrength,
		Correlation:   in.Correlation,
		ExitGuidance:  v.ExitGuidance,
		Reason:        v.Reason,
	}, nil
}

// EvaluateTicker analyzes one ticker on demand with the single ticker
// thresholds, which allow SELL. The ticker's name and sector come from the
// universe when it is listed there. The result is returned only; stored rows
// belong to the daily scan and its bulk thresholds.
func (r *Runner) EvaluateTicker(ctx context.Context, symbol string) (*model.AnalysisResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "batch.evaluate_ticker", attribute.String("ticker", symbol))
	defer span.End()

	t := r.lookupTicker(ctx, symbol)
	sentiment := r.sentiment(ctx, time.Time{}, nil)
	ref := r.referenceBars(ctx, time.Time{}, r.logger)

	res, err := r.evaluate(ctx, t, sentiment, ref, r.opts.SingleThresholds, time.Time{})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("evaluate %s: %w", symbol, err)
	}
	return res, nil
}

func (r *Runner) lookupTicker(ctx context.Context, symbol string) model.Ticker {
	if r.deps.Universe != nil {
		if universe, err := r.deps.Universe(ctx); err == nil {
			for _, t := range universe {
				if t.Symbol == symbol {
					return t
				}
			}
		}
	}
	return model.Ticker{Symbol: symbol}
}

func (r *Runner) sentiment(ctx context.Context, asOf time.Time, quotes map[string]model.MarketQuote) *model.MacroSentiment {
	if r.deps.Sentiment == nil {
		return model.NeutralSentiment("sentiment disabled")
	}
	return r.deps.Sentiment.Snapshot(ctx, asOf, quotes)
}

// RunDaily is the scheduled job: load the universe, build the market snapshot
// and sentiment once, evaluate every ticker, then persist, notify and publish.
// A zero asOf analyzes the latest sessions; otherwise bars after asOf are
// ignored. Persistence, notification and publishing failures become report
// warnings.
func (r *Runner) RunDaily(ctx context.Context, asOf time.Time) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID))
	ctx, span := telemetry.StartSpan(ctx, "batch.daily", attribute.String("run_id", runID))
	defer span.End()

	if r.deps.Universe == nil {
		return nil, errors.New("no universe configured")
	}
	universe, err := r.deps.Universe(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load universe: %w", err)
	}
	logger.Info("daily run started", zap.Int("tickers", len(universe)), zap.Time("as_of", asOf))

	var quotes map[string]model.MarketQuote
	if len(r.opts.GlobalSymbols) > 0 {
		quotes = collector.FetchQuotes(ctx, r.deps.Fetcher, r.opts.GlobalSymbols, logger)
	}
	sentiment := r.sentiment(ctx, asOf, quotes)
	if sentiment.Quotes == nil && len(quotes) > 0 {
		sentiment.Quotes = quotes
	}

	report, runErr := r.run(ctx, universe, sentiment, asOf, logger)
	report.RunID = runID

	date := asOf
	if date.IsZero() {
		date = time.Now()
	}
	// The finished subset is stored even when the run was interrupted.
	r.persist(context.WithoutCancel(ctx), report, date, logger)
	if runErr != nil {
		telemetry.RecordError(span, runErr)
		return report, runErr
	}
	r.notify(ctx, report, logger)
	r.publish(ctx, report, logger)
	return report, nil
}

func (r *Runner) persist(ctx context.Context, report *Report, date time.Time, logger *zap.Logger) {
	if err := r.deps.Store.UpsertMacro(ctx, date, report.Macro); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("macro log: %v", err))
		logger.Warn("macro log upsert failed", zap.Error(err))
	}
	for _, err := range recorder.UpsertInChunks(ctx, r.deps.Store, report.Results, r.opts.ChunkSize) {
		report.Warnings = append(report.Warnings, err.Error())
		logger.Warn("result upsert failed", zap.Error(err))
	}
}

func (r *Runner) notify(ctx context.Context, report *Report, logger *zap.Logger) {
	if r.deps.Notifier == nil {
		return
	}
	results := report.Actionable()
	if r.opts.NotifyWait {
		results = report.Results
	}
	msg := notifier.Format(results, report.Macro)
	if !report.AsOf.IsZero() {
		msg.Date = report.AsOf
	}
	if err := r.deps.Notifier.Send(ctx, msg); err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("notify: %v", err))
		logger.Warn("notification failed", zap.Error(err))
		return
	}
	logger.Info("notification sent", zap.String("notifier", r.deps.Notifier.Name()), zap.Int("results", len(results)))
}

func (r *Runner) publish(ctx context.Context, report *Report, logger *zap.Logger) {
	n, err := r.deps.Publisher.PublishResults(ctx, report.RunID, report.Results)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("publish: %v", err))
		logger.Warn("event publish failed", zap.Error(err))
		return
	}
	report.Published = n
}
