package recorder

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"SectorPulse/internal/logging"
	"SectorPulse/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore persists results to PostgreSQL. Prices and ratios are stored
// as NUMERIC.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &PostgresStore{db: db, logger: logging.OrNop(logger)}
	s.logger.Info("postgres store opened")
	return s, nil
}

// newPostgresStoreWithDB wraps an open handle without migrating.
func newPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, logger: zap.NewNop()}
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func num(v float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(places)
}

const pgUpsertResult = `INSERT INTO analysis_results
	(date, ticker, name, sector, close_price, rsi_14, sma_75, atr_14, bb_upper, macd_hist,
	 upside_ratio, macro_score, signal, trend_strength, correlation, exit_guidance, reason, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	ON CONFLICT (date, ticker) DO UPDATE SET
		name = EXCLUDED.name, sector = EXCLUDED.sector, close_price = EXCLUDED.close_price,
		rsi_14 = EXCLUDED.rsi_14, sma_75 = EXCLUDED.sma_75, atr_14 = EXCLUDED.atr_14,
		bb_upper = EXCLUDED.bb_upper, macd_hist = EXCLUDED.macd_hist,
		upside_ratio = EXCLUDED.upside_ratio, macro_score = EXCLUDED.macro_score,
		signal = EXCLUDED.signal, trend_strength = EXCLUDED.trend_strength,
		correlation = EXCLUDED.correlation, exit_guidance = EXCLUDED.exit_guidance,
		reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at`

// UpsertResults writes results in one transaction with a prepared statement.
func (s *PostgresStore) UpsertResults(ctx context.Context, results []model.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pgUpsertResult)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx,
			r.DateKey(), r.Ticker, r.Name, r.Sector,
			num(r.ClosePrice, 4), num(r.RSI14, 4), num(r.SMA75, 4), num(r.ATR14, 4),
			num(r.BBUpper, 4), num(r.MACDHist, 6), num(r.UpsideRatio, 4), r.MacroScore,
			string(r.Signal), string(r.TrendStrength), num(r.Correlation, 4),
			r.ExitGuidance, r.Reason, now,
		); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", r.Ticker, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertMacro writes the macro log entry of date.
func (s *PostgresStore) UpsertMacro(ctx context.Context, date time.Time, m *model.MacroSentiment) error {
	cols, err := encodeMacro(m)
	if err != nil {
		return fmt.Errorf("encode macro: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO macro_log
		(date, overall_score, has_overall, summary, sector_scores, risk_events, quotes, error, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (date) DO UPDATE SET
			overall_score = EXCLUDED.overall_score, has_overall = EXCLUDED.has_overall,
			summary = EXCLUDED.summary, sector_scores = EXCLUDED.sector_scores,
			risk_events = EXCLUDED.risk_events, quotes = EXCLUDED.quotes,
			error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`,
		date.Format(DateLayout), m.OverallScore, m.HasOverall, m.Summary,
		cols.sectors, cols.events, cols.quotes, m.Error, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert macro log: %w", err)
	}
	return nil
}

// QueryLatest returns the results of date, or of the newest stored date.
func (s *PostgresStore) QueryLatest(ctx context.Context, date *time.Time) ([]model.AnalysisResult, error) {
	var key string
	if date != nil {
		key = date.Format(DateLayout)
	} else {
		var latest sql.NullString
		if err := s.db.QueryRowContext(ctx, `SELECT MAX(date)::text FROM analysis_results`).Scan(&latest); err != nil {
			return nil, fmt.Errorf("latest date: %w", err)
		}
		if !latest.Valid {
			return nil, nil
		}
		key = latest.String
	}

	rows, err := s.db.QueryContext(ctx, `SELECT date::text, ticker, name, sector, close_price, rsi_14,
		sma_75, atr_14, bb_upper, macd_hist, upside_ratio, macro_score, signal, trend_strength,
		correlation, exit_guidance, reason
		FROM analysis_results WHERE date = $1 ORDER BY ticker`, key)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []model.AnalysisResult
	for rows.Next() {
		var (
			r                                   model.AnalysisResult
			d, signal                           string
			name, sector, trend, exit, reason   sql.NullString
			closeP, rsi, sma, atr, bb, hist, up decimal.Decimal
			corr                                decimal.Decimal
		)
		if err := rows.Scan(&d, &r.Ticker, &name, &sector, &closeP, &rsi, &sma, &atr, &bb, &hist,
			&up, &r.MacroScore, &signal, &trend, &corr, &exit, &reason); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Date, err = parseDate(d); err != nil {
			return nil, err
		}
		r.ClosePrice, _ = closeP.Float64()
		r.RSI14, _ = rsi.Float64()
		r.SMA75, _ = sma.Float64()
		r.ATR14, _ = atr.Float64()
		r.BBUpper, _ = bb.Float64()
		r.MACDHist, _ = hist.Float64()
		r.UpsideRatio, _ = up.Float64()
		r.Correlation, _ = corr.Float64()
		r.Name, r.Sector, r.Reason, r.ExitGuidance = name.String, sector.String, reason.String, exit.String
		r.Signal, r.TrendStrength = model.Signal(signal), model.TrendStrength(trend.String)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestMacro returns the newest macro log entry.
func (s *PostgresStore) LatestMacro(ctx context.Context) (*model.MacroSentiment, time.Time, error) {
	var (
		m       model.MacroSentiment
		d       string
		summary sql.NullString
		errMsg  sql.NullString
		cols    macroColumns
		quotes  sql.NullString
		updated time.Time
	)
	err := s.db.QueryRowContext(ctx, `SELECT date::text, overall_score, has_overall, summary,
		sector_scores::text, risk_events::text, quotes::text, error, updated_at
		FROM macro_log ORDER BY date DESC LIMIT 1`).
		Scan(&d, &m.OverallScore, &m.HasOverall, &summary, &cols.sectors, &cols.events, &quotes, &errMsg, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("latest macro: %w", err)
	}
	cols.quotes = quotes.String
	if err := decodeMacro(&m, cols); err != nil {
		return nil, time.Time{}, err
	}
	m.Summary, m.Error, m.GeneratedAt = summary.String, errMsg.String, updated

	date, err := parseDate(d)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &m, date, nil
}

func (s *PostgresStore) Close() error {
	s.logger.Info("closing postgres store")
	return s.db.Close()
}
