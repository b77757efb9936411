package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"SectorPulse/internal/logging"
	"SectorPulse/internal/model"
)

// SQLiteStore persists results to a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: an in-memory database is per connection, and writes are
	// serialized anyway.
	db.SetMaxOpenConns(1)

	// WAL lets dashboards read while the batch writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logging.OrNop(logger)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.Info("sqlite store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_results (
			date           TEXT NOT NULL,
			ticker         TEXT NOT NULL,
			name           TEXT,
			sector         TEXT,
			close_price    REAL,
			rsi_14         REAL,
			sma_75         REAL,
			atr_14         REAL,
			bb_upper       REAL,
			macd_hist      REAL,
			upside_ratio   REAL,
			macro_score    INTEGER,
			signal         TEXT NOT NULL,
			trend_strength TEXT,
			correlation    REAL,
			exit_guidance  TEXT,
			reason         TEXT,
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (date, ticker)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_signal ON analysis_results(date, signal)`,

		`CREATE TABLE IF NOT EXISTS macro_log (
			date          TEXT PRIMARY KEY,
			overall_score INTEGER,
			has_overall   INTEGER,
			summary       TEXT,
			sector_scores TEXT,
			risk_events   TEXT,
			quotes        TEXT,
			error         TEXT,
			updated_at    INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", strings.TrimSpace(stmt)[:30], err)
		}
	}
	return nil
}

const sqliteUpsertResult = `INSERT INTO analysis_results
	(date, ticker, name, sector, close_price, rsi_14, sma_75, atr_14, bb_upper, macd_hist,
	 upside_ratio, macro_score, signal, trend_strength, correlation, exit_guidance, reason, updated_at)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(date, ticker) DO UPDATE SET
		name = excluded.name, sector = excluded.sector, close_price = excluded.close_price,
		rsi_14 = excluded.rsi_14, sma_75 = excluded.sma_75, atr_14 = excluded.atr_14,
		bb_upper = excluded.bb_upper, macd_hist = excluded.macd_hist,
		upside_ratio = excluded.upside_ratio, macro_score = excluded.macro_score,
		signal = excluded.signal, trend_strength = excluded.trend_strength,
		correlation = excluded.correlation, exit_guidance = excluded.exit_guidance,
		reason = excluded.reason, updated_at = excluded.updated_at`

// UpsertResults writes results in one transaction.
func (s *SQLiteStore) UpsertResults(ctx context.Context, results []model.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertResult)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx,
			r.DateKey(), r.Ticker, r.Name, r.Sector, r.ClosePrice, r.RSI14, r.SMA75, r.ATR14,
			r.BBUpper, r.MACDHist, r.UpsideRatio, r.MacroScore, string(r.Signal),
			string(r.TrendStrength), r.Correlation, r.ExitGuidance, r.Reason, now,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", r.Ticker, err)
		}
	}
	return tx.Commit()
}

// UpsertMacro writes the macro log entry of date.
func (s *SQLiteStore) UpsertMacro(ctx context.Context, date time.Time, m *model.MacroSentiment) error {
	cols, err := encodeMacro(m)
	if err != nil {
		return fmt.Errorf("encode macro: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO macro_log
		(date, overall_score, has_overall, summary, sector_scores, risk_events, quotes, error, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET
			overall_score = excluded.overall_score, has_overall = excluded.has_overall,
			summary = excluded.summary, sector_scores = excluded.sector_scores,
			risk_events = excluded.risk_events, quotes = excluded.quotes,
			error = excluded.error, updated_at = excluded.updated_at`,
		date.Format(DateLayout), m.OverallScore, m.HasOverall, m.Summary,
		cols.sectors, cols.events, cols.quotes, m.Error, time.Now().Unix(),
	)
	return err
}

// QueryLatest returns the results of date, or of the newest stored date.
func (s *SQLiteStore) QueryLatest(ctx context.Context, date *time.Time) ([]model.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	if date != nil {
		key = date.Format(DateLayout)
	} else {
		var latest sql.NullString
		if err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM analysis_results`).Scan(&latest); err != nil {
			return nil, fmt.Errorf("latest date: %w", err)
		}
		if !latest.Valid {
			return nil, nil
		}
		key = latest.String
	}

	rows, err := s.db.QueryContext(ctx, `SELECT date, ticker, name, sector, close_price, rsi_14, sma_75,
		atr_14, bb_upper, macd_hist, upside_ratio, macro_score, signal, trend_strength,
		correlation, exit_guidance, reason
		FROM analysis_results WHERE date = ? ORDER BY ticker`, key)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []model.AnalysisResult
	for rows.Next() {
		var (
			r                                 model.AnalysisResult
			d, signal                         string
			name, sector, trend, exit, reason sql.NullString
		)
		if err := rows.Scan(&d, &r.Ticker, &name, &sector, &r.ClosePrice, &r.RSI14, &r.SMA75,
			&r.ATR14, &r.BBUpper, &r.MACDHist, &r.UpsideRatio, &r.MacroScore, &signal, &trend,
			&r.Correlation, &exit, &reason); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Date, err = parseDate(d); err != nil {
			return nil, err
		}
		r.Name, r.Sector, r.Reason, r.ExitGuidance = name.String, sector.String, reason.String, exit.String
		r.Signal, r.TrendStrength = model.Signal(signal), model.TrendStrength(trend.String)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestMacro returns the newest macro log entry.
func (s *SQLiteStore) LatestMacro(ctx context.Context) (*model.MacroSentiment, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		m          model.MacroSentiment
		d          string
		hasOverall bool
		summary    sql.NullString
		errMsg     sql.NullString
		cols       macroColumns
		quotes     sql.NullString
		updated    int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT date, overall_score, has_overall, summary, sector_scores,
		risk_events, quotes, error, updated_at FROM macro_log ORDER BY date DESC LIMIT 1`).
		Scan(&d, &m.OverallScore, &hasOverall, &summary, &cols.sectors, &cols.events, &quotes, &errMsg, &updated)
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
	m.HasOverall, m.Summary, m.Error = hasOverall, summary.String, errMsg.String
	m.GeneratedAt = time.Unix(updated, 0)

	date, err := parseDate(d)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &m, date, nil
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("closing sqlite store")
	return s.db.Close()
}
