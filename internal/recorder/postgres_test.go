package recorder

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SectorPulse/internal/model"
)

func TestPostgresStore_UpsertResults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := newPostgresStoreWithDB(db)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO analysis_results")
	prep.ExpectExec().
		WithArgs("2024-03-01", "7203.T", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 1,
			"BUY", "", sqlmock.AnyArg(), "", "test", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.UpsertResults(context.Background(), []model.AnalysisResult{
		result("7203.T", day, model.SignalBuy),
		result("8306.T", day, model.SignalWait),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := newPostgresStoreWithDB(db)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO analysis_results").ExpectExec().WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err = s.UpsertResults(context.Background(), []model.AnalysisResult{result("X", time.Now(), model.SignalWait)})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := newPostgresStoreWithDB(db)

	mock.ExpectQuery(`SELECT MAX\(date\)::text FROM analysis_results`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow("2024-03-04"))
	cols := []string{"date", "ticker", "name", "sector", "close_price", "rsi_14", "sma_75", "atr_14",
		"bb_upper", "macd_hist", "upside_ratio", "macro_score", "signal", "trend_strength",
		"correlation", "exit_guidance", "reason"}
	mock.ExpectQuery("FROM analysis_results WHERE date = ").
		WithArgs("2024-03-04").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"2024-03-04", "7203.T", "Toyota", "Transportation Equipment", "3500.5000", "28.1000",
			"3300", "55.2", "3700", "1.25", "3.6232", 2, "BUY", "A", "0.7100", nil, "RSI low"))

	got, err := s.QueryLatest(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), r.Date)
	assert.Equal(t, 3500.5, r.ClosePrice)
	assert.Equal(t, model.SignalBuy, r.Signal)
	assert.Equal(t, model.TrendA, r.TrendStrength)
	assert.Equal(t, 0.71, r.Correlation)
	assert.Empty(t, r.ExitGuidance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestMacroEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := newPostgresStoreWithDB(db)

	mock.ExpectQuery("FROM macro_log").WillReturnError(sql.ErrNoRows)
	m, _, err := s.LatestMacro(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}
