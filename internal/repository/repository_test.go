package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var columns = []string{
	"id", "kind", "sweep_id", "name", "strategy", "symbols", "status", "error", "config",
	"failures", "created_at", "started_at", "completed_at",
}

func sampleExecution() *model.BacktestExecution {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	return &model.BacktestExecution{
		ID:   "exec-1",
		Kind: model.KindBacktest,
		Config: model.BacktestConfig{
			Name:           "crossover",
			Symbols:        []string{"AAPL", "MSFT"},
			Timeframe:      "1d",
			InitialCapital: decimal.NewFromInt(10000),
			Strategy:       model.StrategySpec{Name: "sma_crossover", Params: map[string]float64{"fast": 5}},
		},
		Status:    model.StatusRunning,
		CreatedAt: created,
		StartedAt: &started,
	}
}

func TestBacktestRepository_SaveExecution(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBacktestRepository(db, zap.NewNop())
	exec := sampleExecution()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_executions") + ".*" +
		regexp.QuoteMeta("WHERE backtest_executions.status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')")).
		WithArgs("exec-1", "backtest", "", "crossover", "sma_crossover", "AAPL,MSFT", "RUNNING",
			"", sqlmock.AnyArg(), "[]", exec.CreatedAt.UnixMilli(), exec.StartedAt.UnixMilli(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveExecution(context.Background(), exec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBacktestRepository_GetExecution(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBacktestRepository(db, zap.NewNop())
	exec := sampleExecution()
	cfg, err := json.Marshal(exec.Config)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM backtest_executions WHERE id = ?")).
		WithArgs("exec-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"exec-1", "backtest", "", "crossover", "sma_crossover", "AAPL,MSFT", "FAILED",
			"boom", string(cfg), `[{"symbol":"AAPL","kind":"data_source","message":"down"}]`,
			exec.CreatedAt.UnixMilli(), exec.StartedAt.UnixMilli(), nil))

	got, err := repo.GetExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, exec.Config.Symbols, got.Config.Symbols)
	assert.True(t, exec.Config.InitialCapital.Equal(got.Config.InitialCapital))
	assert.Equal(t, 5.0, got.Config.Strategy.Params["fast"])
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "AAPL", got.Failures[0].Symbol)
	assert.True(t, got.CreatedAt.Equal(exec.CreatedAt))
	require.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBacktestRepository_GetExecutionNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBacktestRepository(db, zap.NewNop())

	mock.ExpectQuery("FROM backtest_executions").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetExecution(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrExecutionNotFound)
}

func TestBacktestRepository_GetResult(t *testing.T) {
	ctx := context.Background()
	result := model.BacktestResult{Symbols: []model.SymbolResult{{Symbol: "AAPL"}}}
	data, err := json.Marshal(result)
	require.NoError(t, err)

	t.Run("completed", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewBacktestRepository(db, zap.NewNop())
		mock.ExpectQuery("LEFT JOIN backtest_results").WithArgs("exec-1").
			WillReturnRows(sqlmock.NewRows([]string{"status", "result"}).AddRow("COMPLETED", string(data)))

		got, err := repo.GetResult(ctx, "exec-1")
		require.NoError(t, err)
		require.Len(t, got.Symbols, 1)
		assert.Equal(t, "AAPL", got.Symbols[0].Symbol)
	})

	t.Run("not ready", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewBacktestRepository(db, zap.NewNop())
		mock.ExpectQuery("LEFT JOIN backtest_results").WithArgs("exec-1").
			WillReturnRows(sqlmock.NewRows([]string{"status", "result"}).AddRow("RUNNING", nil))

		_, err := repo.GetResult(ctx, "exec-1")
		assert.ErrorIs(t, err, model.ErrResultNotReady)
	})

	t.Run("unknown", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewBacktestRepository(db, zap.NewNop())
		mock.ExpectQuery("LEFT JOIN backtest_results").WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetResult(ctx, "nope")
		assert.ErrorIs(t, err, model.ErrExecutionNotFound)
	})
}

func TestBacktestRepository_SaveResult(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBacktestRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_results")).
		WithArgs("exec-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveResult(context.Background(), "exec-1", &model.BacktestResult{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBacktestRepository_ListExecutions(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBacktestRepository(db, zap.NewNop())
	now := time.Now().UnixMilli()

	mock.ExpectQuery(regexp.QuoteMeta("AND status = ? AND kind = ? ORDER BY created_at DESC, id ASC LIMIT ?")).
		WithArgs("COMPLETED", "optimization", 2).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("b", "optimization", "s1", "", "rsi_mean_reversion", "SPY", "COMPLETED", "", "{}", "[]", now, now, now).
			AddRow("a", "optimization", "s1", "", "rsi_mean_reversion", "SPY,QQQ", "COMPLETED", "", "{}", "[]", now-1, now, now))

	out, err := repo.ListExecutions(context.Background(), model.ExecutionFilter{
		Status: model.StatusCompleted,
		Kind:   model.KindOptimization,
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, []string{"SPY", "QQQ"}, out[1].Symbols)
	assert.NotNil(t, out[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBacktestRepository_MarkInterrupted(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBacktestRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE backtest_executions")).
		WithArgs("FAILED", "restart", sqlmock.AnyArg(), "PENDING", "RUNNING").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkInterrupted(context.Background(), "restart")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMarketDataRepository_GetBars(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMarketDataRepository(db, zap.NewNop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)

	mock.ExpectQuery(regexp.QuoteMeta("FROM market_data md")).
		WithArgs("AAPL", "1d", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "timestamp", "open", "high", "low", "close", "volume"}).
			AddRow("AAPL", start, "10", "11", "9", "10.5", "1000").
			AddRow("AAPL", start.AddDate(0, 0, 1), "10.5", "12", "10", "11.5", "1200"))

	bars, err := repo.GetBars(context.Background(), "aapl", "1d", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "11.5", bars[1].Close.String())
	assert.Equal(t, start, bars[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(schema)
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS backtest_executions")
	assert.Contains(t, stmts[3], "backtest_results")
}
