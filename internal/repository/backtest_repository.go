package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

// BacktestRepository handles database operations for backtest executions and results
type BacktestRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewBacktestRepository creates a new backtest repository
func NewBacktestRepository(db *sqlx.DB, logger *zap.Logger) *BacktestRepository {
	return &BacktestRepository{
		db:     db,
		logger: logger,
	}
}

// executionRow is the table layout; timestamps are unix milliseconds so the same schema works
// on Postgres and SQLite
type executionRow struct {
	ID          string        `db:"id"`
	Kind        string        `db:"kind"`
	SweepID     string        `db:"sweep_id"`
	Name        string        `db:"name"`
	Strategy    string        `db:"strategy"`
	Symbols     string        `db:"symbols"`
	Status      string        `db:"status"`
	Error       string        `db:"error"`
	Config      string        `db:"config"`
	Failures    string        `db:"failures"`
	CreatedAt   int64         `db:"created_at"`
	StartedAt   sql.NullInt64 `db:"started_at"`
	CompletedAt sql.NullInt64 `db:"completed_at"`
}

const executionColumns = `id, kind, sweep_id, name, strategy, symbols, status, error, config, failures,
	created_at, started_at, completed_at`

func toRow(exec *model.BacktestExecution) (*executionRow, error) {
	cfg, err := json.Marshal(exec.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	failures := exec.Failures
	if failures == nil {
		failures = []model.SymbolFailure{}
	}
	fails, err := json.Marshal(failures)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal failures: %w", err)
	}
	return &executionRow{
		ID:          exec.ID,
		Kind:        exec.Kind,
		SweepID:     exec.SweepID,
		Name:        exec.Config.Name,
		Strategy:    exec.Config.Strategy.Name,
		Symbols:     strings.Join(exec.Config.Symbols, ","),
		Status:      string(exec.Status),
		Error:       exec.Error,
		Config:      string(cfg),
		Failures:    string(fails),
		CreatedAt:   exec.CreatedAt.UnixMilli(),
		StartedAt:   nullMillis(exec.StartedAt),
		CompletedAt: nullMillis(exec.CompletedAt),
	}, nil
}

func (row *executionRow) execution() (*model.BacktestExecution, error) {
	exec := &model.BacktestExecution{
		ID:          row.ID,
		Kind:        row.Kind,
		SweepID:     row.SweepID,
		Status:      model.ExecutionStatus(row.Status),
		Error:       row.Error,
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
		StartedAt:   fromMillis(row.StartedAt),
		CompletedAt: fromMillis(row.CompletedAt),
	}
	if err := json.Unmarshal([]byte(row.Config), &exec.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config of %s: %w", row.ID, err)
	}
	if row.Failures != "" {
		if err := json.Unmarshal([]byte(row.Failures), &exec.Failures); err != nil {
			return nil, fmt.Errorf("failed to decode failures of %s: %w", row.ID, err)
		}
		if len(exec.Failures) == 0 {
			exec.Failures = nil
		}
	}
	return exec, nil
}

func (row *executionRow) summary() model.BacktestSummary {
	var symbols []string
	if row.Symbols != "" {
		symbols = strings.Split(row.Symbols, ",")
	}
	return model.BacktestSummary{
		ID:          row.ID,
		Name:        row.Name,
		Kind:        row.Kind,
		Strategy:    row.Strategy,
		Symbols:     symbols,
		Status:      model.ExecutionStatus(row.Status),
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
		CompletedAt: fromMillis(row.CompletedAt),
	}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// SaveExecution inserts the execution or updates its mutable columns. A row that already
// holds a terminal status is left as it is.
func (r *BacktestRepository) SaveExecution(ctx context.Context, exec *model.BacktestExecution) error {
	row, err := toRow(exec)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		INSERT INTO backtest_executions (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			failures = excluded.failures,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
		WHERE backtest_executions.status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
	`)

	_, err = r.db.ExecContext(ctx, query,
		row.ID, row.Kind, row.SweepID, row.Name, row.Strategy, row.Symbols, row.Status,
		row.Error, row.Config, row.Failures, row.CreatedAt, row.StartedAt, row.CompletedAt)
	if err != nil {
		r.logger.Error("Failed to save execution",
			zap.Error(err),
			zap.String("executionID", exec.ID),
			zap.String("status", row.Status))
		return err
	}

	return nil
}

// SaveResult stores the aggregated result of a completed execution
func (r *BacktestRepository) SaveResult(ctx context.Context, id string, result *model.BacktestResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO backtest_results (execution_id, result, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (execution_id) DO UPDATE SET result = excluded.result
	`)

	if _, err := r.db.ExecContext(ctx, query, id, string(data), time.Now().UnixMilli()); err != nil {
		r.logger.Error("Failed to save result", zap.Error(err), zap.String("executionID", id))
		return err
	}

	return nil
}

// GetExecution retrieves an execution by ID
func (r *BacktestRepository) GetExecution(ctx context.Context, id string) (*model.BacktestExecution, error) {
	query := r.db.Rebind(`SELECT ` + executionColumns + ` FROM backtest_executions WHERE id = ?`)

	var row executionRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrExecutionNotFound, id)
		}
		r.logger.Error("Failed to get execution", zap.Error(err), zap.String("executionID", id))
		return nil, err
	}

	return row.execution()
}

// GetResult retrieves the stored result; an execution without one is not ready
func (r *BacktestRepository) GetResult(ctx context.Context, id string) (*model.BacktestResult, error) {
	query := r.db.Rebind(`
		SELECT e.status, r.result
		FROM backtest_executions e
		LEFT JOIN backtest_results r ON r.execution_id = e.id
		WHERE e.id = ?
	`)

	var row struct {
		Status string         `db:"status"`
		Result sql.NullString `db:"result"`
	}
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrExecutionNotFound, id)
		}
		r.logger.Error("Failed to get result", zap.Error(err), zap.String("executionID", id))
		return nil, err
	}

	if model.ExecutionStatus(row.Status) != model.StatusCompleted || !row.Result.Valid {
		return nil, fmt.Errorf("%w: execution is %s", model.ErrResultNotReady, row.Status)
	}

	var result model.BacktestResult
	if err := json.Unmarshal([]byte(row.Result.String), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result of %s: %w", id, err)
	}
	return &result, nil
}

// ListExecutions retrieves execution summaries, newest first
func (r *BacktestRepository) ListExecutions(ctx context.Context, filter model.ExecutionFilter) ([]model.BacktestSummary, error) {
	query := `SELECT ` + executionColumns + ` FROM backtest_executions WHERE 1 = 1`
	var args []interface{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}

	query += " ORDER BY created_at DESC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []executionRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list executions", zap.Error(err))
		return nil, err
	}

	out := make([]model.BacktestSummary, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].summary())
	}
	return out, nil
}

// MarkInterrupted fails every execution still PENDING or RUNNING
func (r *BacktestRepository) MarkInterrupted(ctx context.Context, reason string) (int64, error) {
	query := r.db.Rebind(`
		UPDATE backtest_executions
		SET status = ?, error = ?, completed_at = ?
		WHERE status IN (?, ?)
	`)

	res, err := r.db.ExecContext(ctx, query,
		string(model.StatusFailed), reason, time.Now().UnixMilli(),
		string(model.StatusPending), string(model.StatusRunning))
	if err != nil {
		r.logger.Error("Failed to mark interrupted executions", zap.Error(err))
		return 0, err
	}

	return res.RowsAffected()
}
