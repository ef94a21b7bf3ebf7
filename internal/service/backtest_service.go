package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/backtest-service/internal/metrics"
	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/performance"
	"github.com/yourorg/backtest-service/internal/simulator"
	"github.com/yourorg/backtest-service/internal/strategy"
)

// BarSource supplies time-ordered bars for one symbol
type BarSource interface {
	GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error)
}

// ExecutionStore persists executions and results
type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec *model.BacktestExecution) error
	SaveResult(ctx context.Context, id string, result *model.BacktestResult) error
	GetExecution(ctx context.Context, id string) (*model.BacktestExecution, error)
	GetResult(ctx context.Context, id string) (*model.BacktestResult, error)
	ListExecutions(ctx context.Context, filter model.ExecutionFilter) ([]model.BacktestSummary, error)
	MarkInterrupted(ctx context.Context, reason string) (int64, error)
}

// ResultArchive stores serialized results outside the database
type ResultArchive interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
}

// EventPublisher announces execution lifecycle transitions
type EventPublisher interface {
	PublishExecutionEvent(ctx context.Context, event model.ExecutionEvent) error
}

// Options tunes the orchestrator. ResultRetention is how long finished executions stay in
// memory: zero means one hour and a negative value keeps them for the life of the process.
type Options struct {
	Workers              int
	OptimizerParallelism int
	MaxCombinations      int
	ExecutionTimeout     time.Duration
	ResultRetention      time.Duration
}

// Dependencies are the collaborators of BacktestService. Store, Archive, Events and
// Metrics are optional.
type Dependencies struct {
	Bars       BarSource
	Strategies *strategy.Registry
	Store      ExecutionStore
	Archive    ResultArchive
	Events     EventPublisher
	Metrics    *metrics.Collector
}

// BacktestService runs backtests and parameter sweeps on a bounded worker pool
type BacktestService struct {
	bars       BarSource
	strategies *strategy.Registry
	validator  *ConfigValidator
	store      ExecutionStore
	archive    ResultArchive
	events     EventPublisher
	metrics    *metrics.Collector
	pool       *WorkerPool
	registry   *executionRegistry
	opts       Options
	logger     *zap.Logger

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewBacktestService creates a new backtest service
func NewBacktestService(deps Dependencies, opts Options, logger *zap.Logger) *BacktestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Strategies == nil {
		deps.Strategies = strategy.DefaultRegistry()
	}
	if opts.MaxCombinations <= 0 {
		opts.MaxCombinations = 1000
	}
	if opts.ResultRetention == 0 {
		opts.ResultRetention = time.Hour
	}
	pool := NewWorkerPool(opts.Workers)
	if opts.OptimizerParallelism <= 0 {
		opts.OptimizerParallelism = pool.Size()
	}
	root, stop := context.WithCancel(context.Background())

	return &BacktestService{
		bars:       deps.Bars,
		strategies: deps.Strategies,
		validator:  NewConfigValidator(deps.Strategies),
		store:      deps.Store,
		archive:    deps.Archive,
		events:     deps.Events,
		metrics:    deps.Metrics,
		pool:       pool,
		registry:   newExecutionRegistry(),
		opts:       opts,
		logger:     logger,
		root:       root,
		stop:       stop,
	}
}

// Submit validates cfg and starts a backtest in the background. The returned execution is PENDING.
func (s *BacktestService) Submit(ctx context.Context, cfg model.BacktestConfig) (model.BacktestExecution, error) {
	if err := s.validator.Validate(cfg); err != nil {
		return model.BacktestExecution{}, err
	}

	s.expire()
	exec := s.newExecution(cfg.WithDefaults(), model.KindBacktest, "")
	execCtx, cancel := s.executionContext(s.root)
	s.registry.add(exec, cancel)
	s.record(ctx, exec)

	s.logger.Info("Backtest submitted",
		zap.String("executionID", exec.ID),
		zap.String("strategy", exec.Config.Strategy.Name),
		zap.Strings("symbols", exec.Config.Symbols))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runExecution(execCtx, exec.ID, exec.Config, s.bars)
	}()

	return exec, nil
}

// GetStatus returns the current status of an execution
func (s *BacktestService) GetStatus(ctx context.Context, id string) (model.ExecutionStatus, error) {
	exec, err := s.GetExecution(ctx, id)
	if err != nil {
		return "", err
	}
	return exec.Status, nil
}

// GetExecution returns a snapshot of an execution, falling back to the store for
// executions from a previous process
func (s *BacktestService) GetExecution(ctx context.Context, id string) (model.BacktestExecution, error) {
	if exec, ok := s.registry.get(id); ok {
		return exec, nil
	}
	if s.store != nil {
		exec, err := s.store.GetExecution(ctx, id)
		if err != nil {
			return model.BacktestExecution{}, err
		}
		return *exec, nil
	}
	return model.BacktestExecution{}, model.ErrExecutionNotFound
}

// GetResult returns the aggregated result of a COMPLETED execution
func (s *BacktestService) GetResult(ctx context.Context, id string) (*model.BacktestResult, error) {
	if result, status, released, ok := s.registry.result(id); ok {
		if released {
			if s.store != nil {
				return s.store.GetResult(ctx, id)
			}
			return nil, fmt.Errorf("%w: execution %s was not among the top ranked combinations", model.ErrResultReleased, id)
		}
		if status != model.StatusCompleted || result == nil {
			return nil, fmt.Errorf("%w: execution is %s", model.ErrResultNotReady, status)
		}
		return result, nil
	}
	if s.store != nil {
		return s.store.GetResult(ctx, id)
	}
	return nil, model.ErrExecutionNotFound
}

// Cancel stops a PENDING or RUNNING execution. Work in flight finishes its current bar and
// its results are discarded.
func (s *BacktestService) Cancel(ctx context.Context, id string) (model.BacktestExecution, error) {
	exec, err := s.registry.transition(id, model.StatusCancelled, "cancelled by request", nil, nil)
	if err != nil {
		if errors.Is(err, model.ErrExecutionNotFound) && s.store != nil {
			if _, serr := s.store.GetExecution(ctx, id); serr == nil {
				return model.BacktestExecution{}, fmt.Errorf("%w: execution is not active", model.ErrInvalidTransition)
			}
		}
		return exec, err
	}
	s.logger.Info("Execution cancelled", zap.String("executionID", id))
	s.record(ctx, exec)
	return exec, nil
}

// List returns execution summaries, newest first
func (s *BacktestService) List(ctx context.Context, filter model.ExecutionFilter) ([]model.BacktestSummary, error) {
	out := s.registry.list(filter)
	if s.store == nil {
		return out, nil
	}

	stored, err := s.store.ListExecutions(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list stored executions", zap.Error(err))
		return out, nil
	}
	known := make(map[string]bool, len(out))
	for _, sum := range out {
		known[sum.ID] = true
	}
	for _, sum := range stored {
		if !known[sum.ID] {
			out = append(out, sum)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Strategies lists the registered strategies
func (s *BacktestService) Strategies() []strategy.Descriptor {
	return s.strategies.List()
}

// Wait blocks until the execution reaches a terminal status or ctx ends
func (s *BacktestService) Wait(ctx context.Context, id string) (model.BacktestExecution, error) {
	done, ok := s.registry.doneChan(id)
	if !ok {
		return s.GetExecution(ctx, id)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return model.BacktestExecution{}, ctx.Err()
	}
	if exec, ok := s.registry.get(id); ok {
		return exec, nil
	}
	return s.GetExecution(ctx, id)
}

// Recover marks executions left PENDING or RUNNING by a previous process as FAILED
func (s *BacktestService) Recover(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	n, err := s.store.MarkInterrupted(ctx, "interrupted by service restart")
	if err != nil {
		s.logger.Error("Failed to recover interrupted executions", zap.Error(err))
		return err
	}
	if n > 0 {
		s.logger.Warn("Marked interrupted executions as failed", zap.Int64("count", n))
	}
	return nil
}

// Close cancels every active execution and waits for background work to stop
func (s *BacktestService) Close(ctx context.Context) error {
	for _, id := range s.registry.active() {
		if _, err := s.registry.transition(id, model.StatusCancelled, "service shutting down", nil, nil); err == nil {
			if exec, ok := s.registry.get(id); ok {
				s.record(ctx, exec)
			}
		}
	}
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BacktestService) newExecution(cfg model.BacktestConfig, kind, sweepID string) model.BacktestExecution {
	return model.BacktestExecution{
		ID:        uuid.NewString(),
		Kind:      kind,
		SweepID:   sweepID,
		Config:    cfg.Clone(),
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *BacktestService) executionContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.opts.ExecutionTimeout > 0 {
		return context.WithTimeout(parent, s.opts.ExecutionTimeout)
	}
	return context.WithCancel(parent)
}

// runExecution drives one execution from PENDING to a terminal status
func (s *BacktestService) runExecution(ctx context.Context, id string, cfg model.BacktestConfig, source BarSource) (model.BacktestExecution, *model.BacktestResult) {
	exec, err := s.registry.transition(id, model.StatusRunning, "", nil, nil)
	if err != nil {
		s.logger.Info("Execution not started", zap.String("executionID", id), zap.Error(err))
		return exec, nil
	}
	s.record(ctx, exec)
	s.metrics.ExecutionStarted(exec.Kind)
	started := time.Now()

	results, failures := s.simulateAll(ctx, cfg, source)

	var (
		next   model.ExecutionStatus
		errMsg string
		result *model.BacktestResult
	)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		next, errMsg = model.StatusFailed, fmt.Sprintf("execution timed out after %s", s.opts.ExecutionTimeout)
	case ctx.Err() != nil:
		next = model.StatusCancelled
	case len(results) == 0:
		next, errMsg = model.StatusFailed, allFailedMessage(failures)
	default:
		next = model.StatusCompleted
		result = aggregate(cfg, results, failures)
	}

	final, err := s.registry.transition(id, next, errMsg, failures, result)
	if err != nil {
		s.logger.Info("Discarding results of finished execution",
			zap.String("executionID", id),
			zap.String("status", string(final.Status)))
		s.metrics.ExecutionFinished(final.Kind, string(final.Status), time.Since(started))
		return final, nil
	}
	s.metrics.ExecutionFinished(final.Kind, string(final.Status), time.Since(started))

	persistCtx := context.WithoutCancel(ctx)
	if result != nil {
		s.persistResult(persistCtx, id, result)
	}
	s.record(persistCtx, final)

	if final.Status == model.StatusFailed {
		s.logger.Error("Backtest failed", zap.String("executionID", id), zap.String("error", final.Error))
	} else {
		s.logger.Info("Backtest finished",
			zap.String("executionID", id),
			zap.String("status", string(final.Status)),
			zap.Int("failedSymbols", len(failures)),
			zap.Duration("elapsed", time.Since(started)))
	}
	return final, result
}

// simulateAll fans out one unit of work per symbol. Failures are recorded per symbol and
// never stop siblings.
func (s *BacktestService) simulateAll(ctx context.Context, cfg model.BacktestConfig, source BarSource) ([]model.SymbolResult, []model.SymbolFailure) {
	n := len(cfg.Symbols)
	capital := splitCapital(cfg.InitialCapital, n)
	results := make([]*model.SymbolResult, n)
	failures := make([]*model.SymbolFailure, n)

	var g errgroup.Group
	for i, symbol := range cfg.Symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			err := s.pool.Do(ctx, func() error {
				res, err := s.simulateSymbol(ctx, cfg, symbol, capital, source)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
			if err != nil {
				f := model.ClassifyFailure(symbol, err)
				failures[i] = &f
				s.metrics.SymbolFailed(f.Kind)
				s.logger.Warn("Symbol simulation failed",
					zap.String("symbol", symbol),
					zap.String("kind", f.Kind),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	var okResults []model.SymbolResult
	var failed []model.SymbolFailure
	for i := range cfg.Symbols {
		if results[i] != nil {
			okResults = append(okResults, *results[i])
		}
		if failures[i] != nil {
			failed = append(failed, *failures[i])
		}
	}
	return okResults, failed
}

func (s *BacktestService) simulateSymbol(ctx context.Context, cfg model.BacktestConfig, symbol string, capital decimal.Decimal, source BarSource) (*model.SymbolResult, error) {
	bars, err := source.GetBars(ctx, symbol, cfg.Timeframe, cfg.StartDate, cfg.EndDate)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", model.ErrDataSource, err)
	}

	strat, err := s.strategies.Build(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	res, err := simulator.New(cfg, strat, s.logger).Run(ctx, symbol, capital, bars)
	if err != nil {
		return nil, err
	}

	filled := 0
	for _, t := range res.Trades {
		if t.Status == model.TradeFilled {
			filled++
		}
	}
	s.metrics.AddTrades(filled)

	return &model.SymbolResult{
		Symbol:         symbol,
		InitialCapital: capital,
		Trades:         res.Trades,
		EquityCurve:    res.EquityCurve,
		FinalPosition:  res.FinalPosition,
		Metrics:        performance.NewCalculator(cfg).Calculate(res.EquityCurve, res.Trades),
	}, nil
}

func allFailedMessage(failures []model.SymbolFailure) string {
	if len(failures) == 0 {
		return "no symbols produced a result"
	}
	return fmt.Sprintf("all %d symbols failed; first: %s: %s", len(failures), failures[0].Symbol, failures[0].Message)
}

// record persists the execution and publishes its lifecycle event. A snapshot older than one
// already recorded is dropped. Failures are logged.
func (s *BacktestService) record(ctx context.Context, exec model.BacktestExecution) {
	ctx = context.WithoutCancel(ctx)
	s.registry.ordered(exec, func() {
		if s.store != nil {
			if err := s.store.SaveExecution(ctx, &exec); err != nil {
				s.logger.Error("Failed to persist execution", zap.Error(err), zap.String("executionID", exec.ID))
			}
		}
		if s.events != nil {
			if err := s.events.PublishExecutionEvent(ctx, executionEvent(exec)); err != nil {
				s.logger.Error("Failed to publish execution event", zap.Error(err), zap.String("executionID", exec.ID))
			}
		}
	})
}

// expire forgets terminal executions older than the retention window. The store still
// serves them.
func (s *BacktestService) expire() {
	if s.opts.ResultRetention <= 0 {
		return
	}
	if n := s.registry.prune(time.Now().UTC().Add(-s.opts.ResultRetention)); n > 0 {
		s.logger.Debug("Expired finished executions", zap.Int("count", n))
	}
}

func (s *BacktestService) persistResult(ctx context.Context, id string, result *model.BacktestResult) {
	if s.store != nil {
		if err := s.store.SaveResult(ctx, id, result); err != nil {
			s.logger.Error("Failed to persist result", zap.Error(err), zap.String("executionID", id))
		}
	}
	if s.archive != nil {
		data, err := json.Marshal(result)
		if err != nil {
			s.logger.Error("Failed to marshal result", zap.Error(err), zap.String("executionID", id))
			return
		}
		location, err := s.archive.Save(ctx, fmt.Sprintf("backtests/%s/result.json", id), data)
		if err != nil {
			s.logger.Error("Failed to archive result", zap.Error(err), zap.String("executionID", id))
			return
		}
		s.logger.Debug("Result archived", zap.String("executionID", id), zap.String("location", location))
	}
}

func executionEvent(exec model.BacktestExecution) model.ExecutionEvent {
	return model.ExecutionEvent{
		ExecutionID: exec.ID,
		SweepID:     exec.SweepID,
		Kind:        exec.Kind,
		Status:      exec.Status,
		Strategy:    exec.Config.Strategy.Name,
		Symbols:     append([]string(nil), exec.Config.Symbols...),
		Error:       exec.Error,
		Timestamp:   time.Now().UTC(),
	}
}
