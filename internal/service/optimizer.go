package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/backtest-service/internal/model"
)

const (
	defaultObjective = "sharpe"
	defaultTopN      = 10
	maxGridSize      = 1 << 31
)

// paramGrid enumerates combinations by mixed-radix decoding over sorted parameter names
type paramGrid struct {
	names  []string
	values [][]float64
	total  int
}

func newParamGrid(grid map[string][]float64) (*paramGrid, error) {
	verr := &model.ConfigValidationError{}
	if len(grid) == 0 {
		verr.Add("grid", "must name at least one parameter")
		return nil, verr
	}
	g := &paramGrid{total: 1}
	for name := range grid {
		g.names = append(g.names, name)
	}
	sort.Strings(g.names)
	for _, name := range g.names {
		vals := grid[name]
		if len(vals) == 0 {
			verr.Add("grid."+name, "must list at least one value")
			continue
		}
		g.values = append(g.values, vals)
		if g.total > maxGridSize/len(vals) {
			return nil, fmt.Errorf("%w: grid is too large to enumerate", model.ErrTooManyCombos)
		}
		g.total *= len(vals)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *paramGrid) combination(index int) map[string]float64 {
	out := make(map[string]float64, len(g.names))
	for i := len(g.names) - 1; i >= 0; i-- {
		n := len(g.values[i])
		out[g.names[i]] = g.values[i][index%n]
		index /= n
	}
	return out
}

// sample picks which combination indices to evaluate, ascending
func (g *paramGrid) sample(n int, seed int64) []int {
	if n <= 0 || n >= g.total {
		out := make([]int, g.total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	rng := rand.New(rand.NewSource(seed))
	picked := make(map[int]bool, n)
	out := make([]int, 0, n)
	for len(out) < n {
		idx := rng.Intn(g.total)
		if picked[idx] {
			continue
		}
		picked[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

type comboOutcome struct {
	index   int
	params  map[string]float64
	exec    model.BacktestExecution
	metrics *model.PerformanceMetrics
	result  *model.BacktestResult
	err     string
}

// Optimize runs the base config once per parameter combination and ranks the completed runs
// by the objective metric, highest first. It blocks until every combination finishes.
func (s *BacktestService) Optimize(ctx context.Context, req model.OptimizationRequest) (*model.OptimizationResult, error) {
	objective := strings.ToLower(req.Objective)
	if objective == "" {
		objective = defaultObjective
	}
	if _, ok := (model.PerformanceMetrics{}).Metric(objective); !ok {
		verr := &model.ConfigValidationError{}
		verr.Add("objective", fmt.Sprintf("unknown metric %q", req.Objective))
		return nil, verr
	}
	if err := s.validator.Validate(req.Base); err != nil {
		return nil, err
	}

	grid, err := newParamGrid(req.Grid)
	if err != nil {
		return nil, err
	}
	indices := grid.sample(req.RandomSamples, req.Seed)
	if len(indices) > s.opts.MaxCombinations {
		return nil, fmt.Errorf("%w: %d exceeds limit of %d", model.ErrTooManyCombos, len(indices), s.opts.MaxCombinations)
	}

	s.expire()
	sweepID := uuid.NewString()
	base := req.Base.WithDefaults()
	started := time.Now()

	s.logger.Info("Optimization started",
		zap.String("sweepID", sweepID),
		zap.String("strategy", base.Strategy.Name),
		zap.Int("combinations", len(indices)),
		zap.String("objective", objective))

	outcomes := make([]comboOutcome, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.OptimizerParallelism)
	source := newMemoSource(gctx, s.bars)
	for k, idx := range indices {
		k, idx := k, idx
		g.Go(func() error {
			outcomes[k] = s.runCombination(gctx, base, grid.combination(idx), idx, sweepID, source)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &model.OptimizationResult{
		SweepID:      sweepID,
		Objective:    objective,
		Combinations: len(indices),
	}
	for _, o := range outcomes {
		if o.metrics == nil {
			result.Failures = append(result.Failures, model.CombinationFailure{
				Index:       o.index,
				ExecutionID: o.exec.ID,
				Params:      o.params,
				Error:       o.err,
			})
			s.metrics.CombinationEvaluated("failed")
			continue
		}
		value, _ := o.metrics.Metric(objective)
		result.Ranked = append(result.Ranked, model.RankedCombination{
			Index:       o.index,
			ExecutionID: o.exec.ID,
			Params:      o.params,
			Objective:   value,
			Metrics:     *o.metrics,
			Result:      o.result,
		})
		s.metrics.CombinationEvaluated("completed")
	}

	sort.SliceStable(result.Ranked, func(i, j int) bool {
		a, b := result.Ranked[i], result.Ranked[j]
		if a.Objective != b.Objective {
			return a.Objective > b.Objective
		}
		return a.Index < b.Index
	})
	topN := req.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	if len(result.Ranked) > topN {
		for _, r := range result.Ranked[topN:] {
			s.registry.releaseResult(r.ExecutionID)
		}
		result.Ranked = result.Ranked[:topN]
	}
	for i := range result.Ranked {
		result.Ranked[i].Rank = i + 1
	}

	s.logger.Info("Optimization finished",
		zap.String("sweepID", sweepID),
		zap.Int("completed", len(indices)-len(result.Failures)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (s *BacktestService) runCombination(ctx context.Context, base model.BacktestConfig, params map[string]float64, index int, sweepID string, source BarSource) comboOutcome {
	out := comboOutcome{index: index, params: params}

	cfg := base.Clone()
	merged := make(map[string]float64, len(cfg.Strategy.Params)+len(params))
	for k, v := range cfg.Strategy.Params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	cfg.Strategy.Params = merged
	if err := s.validator.Validate(cfg); err != nil {
		out.err = err.Error()
		return out
	}

	exec := s.newExecution(cfg, model.KindOptimization, sweepID)
	execCtx, cancel := s.executionContext(ctx)
	defer cancel()
	s.registry.add(exec, cancel)
	s.record(ctx, exec)

	final, result := s.runExecution(execCtx, exec.ID, cfg, source)
	out.exec = final
	if final.Status != model.StatusCompleted || result == nil {
		out.err = final.Error
		if out.err == "" {
			out.err = "execution " + strings.ToLower(string(final.Status))
		}
		return out
	}
	m := result.Metrics
	out.metrics = &m
	out.result = result
	return out
}

// memoSource fetches each symbol's bars once per sweep. Bars are shared read-only between
// combinations. Fetches run under the sweep context so one combination's cancellation never
// reaches the others waiting on the same key.
type memoSource struct {
	ctx   context.Context
	inner BarSource
	group singleflight.Group
	mu    sync.Mutex
	cache map[string]memoEntry
}

type memoEntry struct {
	bars []model.Bar
	err  error
}

func newMemoSource(ctx context.Context, inner BarSource) *memoSource {
	return &memoSource{ctx: ctx, inner: inner, cache: make(map[string]memoEntry)}
}

func (m *memoSource) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	key := fmt.Sprintf("%s|%s|%d|%d", symbol, timeframe, start.Unix(), end.Unix())

	m.mu.Lock()
	if e, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return e.bars, e.err
	}
	m.mu.Unlock()

	ch := m.group.DoChan(key, func() (interface{}, error) {
		m.mu.Lock()
		e, ok := m.cache[key]
		m.mu.Unlock()
		if ok {
			return e.bars, e.err
		}
		bars, err := m.inner.GetBars(m.ctx, symbol, timeframe, start, end)
		if m.ctx.Err() == nil {
			m.mu.Lock()
			m.cache[key] = memoEntry{bars: bars, err: err}
			m.mu.Unlock()
		}
		return bars, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Bar), nil
	}
}
