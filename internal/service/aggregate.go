package service

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/performance"
)

// combineCurves sums per-symbol equity curves on a shared timeline. With forward_fill every
// timestamp of any symbol is kept and a symbol contributes its last known point, or its
// starting capital before its first bar. With intersection only timestamps every symbol
// traded are kept.
func combineCurves(results []model.SymbolResult, policy string) []model.EquityPoint {
	if len(results) == 0 {
		return nil
	}

	type slot struct {
		ts    time.Time
		count int
	}
	seen := make(map[int64]*slot)
	for _, r := range results {
		for _, pt := range r.EquityCurve {
			key := pt.Timestamp.UnixNano()
			if s, ok := seen[key]; ok {
				s.count++
				continue
			}
			seen[key] = &slot{ts: pt.Timestamp.UTC(), count: 1}
		}
	}
	timeline := make([]time.Time, 0, len(seen))
	for _, s := range seen {
		if policy == model.AlignIntersection && s.count < len(results) {
			continue
		}
		timeline = append(timeline, s.ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })

	cursor := make([]int, len(results))
	out := make([]model.EquityPoint, 0, len(timeline))
	for _, ts := range timeline {
		pt := model.EquityPoint{Timestamp: ts}
		for i, r := range results {
			curve := r.EquityCurve
			for cursor[i] < len(curve) && !curve[cursor[i]].Timestamp.After(ts) {
				cursor[i]++
			}
			if cursor[i] == 0 {
				pt.Cash = pt.Cash.Add(r.InitialCapital)
				pt.Equity = pt.Equity.Add(r.InitialCapital)
				continue
			}
			last := curve[cursor[i]-1]
			pt.Cash = pt.Cash.Add(last.Cash)
			pt.PositionValue = pt.PositionValue.Add(last.PositionValue)
			pt.Equity = pt.Equity.Add(last.Equity)
			pt.RealizedPnL = pt.RealizedPnL.Add(last.RealizedPnL)
			pt.UnrealizedPnL = pt.UnrealizedPnL.Add(last.UnrealizedPnL)
		}
		out = append(out, pt)
	}
	return out
}

// mergeTrades flattens per-symbol trade logs into one time-ordered log
func mergeTrades(results []model.SymbolResult) []model.Trade {
	var all []model.Trade
	for _, r := range results {
		all = append(all, r.Trades...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.Before(all[j].Timestamp)
		}
		if all[i].Symbol != all[j].Symbol {
			return all[i].Symbol < all[j].Symbol
		}
		return all[i].ID < all[j].ID
	})
	return all
}

// aggregate builds the execution result from per-symbol outputs
func aggregate(cfg model.BacktestConfig, results []model.SymbolResult, failures []model.SymbolFailure) *model.BacktestResult {
	sorted := append([]model.SymbolResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	fails := append([]model.SymbolFailure(nil), failures...)
	sort.Slice(fails, func(i, j int) bool { return fails[i].Symbol < fails[j].Symbol })

	combined := combineCurves(sorted, cfg.Alignment)
	holdIdleCash(combined, cfg.InitialCapital, sorted)
	calc := performance.NewCalculator(cfg)
	return &model.BacktestResult{
		Config:      cfg,
		Symbols:     sorted,
		Failures:    fails,
		EquityCurve: combined,
		Drawdowns:   performance.DrawdownSeries(combined),
		Metrics:     calc.Calculate(combined, mergeTrades(sorted)),
	}
}

// holdIdleCash adds the capital no surviving symbol traded, the share of failed symbols and
// rounding residue, to every combined point as cash
func holdIdleCash(curve []model.EquityPoint, capital decimal.Decimal, results []model.SymbolResult) {
	idle := capital
	for _, r := range results {
		idle = idle.Sub(r.InitialCapital)
	}
	if !idle.IsPositive() {
		return
	}
	for i := range curve {
		curve[i].Cash = curve[i].Cash.Add(idle)
		curve[i].Equity = curve[i].Equity.Add(idle)
	}
}

// splitCapital divides capital equally between n symbols. The split counts every configured
// symbol, so a symbol that later fails leaves its share idle.
func splitCapital(capital decimal.Decimal, n int) decimal.Decimal {
	if n <= 1 {
		return capital
	}
	return capital.DivRound(decimal.NewFromInt(int64(n)), 8)
}
