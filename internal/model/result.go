package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceMetrics represents the statistics derived from an equity curve and its trades
type PerformanceMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	// Indices into the equity curve, -1 when there is no drawdown
	MaxDrawdownPeak   int        `json:"max_drawdown_peak"`
	MaxDrawdownTrough int        `json:"max_drawdown_trough"`
	PeakDate          *time.Time `json:"peak_date,omitempty"`
	TroughDate        *time.Time `json:"trough_date,omitempty"`
	CalmarRatio       float64    `json:"calmar_ratio"`
	WinRate           float64    `json:"win_rate"`
	// ProfitFactor is nil when there are no losing trades
	ProfitFactor        *float64        `json:"profit_factor"`
	AvgTradeDuration    time.Duration   `json:"avg_trade_duration"`
	TotalTrades         int             `json:"total_trades"`
	WinningTrades       int             `json:"winning_trades"`
	LosingTrades        int             `json:"losing_trades"`
	AverageTrade        decimal.Decimal `json:"average_trade"`
	AverageWin          decimal.Decimal `json:"average_win"`
	AverageLoss         decimal.Decimal `json:"average_loss"`
	LargestWin          decimal.Decimal `json:"largest_win"`
	LargestLoss         decimal.Decimal `json:"largest_loss"`
	TotalCommission     decimal.Decimal `json:"total_commission"`
	FinalEquity         decimal.Decimal `json:"final_equity"`
	Periods             int             `json:"periods"`
	AnnualizationFactor float64         `json:"annualization_factor"`
}

// Metric returns a named objective value, used by optimization ranking
func (m PerformanceMetrics) Metric(name string) (float64, bool) {
	switch name {
	case "sharpe", "sharpe_ratio":
		return m.SharpeRatio, true
	case "sortino", "sortino_ratio":
		return m.SortinoRatio, true
	case "total_return":
		return m.TotalReturn, true
	case "annualized_return":
		return m.AnnualizedReturn, true
	case "calmar", "calmar_ratio":
		return m.CalmarRatio, true
	case "win_rate":
		return m.WinRate, true
	case "max_drawdown":
		return m.MaxDrawdown, true
	case "profit_factor":
		if m.ProfitFactor == nil {
			if m.WinningTrades > 0 {
				return 1e12, true
			}
			return 0, true
		}
		return *m.ProfitFactor, true
	}
	return 0, false
}

// DrawdownPoint is the distance from the running peak at one point of an equity curve
type DrawdownPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Drawdown  float64   `json:"drawdown"`
}

// SymbolResult is the output of one simulation unit of work
type SymbolResult struct {
	Symbol         string             `json:"symbol"`
	InitialCapital decimal.Decimal    `json:"initial_capital"`
	Trades         []Trade            `json:"trades"`
	EquityCurve    []EquityPoint      `json:"equity_curve"`
	FinalPosition  Position           `json:"final_position"`
	Metrics        PerformanceMetrics `json:"metrics"`
}

// BacktestResult is the aggregated output of a completed execution
type BacktestResult struct {
	Config      BacktestConfig     `json:"config"`
	Symbols     []SymbolResult     `json:"symbols"`
	Failures    []SymbolFailure    `json:"failures,omitempty"`
	EquityCurve []EquityPoint      `json:"equity_curve"`
	Drawdowns   []DrawdownPoint    `json:"drawdowns"`
	Metrics     PerformanceMetrics `json:"metrics"`
}

// OptimizationRequest sweeps strategy parameters over a base config
type OptimizationRequest struct {
	Base BacktestConfig       `json:"base" yaml:"base"`
	Grid map[string][]float64 `json:"grid" yaml:"grid"`
	// Objective is a PerformanceMetrics name, sharpe by default
	Objective string `json:"objective,omitempty" yaml:"objective"`
	TopN      int    `json:"top_n,omitempty" yaml:"top_n"`
	// RandomSamples > 0 evaluates a seeded random subset of the grid
	RandomSamples int   `json:"random_samples,omitempty" yaml:"random_samples"`
	Seed          int64 `json:"seed,omitempty" yaml:"seed"`
}

// RankedCombination is one evaluated parameter set
type RankedCombination struct {
	Rank        int                `json:"rank"`
	Index       int                `json:"index"`
	ExecutionID string             `json:"execution_id"`
	Params      map[string]float64 `json:"params"`
	Objective   float64            `json:"objective"`
	Metrics     PerformanceMetrics `json:"metrics"`
	Result      *BacktestResult    `json:"result,omitempty"`
}

// CombinationFailure is a parameter set that did not complete
type CombinationFailure struct {
	Index       int                `json:"index"`
	ExecutionID string             `json:"execution_id,omitempty"`
	Params      map[string]float64 `json:"params"`
	Error       string             `json:"error"`
}

// OptimizationResult is the ranked output of a parameter sweep
type OptimizationResult struct {
	SweepID      string               `json:"sweep_id"`
	Objective    string               `json:"objective"`
	Combinations int                  `json:"combinations"`
	Ranked       []RankedCombination  `json:"ranked"`
	Failures     []CombinationFailure `json:"failures,omitempty"`
}
