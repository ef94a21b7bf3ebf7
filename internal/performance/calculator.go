// Package performance derives return, risk and trade statistics from an equity curve and
// its trade log.
package performance

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/backtest-service/internal/model"
)

// Calculator computes PerformanceMetrics. A zero AnnualizationFactor is inferred from the curve.
type Calculator struct {
	AnnualizationFactor float64
	RiskFreeRate        float64
}

// NewCalculator creates a calculator from the run configuration
func NewCalculator(cfg model.BacktestConfig) *Calculator {
	return &Calculator{
		AnnualizationFactor: cfg.AnnualizationFactor,
		RiskFreeRate:        cfg.RiskFreeRate,
	}
}

// Calculate returns the metrics for curve and trades. Only filled closing trades count as
// round trips.
func (c *Calculator) Calculate(curve []model.EquityPoint, trades []model.Trade) model.PerformanceMetrics {
	m := model.PerformanceMetrics{
		MaxDrawdownPeak:   -1,
		MaxDrawdownTrough: -1,
		Periods:           len(curve),
	}
	c.tradeStats(&m, trades)
	if len(curve) == 0 {
		return m
	}

	factor := c.AnnualizationFactor
	if factor <= 0 {
		factor = InferAnnualization(curve)
	}
	m.AnnualizationFactor = factor

	first := curve[0].Equity.InexactFloat64()
	last := curve[len(curve)-1].Equity.InexactFloat64()
	m.FinalEquity = curve[len(curve)-1].Equity
	if first > 0 {
		m.TotalReturn = last/first - 1
	}

	returns := Returns(curve)
	if n := len(returns); n > 0 {
		growth := 1 + m.TotalReturn
		if growth <= 0 {
			m.AnnualizedReturn = -1
		} else {
			m.AnnualizedReturn = math.Pow(growth, factor/float64(n)) - 1
		}
	}

	rfPerPeriod := c.RiskFreeRate / factor
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rfPerPeriod
	}
	sd := sampleStdDev(returns)
	m.Volatility = sd * math.Sqrt(factor)
	if sd > 0 {
		m.SharpeRatio = mean(excess) / sd * math.Sqrt(factor)
	}
	if dd := downsideDeviation(returns, 0); dd > 0 {
		m.SortinoRatio = mean(excess) / dd * math.Sqrt(factor)
	} else {
		m.SortinoRatio = m.SharpeRatio
	}

	mdd := MaxDrawdown(curve)
	m.MaxDrawdown = mdd.Depth
	if mdd.Peak >= 0 {
		m.MaxDrawdownPeak = mdd.Peak
		m.MaxDrawdownTrough = mdd.Trough
		peak := curve[mdd.Peak].Timestamp
		trough := curve[mdd.Trough].Timestamp
		m.PeakDate = &peak
		m.TroughDate = &trough
	}
	if mdd.Depth < 0 {
		m.CalmarRatio = m.AnnualizedReturn / math.Abs(mdd.Depth)
	}
	return m
}

func (c *Calculator) tradeStats(m *model.PerformanceMetrics, trades []model.Trade) {
	var (
		total, grossProfit, grossLoss decimal.Decimal
		commission                    decimal.Decimal
		held                          time.Duration
	)
	for _, t := range trades {
		if t.Status != model.TradeFilled {
			continue
		}
		commission = commission.Add(t.Commission)
		if !t.Closing() {
			continue
		}
		m.TotalTrades++
		pnl := t.RealizedPnL
		total = total.Add(pnl)
		held += t.Holding()
		switch {
		case pnl.IsPositive():
			m.WinningTrades++
			grossProfit = grossProfit.Add(pnl)
			if pnl.GreaterThan(m.LargestWin) {
				m.LargestWin = pnl
			}
		case pnl.IsNegative():
			m.LosingTrades++
			grossLoss = grossLoss.Add(pnl)
			if pnl.LessThan(m.LargestLoss) {
				m.LargestLoss = pnl
			}
		}
	}

	m.TotalCommission = commission
	if m.TotalTrades > 0 {
		n := decimal.NewFromInt(int64(m.TotalTrades))
		m.AverageTrade = total.Div(n)
		m.AvgTradeDuration = held / time.Duration(m.TotalTrades)
	}
	if decided := m.WinningTrades + m.LosingTrades; decided > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(decided)
	}
	if m.WinningTrades > 0 {
		m.AverageWin = grossProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = grossLoss.Div(decimal.NewFromInt(int64(m.LosingTrades)))
		pf := grossProfit.Div(grossLoss.Abs()).InexactFloat64()
		m.ProfitFactor = &pf
	}
}
