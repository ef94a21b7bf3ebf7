package performance

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/backtest-service/internal/model"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func curveOf(step time.Duration, values ...float64) []model.EquityPoint {
	out := make([]model.EquityPoint, len(values))
	for i, v := range values {
		e := decimal.NewFromFloat(v)
		out[i] = model.EquityPoint{Timestamp: start.Add(time.Duration(i) * step), Cash: e, Equity: e}
	}
	return out
}

func closing(pnl string, held time.Duration) model.Trade {
	entry := start
	return model.Trade{
		Type:        model.TradeSell,
		Status:      model.TradeFilled,
		RealizedPnL: decimal.RequireFromString(pnl),
		Commission:  decimal.RequireFromString("1"),
		Timestamp:   start.Add(held),
		EntryTime:   &entry,
	}
}

func TestMaxDrawdown_KnownCurve(t *testing.T) {
	curve := curveOf(24*time.Hour, 100, 120, 90, 110, 80, 130)

	dd := MaxDrawdown(curve)
	assert.InDelta(t, -1.0/3.0, dd.Depth, 1e-12)
	assert.Equal(t, 1, dd.Peak)
	assert.Equal(t, 4, dd.Trough)

	m := (&Calculator{}).Calculate(curve, nil)
	assert.InDelta(t, -0.3333, m.MaxDrawdown, 1e-4)
	require.NotNil(t, m.PeakDate)
	assert.Equal(t, curve[1].Timestamp, *m.PeakDate)
	assert.Equal(t, curve[4].Timestamp, *m.TroughDate)
}

func TestMaxDrawdown_TieKeepsEarliest(t *testing.T) {
	dd := MaxDrawdown(curveOf(time.Hour, 100, 50, 100, 50))
	assert.Equal(t, 0, dd.Peak)
	assert.Equal(t, 1, dd.Trough)
}

func TestMaxDrawdown_MonotonicCurve(t *testing.T) {
	dd := MaxDrawdown(curveOf(time.Hour, 100, 101, 102))
	assert.Equal(t, 0.0, dd.Depth)
	assert.Equal(t, -1, dd.Peak)
	assert.Equal(t, -1, dd.Trough)
}

func TestCalculate_ConstantCurve(t *testing.T) {
	m := (&Calculator{}).Calculate(curveOf(24*time.Hour, 100, 100, 100, 100), nil)
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 0.0, m.SortinoRatio)
	assert.Equal(t, 0.0, m.Volatility)
	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Equal(t, 0.0, m.CalmarRatio)
	assert.Nil(t, m.ProfitFactor)
}

func TestCalculate_ReturnsAndRatios(t *testing.T) {
	curve := curveOf(24*time.Hour, 100, 110, 99, 108.9)
	calc := &Calculator{AnnualizationFactor: 252}
	m := calc.Calculate(curve, nil)

	returns := []float64{0.1, -0.1, 0.1}
	mu := (0.1 - 0.1 + 0.1) / 3
	var ss float64
	for _, r := range returns {
		ss += (r - mu) * (r - mu)
	}
	sd := math.Sqrt(ss / 2)

	assert.InDelta(t, 0.089, m.TotalReturn, 1e-9)
	assert.InDelta(t, mu/sd*math.Sqrt(252), m.SharpeRatio, 1e-9)
	assert.InDelta(t, mu/math.Sqrt(0.01/3)*math.Sqrt(252), m.SortinoRatio, 1e-9)
	assert.InDelta(t, sd*math.Sqrt(252), m.Volatility, 1e-9)
	assert.InDelta(t, math.Pow(1.089, 252.0/3)-1, m.AnnualizedReturn, 1e-6)
	assert.InDelta(t, -0.1, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, m.AnnualizedReturn/0.1, m.CalmarRatio, 1e-6)
	assert.Equal(t, 4, m.Periods)
	assert.True(t, m.FinalEquity.Equal(decimal.RequireFromString("108.9")))
}

func TestCalculate_NoNegativeReturnsSortinoMatchesSharpe(t *testing.T) {
	m := (&Calculator{AnnualizationFactor: 252}).Calculate(curveOf(24*time.Hour, 100, 101, 103, 104), nil)
	assert.Greater(t, m.SharpeRatio, 0.0)
	assert.Equal(t, m.SharpeRatio, m.SortinoRatio)
}

func TestCalculate_SortinoDownsideIsBelowZero(t *testing.T) {
	// 2.52 a year is 0.01 a period, above every return of this curve
	calc := &Calculator{AnnualizationFactor: 252, RiskFreeRate: 2.52}
	m := calc.Calculate(curveOf(24*time.Hour, 100, 100.5, 101, 101.5), nil)
	assert.Less(t, m.SharpeRatio, 0.0)
	assert.Equal(t, m.SharpeRatio, m.SortinoRatio)

	m = calc.Calculate(curveOf(24*time.Hour, 100, 110, 99, 108.9), nil)
	mu := (0.1 - 0.1 + 0.1) / 3
	assert.InDelta(t, (mu-0.01)/math.Sqrt(0.01/3)*math.Sqrt(252), m.SortinoRatio, 1e-9)
}

func TestCalculate_TradeStats(t *testing.T) {
	trades := []model.Trade{
		{Type: model.TradeBuy, Status: model.TradeFilled, Commission: decimal.RequireFromString("1")},
		closing("30", 2*time.Hour),
		closing("-10", 4*time.Hour),
		closing("0", 6*time.Hour),
		closing("20", 0),
		{Type: model.TradeSell, Status: model.TradeRejected, RealizedPnL: decimal.RequireFromString("999")},
	}
	m := (&Calculator{}).Calculate(curveOf(time.Hour, 100, 100), trades)

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-12)
	require.NotNil(t, m.ProfitFactor)
	assert.InDelta(t, 5.0, *m.ProfitFactor, 1e-12)
	assert.True(t, m.AverageTrade.Equal(decimal.RequireFromString("10")))
	assert.True(t, m.AverageWin.Equal(decimal.RequireFromString("25")))
	assert.True(t, m.AverageLoss.Equal(decimal.RequireFromString("-10")))
	assert.True(t, m.LargestWin.Equal(decimal.RequireFromString("30")))
	assert.True(t, m.LargestLoss.Equal(decimal.RequireFromString("-10")))
	assert.True(t, m.TotalCommission.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, 3*time.Hour, m.AvgTradeDuration)
}

func TestCalculate_ProfitFactorUndefinedWithoutLosses(t *testing.T) {
	m := (&Calculator{}).Calculate(curveOf(time.Hour, 100, 110), []model.Trade{closing("10", time.Hour)})
	assert.Nil(t, m.ProfitFactor)
	assert.Equal(t, 1.0, m.WinRate)
}

func TestCalculate_EmptyCurve(t *testing.T) {
	m := (&Calculator{}).Calculate(nil, nil)
	assert.Equal(t, 0, m.Periods)
	assert.Equal(t, -1, m.MaxDrawdownPeak)
}

func TestInferAnnualization(t *testing.T) {
	assert.Equal(t, 252.0, InferAnnualization(curveOf(24*time.Hour, 1, 1, 1)))
	assert.Equal(t, 52.0, InferAnnualization(curveOf(7*24*time.Hour, 1, 1, 1)))
	assert.Equal(t, 12.0, InferAnnualization(curveOf(30*24*time.Hour, 1, 1, 1)))
	assert.InDelta(t, 252*6.5, InferAnnualization(curveOf(time.Hour, 1, 1, 1)), 1e-9)
	assert.Equal(t, 252.0, InferAnnualization(curveOf(time.Hour, 1)))
}

func TestDrawdownSeries(t *testing.T) {
	series := DrawdownSeries(curveOf(time.Hour, 100, 120, 90, 130))
	require.Len(t, series, 4)
	assert.Equal(t, 0.0, series[0].Drawdown)
	assert.Equal(t, 0.0, series[1].Drawdown)
	assert.InDelta(t, -0.25, series[2].Drawdown, 1e-12)
	assert.Equal(t, 0.0, series[3].Drawdown)
}
