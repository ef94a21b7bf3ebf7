package model

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusRunning))
	assert.True(t, StatusPending.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusRunning.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusRunning.CanTransitionTo(StatusFailed))
	assert.True(t, StatusRunning.CanTransitionTo(StatusCancelled))

	assert.False(t, StatusPending.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusRunning))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusRunning))
	assert.False(t, StatusFailed.CanTransitionTo(StatusCompleted))

	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestBacktestConfig_CloneIsDeep(t *testing.T) {
	cfg := BacktestConfig{
		Symbols:  []string{"AAPL", "MSFT"},
		Strategy: StrategySpec{Name: "sma_crossover", Params: map[string]float64{"fast": 5}},
	}
	clone := cfg.Clone()

	cfg.Symbols[0] = "TSLA"
	cfg.Strategy.Params["fast"] = 9

	assert.Equal(t, "AAPL", clone.Symbols[0])
	assert.Equal(t, 5.0, clone.Strategy.Params["fast"])
}

func TestBacktestConfig_WithDefaults(t *testing.T) {
	cfg := BacktestConfig{}.WithDefaults()
	assert.Equal(t, CommissionNone, cfg.Commission.Type)
	assert.Equal(t, SlippageNone, cfg.Slippage.Type)
	assert.Equal(t, SizingPercentEquity, cfg.Sizing.Type)
	assert.True(t, cfg.Sizing.Value.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, FillAtOpen, cfg.FillPrice)
	assert.Equal(t, AlignForwardFill, cfg.Alignment)
}

func TestBar_Validate(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	good := Bar{Timestamp: ts, Open: decimal.NewFromInt(10), High: decimal.NewFromInt(12),
		Low: decimal.NewFromInt(9), Close: decimal.NewFromInt(11), Volume: decimal.NewFromInt(100)}
	require.NoError(t, good.Validate())
	assert.True(t, good.Mid().Equal(decimal.RequireFromString("10.5")))

	inverted := good
	inverted.High = decimal.NewFromInt(8)
	assert.Error(t, inverted.Validate())

	zero := good
	zero.Close = decimal.Zero
	assert.Error(t, zero.Validate())
}

func TestClassifyFailure(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	f := ClassifyFailure("AAPL", fmt.Errorf("run: %w", &InsufficientDataError{Symbol: "AAPL", Required: 20, Available: 3}))
	assert.Equal(t, FailureInsufficientData, f.Kind)

	f = ClassifyFailure("AAPL", &SimulationFault{Symbol: "AAPL", Timestamp: ts, Reason: "cash negative"})
	assert.Equal(t, FailureSimulationFault, f.Kind)
	require.NotNil(t, f.Timestamp)
	assert.Equal(t, ts, *f.Timestamp)

	f = ClassifyFailure("AAPL", fmt.Errorf("%w: timeout", ErrDataSource))
	assert.Equal(t, FailureDataSource, f.Kind)

	f = ClassifyFailure("AAPL", context.Canceled)
	assert.Equal(t, FailureCancelled, f.Kind)
}

func TestConfigValidationError(t *testing.T) {
	var verr ConfigValidationError
	assert.NoError(t, verr.OrNil())

	verr.Add("symbols", "required")
	verr.Add("initial_capital", "must be greater than 0")
	err := verr.OrNil()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbols: required")
	assert.Contains(t, err.Error(), "initial_capital")
}

func TestPerformanceMetrics_Metric(t *testing.T) {
	pf := 2.5
	m := PerformanceMetrics{SharpeRatio: 1.2, ProfitFactor: &pf}

	v, ok := m.Metric("sharpe")
	require.True(t, ok)
	assert.Equal(t, 1.2, v)

	v, ok = m.Metric("profit_factor")
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	_, ok = m.Metric("nope")
	assert.False(t, ok)
}
