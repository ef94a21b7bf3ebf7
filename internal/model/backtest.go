package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commission model types
const (
	CommissionNone       = "none"
	CommissionFlat       = "flat"
	CommissionPercentage = "percentage"
)

// Slippage model types
const (
	SlippageNone               = "none"
	SlippageFixedBPS           = "fixed_bps"
	SlippageVolumeProportional = "volume_proportional"
)

// Sizing policy types
const (
	SizingFixedQuantity = "fixed_quantity"
	SizingFixedNotional = "fixed_notional"
	SizingPercentEquity = "percent_equity"
)

// Fill price modes
const (
	FillAtOpen = "open"
	FillAtMid  = "mid"
)

// Combined equity alignment policies
const (
	AlignForwardFill  = "forward_fill"
	AlignIntersection = "intersection"
)

// CommissionModel describes how fees are charged per fill
type CommissionModel struct {
	Type   string          `json:"type" yaml:"type" validate:"omitempty,oneof=none flat percentage"`
	Amount decimal.Decimal `json:"amount" yaml:"amount" validate:"gte=0"`
	// Rate is a fraction of notional, 0.001 = 10bps
	Rate decimal.Decimal `json:"rate" yaml:"rate" validate:"gte=0,lt=1"`
}

// SlippageModel describes the adverse price adjustment applied to market fills
type SlippageModel struct {
	Type        string          `json:"type" yaml:"type" validate:"omitempty,oneof=none fixed_bps volume_proportional"`
	BPS         decimal.Decimal `json:"bps" yaml:"bps" validate:"gte=0,lt=10000"`
	Coefficient decimal.Decimal `json:"coefficient" yaml:"coefficient" validate:"gte=0"`
	MaxBPS      decimal.Decimal `json:"max_bps" yaml:"max_bps" validate:"gte=0,lt=10000"`
}

// SizingPolicy describes how much to trade on an entry signal
type SizingPolicy struct {
	Type  string          `json:"type" yaml:"type" validate:"omitempty,oneof=fixed_quantity fixed_notional percent_equity"`
	Value decimal.Decimal `json:"value" yaml:"value" validate:"gte=0"`
}

// StrategySpec names a registered strategy and its parameters
type StrategySpec struct {
	Name   string             `json:"name" yaml:"name" validate:"required"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params"`
}

// BacktestConfig contains all parameters needed to run a backtest
type BacktestConfig struct {
	Name              string          `json:"name,omitempty" yaml:"name"`
	Symbols           []string        `json:"symbols" yaml:"symbols" validate:"required,min=1,unique,dive,required"`
	Timeframe         string          `json:"timeframe" yaml:"timeframe" validate:"required,oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
	StartDate         time.Time       `json:"start_date" yaml:"start_date" validate:"required"`
	EndDate           time.Time       `json:"end_date" yaml:"end_date" validate:"required,gtfield=StartDate"`
	InitialCapital    decimal.Decimal `json:"initial_capital" yaml:"initial_capital" validate:"gt=0"`
	Commission        CommissionModel `json:"commission" yaml:"commission"`
	Slippage          SlippageModel   `json:"slippage" yaml:"slippage"`
	Sizing            SizingPolicy    `json:"sizing" yaml:"sizing"`
	QuantityPrecision int32           `json:"quantity_precision" yaml:"quantity_precision" validate:"gte=0,lte=12"`
	FillPrice         string          `json:"fill_price,omitempty" yaml:"fill_price" validate:"omitempty,oneof=open mid"`
	AllowShort        bool            `json:"allow_short" yaml:"allow_short"`
	Strategy          StrategySpec    `json:"strategy" yaml:"strategy"`
	Alignment         string          `json:"alignment,omitempty" yaml:"alignment" validate:"omitempty,oneof=forward_fill intersection"`
	// AnnualizationFactor overrides the periods-per-year inferred from bar spacing
	AnnualizationFactor float64       `json:"annualization_factor,omitempty" yaml:"annualization_factor" validate:"gte=0"`
	RiskFreeRate        float64       `json:"risk_free_rate,omitempty" yaml:"risk_free_rate" validate:"gte=0,lt=1"`
	MaxBarGap           time.Duration `json:"max_bar_gap,omitempty" yaml:"max_bar_gap" validate:"gte=0"`
}

// Clone returns a deep copy so a running execution never observes later edits
func (c BacktestConfig) Clone() BacktestConfig {
	out := c
	out.Symbols = append([]string(nil), c.Symbols...)
	if c.Strategy.Params != nil {
		out.Strategy.Params = make(map[string]float64, len(c.Strategy.Params))
		for k, v := range c.Strategy.Params {
			out.Strategy.Params[k] = v
		}
	}
	return out
}

// WithDefaults fills in empty model types with their neutral choices
func (c BacktestConfig) WithDefaults() BacktestConfig {
	out := c.Clone()
	if out.Commission.Type == "" {
		out.Commission.Type = CommissionNone
	}
	if out.Slippage.Type == "" {
		out.Slippage.Type = SlippageNone
	}
	if out.Sizing.Type == "" {
		out.Sizing.Type = SizingPercentEquity
		if out.Sizing.Value.IsZero() {
			out.Sizing.Value = decimal.NewFromInt(1)
		}
	}
	if out.FillPrice == "" {
		out.FillPrice = FillAtOpen
	}
	if out.Alignment == "" {
		out.Alignment = AlignForwardFill
	}
	return out
}
