package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yourorg/backtest-service/internal/model"
)

// SMACrossover goes long when the fast average crosses above the slow one and
// asks for a short (or an exit when shorting is disabled) on the opposite cross.
type SMACrossover struct {
	fast, slow int
}

func smaCrossoverDescriptor() Descriptor {
	return Descriptor{
		Name:        "sma_crossover",
		Description: "Fast/slow simple moving average crossover",
		Params: []ParamSpec{
			{Name: "fast", Default: 10, Min: 1, Integer: true, Description: "fast window"},
			{Name: "slow", Default: 30, Min: 2, Integer: true, Description: "slow window"},
		},
		Build: func(p map[string]float64) (Strategy, error) {
			fast, slow := int(p["fast"]), int(p["slow"])
			if fast >= slow {
				return nil, fmt.Errorf("sma_crossover: fast (%d) must be below slow (%d)", fast, slow)
			}
			return &SMACrossover{fast: fast, slow: slow}, nil
		},
	}
}

func (s *SMACrossover) Name() string  { return "sma_crossover" }
func (s *SMACrossover) Lookback() int { return s.slow + 1 }

func (s *SMACrossover) Signal(window []model.Bar) model.Signal {
	if len(window) < s.Lookback() {
		return model.Hold()
	}
	c := closes(window[len(window)-s.slow-1:])
	n := len(c)
	fastNow, slowNow := sma(c, n, s.fast), sma(c, n, s.slow)
	fastPrev, slowPrev := sma(c, n-1, s.fast), sma(c, n-1, s.slow)

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return model.Signal{Action: model.ActionEnterLong, Reason: "golden cross"}
	case fastPrev >= slowPrev && fastNow < slowNow:
		return model.Signal{Action: model.ActionEnterShort, Reason: "death cross"}
	}
	return model.Hold()
}

// RSIMeanReversion buys oversold conditions and exits when overbought. With a
// positive limit offset entries are placed as limit orders below the close.
type RSIMeanReversion struct {
	period               int
	oversold, overbought float64
	limitOffsetBPS       float64
}

func rsiMeanReversionDescriptor() Descriptor {
	return Descriptor{
		Name:        "rsi_mean_reversion",
		Description: "Buy when RSI is oversold, exit when overbought",
		Params: []ParamSpec{
			{Name: "period", Default: 14, Min: 2, Integer: true, Description: "RSI period"},
			{Name: "oversold", Default: 30, Min: 0, Max: 100, Description: "entry threshold"},
			{Name: "overbought", Default: 70, Min: 0, Max: 100, Description: "exit threshold"},
			{Name: "limit_offset_bps", Default: 0, Min: 0, Max: 5000, Description: "limit entry offset below close"},
		},
		Build: func(p map[string]float64) (Strategy, error) {
			if p["oversold"] >= p["overbought"] {
				return nil, fmt.Errorf("rsi_mean_reversion: oversold must be below overbought")
			}
			return &RSIMeanReversion{
				period:         int(p["period"]),
				oversold:       p["oversold"],
				overbought:     p["overbought"],
				limitOffsetBPS: p["limit_offset_bps"],
			}, nil
		},
	}
}

func (s *RSIMeanReversion) Name() string  { return "rsi_mean_reversion" }
func (s *RSIMeanReversion) Lookback() int { return s.period + 1 }

func (s *RSIMeanReversion) Signal(window []model.Bar) model.Signal {
	if len(window) < s.Lookback() {
		return model.Hold()
	}
	start := len(window) - s.period*10
	if start < 0 {
		start = 0
	}
	value := rsi(closes(window[start:]), s.period)

	switch {
	case value < s.oversold:
		sig := model.Signal{Action: model.ActionEnterLong, Reason: fmt.Sprintf("rsi %.1f", value)}
		if s.limitOffsetBPS > 0 {
			last := window[len(window)-1].Close
			offset := decimal.NewFromFloat(s.limitOffsetBPS).Div(decimal.NewFromInt(10000))
			sig.OrderType = model.OrderLimit
			sig.LimitPrice = last.Mul(decimal.NewFromInt(1).Sub(offset))
		}
		return sig
	case value > s.overbought:
		return model.Signal{Action: model.ActionExit, Reason: fmt.Sprintf("rsi %.1f", value)}
	}
	return model.Hold()
}

// DonchianBreakout follows closes that escape the prior channel.
type DonchianBreakout struct {
	period int
}

func donchianBreakoutDescriptor() Descriptor {
	return Descriptor{
		Name:        "donchian_breakout",
		Description: "Trade closes outside the prior high/low channel",
		Params: []ParamSpec{
			{Name: "period", Default: 20, Min: 2, Integer: true, Description: "channel length"},
		},
		Build: func(p map[string]float64) (Strategy, error) {
			return &DonchianBreakout{period: int(p["period"])}, nil
		},
	}
}

func (s *DonchianBreakout) Name() string  { return "donchian_breakout" }
func (s *DonchianBreakout) Lookback() int { return s.period + 1 }

func (s *DonchianBreakout) Signal(window []model.Bar) model.Signal {
	n := len(window)
	if n < s.Lookback() {
		return model.Hold()
	}
	hi, lo := channel(window[n-1-s.period : n-1])
	last := window[n-1].Close.InexactFloat64()
	switch {
	case last > hi:
		return model.Signal{Action: model.ActionEnterLong, Reason: "channel breakout"}
	case last < lo:
		return model.Signal{Action: model.ActionEnterShort, Reason: "channel breakdown"}
	}
	return model.Hold()
}

// BuyAndHold enters on the first bar and never exits; the simulator liquidates at the end.
type BuyAndHold struct{}

func buyAndHoldDescriptor() Descriptor {
	return Descriptor{
		Name:        "buy_and_hold",
		Description: "Enter long on the first bar and hold",
		Build: func(map[string]float64) (Strategy, error) {
			return BuyAndHold{}, nil
		},
	}
}

func (BuyAndHold) Name() string  { return "buy_and_hold" }
func (BuyAndHold) Lookback() int { return 1 }

func (BuyAndHold) Signal(window []model.Bar) model.Signal {
	if len(window) == 1 {
		return model.Signal{Action: model.ActionEnterLong}
	}
	return model.Hold()
}
