package simulator

import (
	"github.com/shopspring/decimal"

	"github.com/yourorg/backtest-service/internal/model"
)

var (
	one      = decimal.NewFromInt(1)
	bpsScale = decimal.NewFromInt(10000)
)

// pendingOrder is a signal queued on bar i, filled against bar i+1
type pendingOrder struct {
	signal model.Signal
}

func (o pendingOrder) orderType() model.OrderType {
	if o.signal.OrderType == "" {
		return model.OrderMarket
	}
	return o.signal.OrderType
}

// triggerPrice decides whether an order executes on bar and at what raw price.
// side is +1 for buys and -1 for sells.
func (s *Simulator) triggerPrice(o pendingOrder, side int, bar model.Bar) (decimal.Decimal, bool) {
	open := bar.Open
	switch o.orderType() {
	case model.OrderLimit:
		limit := o.signal.LimitPrice
		if side > 0 {
			if bar.Low.GreaterThan(limit) {
				return decimal.Zero, false
			}
			return decimal.Min(open, limit), true
		}
		if bar.High.LessThan(limit) {
			return decimal.Zero, false
		}
		return decimal.Max(open, limit), true

	case model.OrderStop:
		stop := o.signal.StopPrice
		if side > 0 {
			if bar.High.LessThan(stop) {
				return decimal.Zero, false
			}
			return decimal.Max(open, stop), true
		}
		if bar.Low.GreaterThan(stop) {
			return decimal.Zero, false
		}
		return decimal.Min(open, stop), true

	case model.OrderStopLimit:
		stop, limit := o.signal.StopPrice, o.signal.LimitPrice
		if side > 0 {
			if bar.High.LessThan(stop) || bar.Low.GreaterThan(limit) {
				return decimal.Zero, false
			}
			return decimal.Min(decimal.Max(open, stop), limit), true
		}
		if bar.Low.GreaterThan(stop) || bar.High.LessThan(limit) {
			return decimal.Zero, false
		}
		return decimal.Max(decimal.Min(open, stop), limit), true
	}

	if s.cfg.FillPrice == model.FillAtMid {
		return bar.Mid(), true
	}
	return open, true
}

// slipped pushes price against the trader. Limit-bounded orders never slip.
func (s *Simulator) slipped(price decimal.Decimal, side int, qty decimal.Decimal, bar model.Bar, ot model.OrderType) decimal.Decimal {
	if ot == model.OrderLimit || ot == model.OrderStopLimit {
		return price
	}
	bps := s.slippageBPS(qty, bar)
	if bps.IsZero() {
		return price
	}
	adj := price.Mul(bps).Div(bpsScale)
	if side > 0 {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

func (s *Simulator) slippageBPS(qty decimal.Decimal, bar model.Bar) decimal.Decimal {
	m := s.cfg.Slippage
	switch m.Type {
	case model.SlippageFixedBPS:
		return m.BPS
	case model.SlippageVolumeProportional:
		if !bar.Volume.IsPositive() {
			return m.MaxBPS
		}
		bps := m.Coefficient.Mul(qty.Abs()).Div(bar.Volume).Mul(bpsScale)
		if m.MaxBPS.IsPositive() && bps.GreaterThan(m.MaxBPS) {
			return m.MaxBPS
		}
		return bps
	}
	return decimal.Zero
}

func (s *Simulator) commission(qty, price decimal.Decimal) decimal.Decimal {
	m := s.cfg.Commission
	switch m.Type {
	case model.CommissionFlat:
		return m.Amount
	case model.CommissionPercentage:
		return qty.Abs().Mul(price).Mul(m.Rate)
	}
	return decimal.Zero
}

// quantityFor sizes an opening fill at price given the equity available to it.
// Commission is carved out of notional-based budgets so a full-equity entry stays affordable.
func (s *Simulator) quantityFor(price, equity, hint decimal.Decimal) decimal.Decimal {
	value := s.cfg.Sizing.Value
	if hint.IsPositive() {
		value = hint
	}
	var qty decimal.Decimal
	switch s.cfg.Sizing.Type {
	case model.SizingFixedQuantity:
		qty = value
	case model.SizingFixedNotional:
		qty = s.affordable(value, price)
	default:
		qty = s.affordable(equity.Mul(value), price)
	}
	if qty.IsNegative() {
		return decimal.Zero
	}
	return qty.Truncate(s.cfg.QuantityPrecision)
}

func (s *Simulator) affordable(budget, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	m := s.cfg.Commission
	switch m.Type {
	case model.CommissionFlat:
		return budget.Sub(m.Amount).Div(price)
	case model.CommissionPercentage:
		return budget.Div(price.Mul(one.Add(m.Rate)))
	}
	return budget.Div(price)
}
