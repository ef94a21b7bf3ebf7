// Package simulator replays a bar stream through a strategy and produces the trade log and
// equity curve of a single symbol. It performs no I/O.
package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/strategy"
)

// Result is the output of one simulation run
type Result struct {
	Symbol         string
	InitialCapital decimal.Decimal
	Trades         []model.Trade
	EquityCurve    []model.EquityPoint
	FinalPosition  model.Position
}

// Simulator executes strategy signals against historical bars with next-bar fills
type Simulator struct {
	cfg      model.BacktestConfig
	strategy strategy.Strategy
	logger   *zap.Logger
}

// New creates a simulator. The config is copied and defaulted.
func New(cfg model.BacktestConfig, strat strategy.Strategy, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		cfg:      cfg.WithDefaults(),
		strategy: strat,
		logger:   logger,
	}
}

// Run simulates symbol over bars starting from capital
func (s *Simulator) Run(ctx context.Context, symbol string, capital decimal.Decimal, bars []model.Bar) (*Result, error) {
	if err := s.validateBars(symbol, bars); err != nil {
		return nil, err
	}

	l := newLedger(symbol, capital)
	l.curve = make([]model.EquityPoint, 0, len(bars))
	lookback := s.strategy.Lookback()
	var pending *pendingOrder

	for i := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := bars[i]

		if pending != nil {
			s.execute(l, *pending, bar)
			pending = nil
		}

		pt := l.mark(bar.Timestamp, bar.Close)
		if err := l.check(pt, bar.Close); err != nil {
			return nil, err
		}
		l.curve = append(l.curve, pt)

		if i+1 < lookback {
			continue
		}
		sig := s.strategy.Signal(bars[: i+1 : i+1])
		if sig.Action == "" || sig.Action == model.ActionHold {
			continue
		}
		if i == len(bars)-1 {
			s.logger.Debug("Dropping signal on final bar",
				zap.String("symbol", symbol),
				zap.String("action", string(sig.Action)))
			continue
		}
		pending = &pendingOrder{signal: sig}
	}

	last := bars[len(bars)-1]
	if !l.position.Flat() {
		s.liquidate(l, last)
		pt := l.mark(last.Timestamp, last.Close)
		if err := l.check(pt, last.Close); err != nil {
			return nil, err
		}
		l.curve[len(l.curve)-1] = pt
	}

	return &Result{
		Symbol:         symbol,
		InitialCapital: capital,
		Trades:         l.trades,
		EquityCurve:    l.curve,
		FinalPosition:  l.position,
	}, nil
}

func (s *Simulator) validateBars(symbol string, bars []model.Bar) error {
	lookback := s.strategy.Lookback()
	if lookback < 1 {
		lookback = 1
	}
	if len(bars) < lookback {
		return &model.InsufficientDataError{Symbol: symbol, Required: lookback, Available: len(bars)}
	}
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return &model.InsufficientDataError{Symbol: symbol, Required: lookback, Available: len(bars), Reason: err.Error()}
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1].Timestamp
		if !b.Timestamp.After(prev) {
			return &model.InsufficientDataError{Symbol: symbol, Required: lookback, Available: len(bars),
				Reason: fmt.Sprintf("bars out of order at %s", b.Timestamp.Format(time.RFC3339))}
		}
		if s.cfg.MaxBarGap > 0 && b.Timestamp.Sub(prev) > s.cfg.MaxBarGap {
			return &model.InsufficientDataError{Symbol: symbol, Required: lookback, Available: len(bars),
				Reason: fmt.Sprintf("gap of %s before %s", b.Timestamp.Sub(prev), b.Timestamp.Format(time.RFC3339))}
		}
	}
	return nil
}

// execute turns a queued signal into zero, one or two fills on bar
func (s *Simulator) execute(l *ledger, o pendingOrder, bar model.Bar) {
	action := o.signal.Action
	if action == model.ActionEnterShort && !s.cfg.AllowShort {
		action = model.ActionExit
	}
	dir := l.direction()

	switch action {
	case model.ActionExit:
		if dir == 0 {
			return
		}
		qty := l.position.Quantity.Abs()
		if h := o.signal.SizeHint; h.IsPositive() && h.LessThan(one) {
			qty = qty.Mul(h).Truncate(s.cfg.QuantityPrecision)
			if qty.IsZero() {
				return
			}
		}
		s.reduce(l, o, -dir, qty, bar)

	case model.ActionEnterLong, model.ActionEnterShort:
		side := 1
		if action == model.ActionEnterShort {
			side = -1
		}
		if dir == side && !o.signal.SizeHint.IsPositive() {
			return
		}
		if dir == -side {
			if !s.reduce(l, o, side, l.position.Quantity.Abs(), bar) {
				return
			}
		}
		s.enter(l, o, side, bar)
	}
}

func closingType(side int) model.TradeType {
	if side > 0 {
		return model.TradeCover
	}
	return model.TradeSell
}

func openingType(side int) model.TradeType {
	if side > 0 {
		return model.TradeBuy
	}
	return model.TradeShort
}

// reduce shrinks the position by qty. Reductions are never rejected for funds.
func (s *Simulator) reduce(l *ledger, o pendingOrder, side int, qty decimal.Decimal, bar model.Bar) bool {
	ot := o.orderType()
	raw, ok := s.triggerPrice(o, side, bar)
	if !ok {
		l.expire(closingType(side), ot, bar.Timestamp)
		return false
	}
	price := s.slipped(raw, side, qty, bar, ot)
	commission := s.commission(qty, price)
	l.fill(side, qty, price, commission, price.Sub(raw).Abs().Mul(qty), bar.Timestamp, ot, false)
	return true
}

func (s *Simulator) enter(l *ledger, o pendingOrder, side int, bar model.Bar) {
	ot := o.orderType()
	tt := openingType(side)
	raw, ok := s.triggerPrice(o, side, bar)
	if !ok {
		l.expire(tt, ot, bar.Timestamp)
		return
	}

	equity := l.equityAt(raw)
	qty := s.quantityFor(raw, equity, o.signal.SizeHint)
	price := s.slipped(raw, side, qty, bar, ot)
	if !price.Equal(raw) {
		qty = s.quantityFor(price, equity, o.signal.SizeHint)
		price = s.slipped(raw, side, qty, bar, ot)
	}
	if !qty.IsPositive() {
		l.reject(tt, ot, qty, price, bar.Timestamp, "quantity rounds to zero")
		return
	}

	commission := s.commission(qty, price)
	notional := qty.Mul(price)
	if side > 0 {
		if l.cash.LessThan(notional.Add(commission)) {
			s.logger.Debug("Rejecting buy", zap.String("symbol", l.symbol), zap.String("qty", qty.String()))
			l.reject(tt, ot, qty, price, bar.Timestamp, model.ErrInsufficientFunds.Error())
			return
		}
	} else {
		exposure := l.position.Quantity.Abs().Add(qty).Mul(price)
		if l.equityAt(price).Sub(commission).LessThan(exposure) {
			s.logger.Debug("Rejecting short", zap.String("symbol", l.symbol), zap.String("qty", qty.String()))
			l.reject(tt, ot, qty, price, bar.Timestamp, model.ErrInsufficientFunds.Error())
			return
		}
	}

	l.fill(side, qty, price, commission, price.Sub(raw).Abs().Mul(qty), bar.Timestamp, ot, false)
}

// liquidate closes any open position at the final close with commission and no slippage
func (s *Simulator) liquidate(l *ledger, bar model.Bar) {
	side := -l.direction()
	qty := l.position.Quantity.Abs()
	commission := s.commission(qty, bar.Close)
	l.fill(side, qty, bar.Close, commission, decimal.Zero, bar.Timestamp, model.OrderMarket, true)
}
