package simulator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/backtest-service/internal/model"
)

var tolerance = decimal.New(1, -6)

// ledger owns the cash, position and trade log of one symbol's simulation
type ledger struct {
	symbol   string
	initial  decimal.Decimal
	cash     decimal.Decimal
	realized decimal.Decimal
	position model.Position
	trades   []model.Trade
	curve    []model.EquityPoint
}

func newLedger(symbol string, capital decimal.Decimal) *ledger {
	return &ledger{
		symbol:   symbol,
		initial:  capital,
		cash:     capital,
		position: model.Position{Symbol: symbol},
	}
}

func (l *ledger) direction() int {
	return l.position.Quantity.Sign()
}

func (l *ledger) equityAt(price decimal.Decimal) decimal.Decimal {
	return l.cash.Add(l.position.Quantity.Mul(price))
}

func (l *ledger) nextID() int {
	return len(l.trades) + 1
}

// fill applies an execution at price. side is +1 buy, -1 sell. qty is unsigned and must
// not cross zero: reversals are split into a closing and an opening call.
func (l *ledger) fill(side int, qty, price, commission, slippage decimal.Decimal, ts time.Time, ot model.OrderType, liquidation bool) model.Trade {
	signed := qty.Mul(decimal.NewFromInt(int64(side)))
	notional := qty.Mul(price)
	if side > 0 {
		l.cash = l.cash.Sub(notional).Sub(commission)
	} else {
		l.cash = l.cash.Add(notional).Sub(commission)
	}

	trade := model.Trade{
		ID:          l.nextID(),
		Symbol:      l.symbol,
		OrderType:   ot,
		Status:      model.TradeFilled,
		Quantity:    qty,
		Price:       price,
		Commission:  commission,
		Slippage:    slippage,
		Timestamp:   ts,
		RealizedPnL: decimal.Zero,
		Liquidation: liquidation,
	}

	dir := l.direction()
	if dir != 0 && dir != side {
		held := l.position.Quantity.Abs()
		alloc := l.position.EntryCommission
		if qty.LessThan(held) {
			alloc = l.position.EntryCommission.Mul(qty).Div(held)
		}
		pnl := price.Sub(l.position.AvgEntryPrice).Mul(qty).Mul(decimal.NewFromInt(int64(dir))).
			Sub(commission).Sub(alloc)

		opened := l.position.OpenedAt
		trade.EntryTime = &opened
		trade.RealizedPnL = pnl
		if dir > 0 {
			trade.Type = model.TradeSell
		} else {
			trade.Type = model.TradeCover
		}

		l.realized = l.realized.Add(pnl)
		l.position.RealizedPnL = l.position.RealizedPnL.Add(pnl)
		l.position.EntryCommission = l.position.EntryCommission.Sub(alloc)
		l.position.Quantity = l.position.Quantity.Add(signed)
		if l.position.Quantity.IsZero() {
			l.position.AvgEntryPrice = decimal.Zero
			l.position.EntryCommission = decimal.Zero
			l.position.UnrealizedPnL = decimal.Zero
			l.position.OpenedAt = time.Time{}
		}
	} else {
		held := l.position.Quantity.Abs()
		total := held.Add(qty)
		l.position.AvgEntryPrice = l.position.AvgEntryPrice.Mul(held).Add(notional).Div(total)
		l.position.EntryCommission = l.position.EntryCommission.Add(commission)
		l.position.Quantity = l.position.Quantity.Add(signed)
		if held.IsZero() {
			l.position.OpenedAt = ts
		}
		if side > 0 {
			trade.Type = model.TradeBuy
		} else {
			trade.Type = model.TradeShort
		}
	}

	l.trades = append(l.trades, trade)
	return trade
}

func (l *ledger) reject(tt model.TradeType, ot model.OrderType, qty, price decimal.Decimal, ts time.Time, reason string) {
	l.trades = append(l.trades, model.Trade{
		ID:           l.nextID(),
		Symbol:       l.symbol,
		Type:         tt,
		OrderType:    ot,
		Status:       model.TradeRejected,
		Quantity:     qty,
		Price:        price,
		Timestamp:    ts,
		RejectReason: reason,
	})
}

func (l *ledger) expire(tt model.TradeType, ot model.OrderType, ts time.Time) {
	l.trades = append(l.trades, model.Trade{
		ID:           l.nextID(),
		Symbol:       l.symbol,
		Type:         tt,
		OrderType:    ot,
		Status:       model.TradeExpired,
		Timestamp:    ts,
		RejectReason: "order not triggered",
	})
}

// mark values the position at close and returns the resulting equity point
func (l *ledger) mark(ts time.Time, close decimal.Decimal) model.EquityPoint {
	value := l.position.Quantity.Mul(close)
	l.position.UnrealizedPnL = close.Sub(l.position.AvgEntryPrice).Mul(l.position.Quantity)
	return model.EquityPoint{
		Timestamp:     ts,
		Cash:          l.cash,
		PositionValue: value,
		Equity:        l.cash.Add(value),
		RealizedPnL:   l.realized,
		UnrealizedPnL: l.position.UnrealizedPnL,
	}
}

// check verifies the accounting identities after a mark
func (l *ledger) check(pt model.EquityPoint, close decimal.Decimal) error {
	fault := func(format string, args ...interface{}) error {
		return &model.SimulationFault{Symbol: l.symbol, Timestamp: pt.Timestamp, Reason: fmt.Sprintf(format, args...)}
	}

	if !pt.Equity.Equal(l.cash.Add(l.position.Quantity.Mul(close))) {
		return fault("equity %s != cash %s + position value", pt.Equity, l.cash)
	}
	pnl := l.realized.Add(pt.UnrealizedPnL).Sub(l.position.EntryCommission)
	if diff := pt.Equity.Sub(l.initial).Sub(pnl).Abs(); diff.GreaterThan(tolerance) {
		return fault("equity change %s does not reconcile with P&L %s", pt.Equity.Sub(l.initial), pnl)
	}
	if l.position.Flat() && (!l.position.AvgEntryPrice.IsZero() || !l.position.EntryCommission.IsZero()) {
		return fault("flat position carries cost basis")
	}
	if !l.position.Flat() && !l.position.AvgEntryPrice.IsPositive() {
		return fault("open position with non-positive average price %s", l.position.AvgEntryPrice)
	}
	return nil
}
