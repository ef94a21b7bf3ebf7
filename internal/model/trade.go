package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalAction is what a strategy asks for on a bar
type SignalAction string

const (
	ActionHold       SignalAction = "hold"
	ActionEnterLong  SignalAction = "enter_long"
	ActionEnterShort SignalAction = "enter_short"
	ActionExit       SignalAction = "exit"
)

// OrderType controls how a queued order is filled on the next bar
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// Signal is produced by a strategy after seeing bars up to and including the current one.
// SizeHint is optional: on entries it overrides the sizing policy value, on exits a value
// in (0,1) closes that fraction of the position.
type Signal struct {
	Action     SignalAction    `json:"action"`
	OrderType  OrderType       `json:"order_type,omitempty"`
	LimitPrice decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice  decimal.Decimal `json:"stop_price,omitempty"`
	SizeHint   decimal.Decimal `json:"size_hint,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Hold is the zero-action signal
func Hold() Signal { return Signal{Action: ActionHold} }

// TradeType is the direction of a fill
type TradeType string

const (
	TradeBuy   TradeType = "buy"
	TradeSell  TradeType = "sell"
	TradeShort TradeType = "short"
	TradeCover TradeType = "cover"
)

// TradeStatus records the outcome of an order
type TradeStatus string

const (
	TradeFilled   TradeStatus = "filled"
	TradeRejected TradeStatus = "rejected"
	TradeExpired  TradeStatus = "expired"
)

// Trade is a single simulated fill, or a rejected/expired order
type Trade struct {
	ID           int             `json:"id"`
	Symbol       string          `json:"symbol"`
	Type         TradeType       `json:"type"`
	OrderType    OrderType       `json:"order_type"`
	Status       TradeStatus     `json:"status"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Commission   decimal.Decimal `json:"commission"`
	Slippage     decimal.Decimal `json:"slippage"`
	Timestamp    time.Time       `json:"timestamp"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	EntryTime    *time.Time      `json:"entry_time,omitempty"`
	Liquidation  bool            `json:"liquidation,omitempty"`
	RejectReason string          `json:"reject_reason,omitempty"`
}

// Closing reports whether the fill reduced an existing position
func (t Trade) Closing() bool {
	return t.Status == TradeFilled && (t.Type == TradeSell || t.Type == TradeCover)
}

// Holding returns how long the closed position was open, zero for opening fills
func (t Trade) Holding() time.Duration {
	if t.EntryTime == nil {
		return 0
	}
	return t.Timestamp.Sub(*t.EntryTime)
}

// Position is the open exposure in a symbol. Quantity is signed: negative for shorts.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	OpenedAt      time.Time       `json:"opened_at"`
	// EntryCommission is fees paid on opening fills not yet charged against realized P&L
	EntryCommission decimal.Decimal `json:"entry_commission"`
}

// Flat reports whether there is no open exposure
func (p Position) Flat() bool { return p.Quantity.IsZero() }

// EquityPoint is the mark-to-market state after one bar
type EquityPoint struct {
	Timestamp     time.Time       `json:"timestamp"`
	Cash          decimal.Decimal `json:"cash"`
	PositionValue decimal.Decimal `json:"position_value"`
	Equity        decimal.Decimal `json:"equity"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}
