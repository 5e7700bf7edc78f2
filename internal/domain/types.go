// Package domain defines the core value types shared across the barsim
// packages: bars, orders, positions, executions, account snapshots,
// instrument metadata, strategy signals, and trade-ledger rows.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one OHLCV sample for a fixed time interval. Bars are immutable once
// produced by a feed.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	Count     int64           `json:"count"` // sequence number within the source series
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order or execution.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() int64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus is a state in the order lifecycle:
//
//	PendingSubmit -> Submitted -> {Filled, Cancelled}
type OrderStatus string

const (
	OrderStatusPendingSubmit OrderStatus = "pending_submit"
	OrderStatusSubmitted     OrderStatus = "submitted"
	OrderStatusFilled        OrderStatus = "filled"
	OrderStatusCancelled     OrderStatus = "cancelled"
)

// Terminal reports whether no further transition can leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// OrderRequest carries the caller-supplied terms of a new order.
type OrderRequest struct {
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Type       OrderType       `json:"type"`
	Qty        int64           `json:"qty"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	StopPrice  decimal.Decimal `json:"stop_price"`
}

// Order is an order known to the simulator.
type Order struct {
	ID         int64           `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Type       OrderType       `json:"type"`
	Qty        int64           `json:"qty"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	StopPrice  decimal.Decimal `json:"stop_price"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	FilledAt   time.Time       `json:"filled_at"`
}

// ---------------------------------------------------------------------------
// Positions, executions, account
// ---------------------------------------------------------------------------

// Position is the net holding in one instrument. AvgCost is valid exactly
// when Qty is non-zero.
type Position struct {
	Symbol        string              `json:"symbol"`
	Qty           int64               `json:"qty"` // positive long, negative short
	AvgCost       decimal.NullDecimal `json:"avg_cost"`
	MarketPrice   decimal.Decimal     `json:"market_price"`
	UnrealizedPnL decimal.Decimal     `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal     `json:"realized_pnl"`
}

// Flat reports whether the position holds nothing.
func (p Position) Flat() bool { return p.Qty == 0 }

// Execution is an immutable record of one fill.
type Execution struct {
	ID      int64           `json:"id"`
	OrderID int64           `json:"order_id"`
	Symbol  string          `json:"symbol"`
	Side    OrderSide       `json:"side"`
	Qty     int64           `json:"qty"`
	Price   decimal.Decimal `json:"price"`
	Time    time.Time       `json:"time"`
}

// CommissionReport accompanies every Execution.
type CommissionReport struct {
	ExecID      int64           `json:"exec_id"`
	Commission  decimal.Decimal `json:"commission"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// AccountInfo is a snapshot of the single simulated account. Only Cash,
// RealizedPnL and Commissions are ledger state; the rest is derived.
type AccountInfo struct {
	InitialCash    decimal.Decimal `json:"initial_cash"`
	Cash           decimal.Decimal `json:"cash"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	Commissions    decimal.Decimal `json:"commissions"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	Equity         decimal.Decimal `json:"equity"`
	MarginUsed     decimal.Decimal `json:"margin_used"`
	AvailableFunds decimal.Decimal `json:"available_funds"`
}

// ---------------------------------------------------------------------------
// Instrument metadata
// ---------------------------------------------------------------------------

// Instrument holds the contract metadata the engine needs. It is loaded once
// before a run and treated as immutable.
type Instrument struct {
	Symbol       string          `json:"symbol"`
	ConID        int64           `json:"con_id"`
	SecType      string          `json:"sec_type"`
	Exchange     string          `json:"exchange"`
	Currency     string          `json:"currency"`
	TradingClass string          `json:"trading_class"`
	LongName     string          `json:"long_name"`
	TimeZone     string          `json:"time_zone"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Commission   decimal.Decimal `json:"commission"` // per contract
	InitMargin   decimal.Decimal `json:"init_margin"`
	MinTick      decimal.Decimal `json:"min_tick"`
	DataFile     string          `json:"data_file"`
}

// ---------------------------------------------------------------------------
// Strategy output and reporting
// ---------------------------------------------------------------------------

// SignalType is a trading intent produced by a strategy.
type SignalType string

const (
	SignalTypeBuy   SignalType = "buy"   // open or add long
	SignalTypeSell  SignalType = "sell"  // close long
	SignalTypeShort SignalType = "short" // open or add short
	SignalTypeCover SignalType = "cover" // close short
)

// Side maps a signal to the order side that executes it.
func (t SignalType) Side() OrderSide {
	switch t {
	case SignalTypeSell, SignalTypeShort:
		return OrderSideSell
	default:
		return OrderSideBuy
	}
}

// Signal is emitted by a strategy and turned into an order by the backtester.
type Signal struct {
	ID         int64             `json:"id"`
	StrategyID string            `json:"strategy_id"`
	Symbol     string            `json:"symbol"`
	Type       SignalType        `json:"type"`
	Qty        int64             `json:"qty"`
	OrderType  OrderType         `json:"order_type"`
	LimitPrice decimal.Decimal   `json:"limit_price"`
	StopPrice  decimal.Decimal   `json:"stop_price"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Direction of a round-trip trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeRecord is one row of the trade ledger: a lot from entry to exit.
type TradeRecord struct {
	Ticker     string          `json:"ticker"`
	Direction  Direction       `json:"direction"`
	Qty        int64           `json:"qty"`
	EntryTime  time.Time       `json:"entry_time"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitTime   time.Time       `json:"exit_time"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	BarsHeld   int             `json:"bars_held"`
	Profit     decimal.Decimal `json:"profit"` // net of allocated commission
}

// Closed reports whether the lot has been exited.
func (t TradeRecord) Closed() bool { return !t.ExitTime.IsZero() }
