// Package store persists bars, trade ledgers and run journals. Bars live in
// Parquet files or a SQLite table; completed runs are journaled to SQLite and
// their trade ledgers written as Parquet.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, replacing any with the same
	// symbol and timestamp.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end], oldest first.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// TradeLedgerStore persists the closed trades of a run.
type TradeLedgerStore interface {
	WriteTrades(ctx context.Context, runID string, trades []domain.TradeRecord) error
	ReadTrades(ctx context.Context, runID string) ([]domain.TradeRecord, error)
}

// RunRecord is the journal header of one backtest run.
type RunRecord struct {
	ID          string
	Strategy    string
	Symbol      string
	InitialCash decimal.Decimal
	Equity      decimal.Decimal
	TotalReturn float64
	Trades      int
	Bars        int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ExecutionRecord is one journaled fill with its commission and the
// notional value it moved (qty * price * multiplier).
type ExecutionRecord struct {
	RunID       string
	Execution   domain.Execution
	Commission  decimal.Decimal
	RealizedPnL decimal.Decimal
	Multiplier  decimal.Decimal
	MarketValue decimal.Decimal
}

// Journal records backtest runs together with their orders, executions and
// signals.
type Journal interface {
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	SaveOrder(ctx context.Context, runID string, o domain.Order) error
	ListOrders(ctx context.Context, runID string) ([]domain.Order, error)

	SaveExecution(ctx context.Context, rec ExecutionRecord) error
	ListExecutions(ctx context.Context, runID string) ([]ExecutionRecord, error)

	SaveSignal(ctx context.Context, runID string, s domain.Signal) error
	ListSignals(ctx context.Context, runID string, limit int) ([]domain.Signal, error)
}
