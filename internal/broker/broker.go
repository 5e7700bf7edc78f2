// Package broker defines the Broker facade that strategies and the HTTP API
// talk to, and the SimulatorBroker that backs it with the replay engine.
package broker

import (
	"context"

	"barsim/internal/domain"
	"barsim/internal/feed"
)

// Broker abstracts brokerage operations for order execution, account
// queries and historical data subscriptions.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// PlaceOrder submits a new order and returns it acknowledged.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)

	// CancelOrder cancels a live order by id.
	CancelOrder(ctx context.Context, orderID int64) (domain.Order, error)

	// ModifyOrder amends a live order. The simulator never supports it.
	ModifyOrder(ctx context.Context, orderID int64, req domain.OrderRequest) error

	// RequestHistoricalBars preloads the requested window and returns a
	// stream that yields the remaining bars one at a time.
	RequestHistoricalBars(ctx context.Context, req feed.HistoricalRequest) (*BarStream, error)

	// ContractDetails returns the instrument metadata for symbol.
	ContractDetails(ctx context.Context, symbol string) (domain.Instrument, error)

	// GetPositions returns all non-flat positions.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (domain.AccountInfo, error)

	// GetOpenOrders returns live orders in ascending id order.
	GetOpenOrders(ctx context.Context) ([]domain.Order, error)

	// GetCompletedOrders returns filled and cancelled orders.
	GetCompletedOrders(ctx context.Context) ([]domain.Order, error)

	// GetExecutions returns every fill with its commission report.
	GetExecutions(ctx context.Context) ([]ExecutionReport, error)
}

// ExecutionReport pairs an execution with its commission report.
type ExecutionReport struct {
	Execution  domain.Execution        `json:"execution"`
	Commission domain.CommissionReport `json:"commission"`
}
