// Package engine is the deterministic core of the simulator. It owns the
// order registry, matches working orders against each incoming bar, books
// fills into positions and the account ledger, and reports executions.
//
// An Engine is not safe for concurrent use; callers that share one across
// goroutines must serialise access themselves.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
	"barsim/internal/instrument"
)

// Config seeds a new Engine.
type Config struct {
	InitialCash  decimal.Decimal
	MarketFill   MarketFill
	OrderIDStart int64
	ExecIDStart  int64
}

// DefaultConfig returns a 100,000 account that fills market orders at the
// next bar's open.
func DefaultConfig() Config {
	return Config{
		InitialCash:  decimal.NewFromInt(100_000),
		MarketFill:   MarketFillOpen,
		OrderIDStart: 1,
		ExecIDStart:  DefaultExecIDStart,
	}
}

// Fill is everything produced by one order executing on a bar.
type Fill struct {
	Order     domain.Order
	Execution domain.Execution
	Report    domain.CommissionReport
	Position  domain.Position
}

// Observer receives engine events synchronously, in the order they occur.
type Observer interface {
	OnOrderStatus(o domain.Order)
	OnExecution(exec domain.Execution, report domain.CommissionReport)
}

// Option customises an Engine.
type Option func(*Engine)

// WithRiskManager installs pre-trade risk checks.
func WithRiskManager(rm *RiskManager) Option {
	return func(e *Engine) { e.risk = rm }
}

// WithLogger sets the logger used for fill and rejection messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine replays bars against a single simulated account.
type Engine struct {
	catalog   *instrument.Catalog
	registry  *Registry
	matcher   *Matcher
	positions *PositionLedger
	account   *Account
	reporter  *Reporter
	risk      *RiskManager
	log       *slog.Logger

	clock     time.Time
	lastBar   map[string]domain.Bar
	observers []Observer
}

// New creates an Engine. The catalog must contain every symbol that will be
// traded or fed.
func New(cfg Config, catalog *instrument.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:   catalog,
		registry:  NewRegistry(cfg.OrderIDStart),
		matcher:   NewMatcher(cfg.MarketFill),
		positions: NewPositionLedger(),
		account:   NewAccount(cfg.InitialCash),
		reporter:  NewReporter(cfg.ExecIDStart),
		log:       slog.Default(),
		lastBar:   make(map[string]domain.Bar),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers o for order-status and execution events.
func (e *Engine) Subscribe(o Observer) {
	e.observers = append(e.observers, o)
}

// Submit places a new order. It is acknowledged immediately and becomes
// eligible to match from the next bar onwards.
func (e *Engine) Submit(req domain.OrderRequest) (domain.Order, error) {
	inst, err := e.catalog.Lookup(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}
	req.Symbol = inst.Symbol
	if err := ValidateRequest(req); err != nil {
		return domain.Order{}, err
	}
	if e.risk != nil {
		if err := e.risk.CheckOrder(req, inst, e.positions.Get(inst.Symbol), e.Account(), e.clock); err != nil {
			e.log.Warn("order rejected", "symbol", req.Symbol, "side", req.Side, "qty", req.Qty, "error", err)
			return domain.Order{}, err
		}
	}

	pending, err := e.registry.Submit(req, e.clock)
	if err != nil {
		return domain.Order{}, err
	}
	e.notifyStatus(pending)

	acked, err := e.registry.Acknowledge(pending.ID, e.clock)
	if err != nil {
		return domain.Order{}, err
	}
	e.notifyStatus(acked)
	return acked, nil
}

// Cancel cancels a live order.
func (e *Engine) Cancel(id int64) (domain.Order, error) {
	o, err := e.registry.Cancel(id, e.clock)
	if err != nil {
		return domain.Order{}, err
	}
	e.notifyStatus(o)
	return o, nil
}

// Modify is not supported for live orders.
func (e *Engine) Modify(id int64, req domain.OrderRequest) error {
	return e.registry.Modify(id, req)
}

// OnBar advances the clock to bar and fills every working order for the
// bar's symbol whose condition the bar satisfies, in ascending order id.
// Positions in the symbol are then marked to the bar close. A bar whose
// timestamp does not strictly follow the previous bar of the same symbol is
// rejected with domain.ErrFeedOrder and leaves the engine unchanged.
func (e *Engine) OnBar(bar domain.Bar) ([]Fill, error) {
	inst, err := e.catalog.Lookup(bar.Symbol)
	if err != nil {
		return nil, err
	}
	bar.Symbol = inst.Symbol
	if prev, ok := e.lastBar[bar.Symbol]; ok && !bar.Timestamp.After(prev.Timestamp) {
		return nil, fmt.Errorf("%w: %s bar at %s does not follow %s",
			domain.ErrFeedOrder, bar.Symbol, bar.Timestamp.Format(time.RFC3339), prev.Timestamp.Format(time.RFC3339))
	}
	e.lastBar[bar.Symbol] = bar
	if bar.Timestamp.After(e.clock) {
		e.clock = bar.Timestamp
	}

	var fills []Fill
	for _, m := range e.matcher.Match(bar, e.registry.Working(bar.Symbol)) {
		order, ok := e.registry.fill(m.Order.ID, m.Price, bar.Timestamp)
		if !ok {
			continue
		}
		pos, realized := e.positions.Apply(inst, order.Side, order.Qty, m.Price)
		pos = Mark(pos, bar.Close, inst.Multiplier)
		exec, report := e.reporter.Record(order, inst, m.Price, order.Qty, realized, bar.Timestamp)
		e.account.Apply(realized, report.Commission)
		if e.risk != nil {
			e.risk.RecordFill(bar.Timestamp, realized.Sub(report.Commission))
		}

		e.log.Debug("order filled",
			"order_id", order.ID,
			"symbol", order.Symbol,
			"side", order.Side,
			"qty", order.Qty,
			"price", m.Price.String(),
			"realized", realized.String(),
		)
		e.notifyStatus(order)
		e.notifyExecution(exec, report)
		fills = append(fills, Fill{Order: order, Execution: exec, Report: report, Position: pos})
	}

	return fills, nil
}

// Now returns the timestamp of the latest bar seen.
func (e *Engine) Now() time.Time { return e.clock }

// LastBar returns the latest bar seen for symbol.
func (e *Engine) LastBar(symbol string) (domain.Bar, bool) {
	b, ok := e.lastBar[symbol]
	return b, ok
}

// Position returns the position in symbol marked to its latest close;
// untraded symbols are flat.
func (e *Engine) Position(symbol string) domain.Position {
	if inst, err := e.catalog.Lookup(symbol); err == nil {
		symbol = inst.Symbol
	}
	return e.mark(e.positions.Get(symbol))
}

// Positions returns all non-flat positions sorted by symbol, marked to
// their latest closes.
func (e *Engine) Positions() []domain.Position {
	open := e.positions.Open()
	for i := range open {
		open[i] = e.mark(open[i])
	}
	return open
}

// Account returns an account snapshot. Unrealised P&L is recomputed from
// the open positions and each symbol's latest close.
func (e *Engine) Account() domain.AccountInfo {
	unrealized := decimal.Zero
	for _, pos := range e.positions.Open() {
		unrealized = unrealized.Add(e.mark(pos).UnrealizedPnL)
	}
	return e.account.Snapshot(unrealized, e.positions.MarginUsed())
}

// mark values pos at the latest close of its symbol. Without a bar the
// position is returned unmarked.
func (e *Engine) mark(pos domain.Position) domain.Position {
	bar, ok := e.lastBar[pos.Symbol]
	if !ok {
		return pos
	}
	inst, err := e.catalog.Lookup(pos.Symbol)
	if err != nil {
		return pos
	}
	return Mark(pos, bar.Close, inst.Multiplier)
}

// Order returns the order with the given id.
func (e *Engine) Order(id int64) (domain.Order, bool) {
	return e.registry.Get(id)
}

// OpenOrders returns live orders in ascending id order.
func (e *Engine) OpenOrders() []domain.Order { return e.registry.Open() }

// CompletedOrders returns filled and cancelled orders.
func (e *Engine) CompletedOrders() []domain.Order { return e.registry.History() }

// Executions returns every execution of the run.
func (e *Engine) Executions() []domain.Execution { return e.reporter.Executions() }

// CommissionReports returns the commission reports paired with Executions.
func (e *Engine) CommissionReports() []domain.CommissionReport {
	return e.reporter.CommissionReports()
}

func (e *Engine) notifyStatus(o domain.Order) {
	for _, obs := range e.observers {
		obs.OnOrderStatus(o)
	}
}

func (e *Engine) notifyExecution(exec domain.Execution, report domain.CommissionReport) {
	for _, obs := range e.observers {
		obs.OnExecution(exec, report)
	}
}
