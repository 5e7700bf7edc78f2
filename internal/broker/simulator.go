package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"barsim/internal/domain"
	"barsim/internal/engine"
	"barsim/internal/feed"
	"barsim/internal/instrument"
	"barsim/internal/util"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorOption customises a SimulatorBroker.
type SimulatorOption func(*SimulatorBroker)

// WithCalendar sets the session calendar used for UseRTH requests.
func WithCalendar(cal *util.TradingCalendar) SimulatorOption {
	return func(b *SimulatorBroker) { b.calendar = cal }
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) SimulatorOption {
	return func(b *SimulatorBroker) { b.log = l }
}

// SimulatorBroker implements Broker on top of a replay engine. It is the
// only concurrency boundary around the engine: the replay loop writes
// through bar streams while API handlers read concurrently.
type SimulatorBroker struct {
	mu       sync.RWMutex
	eng      *engine.Engine
	catalog  *instrument.Catalog
	source   BarSource
	calendar *util.TradingCalendar
	log      *slog.Logger
}

// NewSimulatorBroker wraps eng. source supplies bars for historical
// requests; catalog must be the one eng was built with.
func NewSimulatorBroker(eng *engine.Engine, catalog *instrument.Catalog, source BarSource, opts ...SimulatorOption) *SimulatorBroker {
	b := &SimulatorBroker{
		eng:     eng,
		catalog: catalog,
		source:  source,
		log:     slog.Default().With("broker", "simulator"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Subscribe registers an engine observer. Observers run while the broker
// lock is held and must not call back into the broker.
func (b *SimulatorBroker) Subscribe(o engine.Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eng.Subscribe(o)
}

// PlaceOrder submits req to the engine.
func (b *SimulatorBroker) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, err := b.eng.Submit(req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("placing %s %d %s: %w", req.Side, req.Qty, req.Symbol, err)
	}
	b.log.Info("order placed", "order_id", o.ID, "symbol", o.Symbol, "side", o.Side, "type", o.Type, "qty", o.Qty)
	return o, nil
}

// CancelOrder cancels a live order.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID int64) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, err := b.eng.Cancel(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	b.log.Info("order cancelled", "order_id", o.ID, "symbol", o.Symbol)
	return o, nil
}

// ModifyOrder always fails: domain.ErrUnsupported for live orders,
// domain.ErrInvalidState for terminal ones.
func (b *SimulatorBroker) ModifyOrder(_ context.Context, orderID int64, req domain.OrderRequest) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eng.Modify(orderID, req)
}

// ContractDetails returns catalog metadata for symbol.
func (b *SimulatorBroker) ContractDetails(_ context.Context, symbol string) (domain.Instrument, error) {
	return b.catalog.Lookup(symbol)
}

// GetPositions returns all non-flat positions.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eng.Positions(), nil
}

// GetAccount returns the current account snapshot.
func (b *SimulatorBroker) GetAccount(_ context.Context) (domain.AccountInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eng.Account(), nil
}

// GetOpenOrders returns live orders.
func (b *SimulatorBroker) GetOpenOrders(_ context.Context) ([]domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eng.OpenOrders(), nil
}

// GetCompletedOrders returns terminal orders.
func (b *SimulatorBroker) GetCompletedOrders(_ context.Context) ([]domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eng.CompletedOrders(), nil
}

// GetExecutions returns all executions with their commission reports.
func (b *SimulatorBroker) GetExecutions(_ context.Context) ([]ExecutionReport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	execs := b.eng.Executions()
	reports := b.eng.CommissionReports()
	out := make([]ExecutionReport, len(execs))
	for i := range execs {
		out[i] = ExecutionReport{Execution: execs[i], Commission: reports[i]}
	}
	return out, nil
}

// Position returns the position in symbol, flat if never traded.
func (b *SimulatorBroker) Position(symbol string) domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.eng.Position(symbol)
}

// RequestHistoricalBars loads the instrument's bars, drops bars outside the
// regular session when UseRTH is set, resamples the rest to the requested
// bar size in the instrument's time zone, applies the preload window to the engine and returns
// a stream over the rest. Without KeepUpToDate the stream ends after the
// preload.
func (b *SimulatorBroker) RequestHistoricalBars(ctx context.Context, req feed.HistoricalRequest) (*BarStream, error) {
	inst, err := b.catalog.Lookup(req.Symbol)
	if err != nil {
		return nil, err
	}
	window, err := feed.ParseDuration(req.Duration)
	if err != nil {
		return nil, err
	}
	size, err := feed.ParseBarSize(req.BarSize)
	if err != nil {
		return nil, err
	}

	bars, err := b.source.LoadBars(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("loading bars for %s: %w", inst.Symbol, err)
	}
	if err := feed.CheckOrder(bars); err != nil {
		return nil, err
	}
	if req.UseRTH {
		cal, err := b.rthCalendar()
		if err != nil {
			return nil, err
		}
		bars, err = feed.Collect(ctx, feed.Filter(feed.NewSliceFeed(bars), func(bar domain.Bar) bool {
			return cal.IsMarketOpen(bar.Timestamp)
		}))
		if err != nil {
			return nil, err
		}
	}
	loc, err := b.barLocation(inst)
	if err != nil {
		return nil, err
	}
	bars = feed.Resample(bars, size, loc)

	preload, rest := feed.SplitWindow(bars, window)
	if err := b.apply(preload); err != nil {
		return nil, err
	}
	b.log.Info("historical bars loaded",
		"symbol", inst.Symbol,
		"duration", req.Duration,
		"bar_size", req.BarSize,
		"preload", len(preload),
		"pending", len(rest),
	)

	s := &BarStream{broker: b, symbol: inst.Symbol, preload: preload}
	if req.KeepUpToDate {
		s.live = feed.NewSliceFeed(rest)
	}
	return s, nil
}

func (b *SimulatorBroker) rthCalendar() (*util.TradingCalendar, error) {
	if b.calendar != nil {
		return b.calendar, nil
	}
	return util.USRegularHours()
}

// barLocation is the zone bar buckets align to: the instrument's own zone,
// else the session calendar's, else UTC.
func (b *SimulatorBroker) barLocation(inst domain.Instrument) (*time.Location, error) {
	if inst.TimeZone != "" {
		loc, err := time.LoadLocation(inst.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("%s time zone: %w", inst.Symbol, err)
		}
		return loc, nil
	}
	if b.calendar != nil {
		return b.calendar.Location(), nil
	}
	return time.UTC, nil
}

func (b *SimulatorBroker) apply(bars []domain.Bar) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bar := range bars {
		if _, err := b.eng.OnBar(bar); err != nil {
			return err
		}
	}
	return nil
}

func (b *SimulatorBroker) step(bar domain.Bar) ([]engine.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eng.OnBar(bar)
}
