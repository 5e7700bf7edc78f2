// Package stats turns the execution stream of a run into a trade ledger of
// round-trip lots and computes performance metrics over it.
package stats

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
	"barsim/internal/engine"
	"barsim/internal/instrument"
)

var _ engine.Observer = (*Ledger)(nil)

type lot struct {
	rec      domain.TradeRecord
	entryFee decimal.Decimal // commission per contract paid on entry
	entryBar int
}

// Ledger matches executions FIFO into lots. A fill in the direction of the
// open lots (or from flat) opens a lot; an opposite fill closes lots oldest
// first, splitting the last one when needed, and any excess opens a lot in
// the new direction. Commission is allocated per contract to both legs.
//
// OnBar must be called once per bar after the engine has processed it, so
// that executions are attributed to the bar that produced them.
type Ledger struct {
	mu      sync.Mutex
	catalog *instrument.Catalog
	bars    map[string]int
	open    map[string][]*lot
	closed  []domain.TradeRecord
}

// NewLedger creates an empty ledger. Profit uses the catalog multipliers;
// a nil catalog means a multiplier of 1.
func NewLedger(catalog *instrument.Catalog) *Ledger {
	return &Ledger{
		catalog: catalog,
		bars:    make(map[string]int),
		open:    make(map[string][]*lot),
	}
}

// OnOrderStatus implements engine.Observer.
func (l *Ledger) OnOrderStatus(domain.Order) {}

// OnBar advances the bar counter of bar's symbol.
func (l *Ledger) OnBar(bar domain.Bar) {
	l.mu.Lock()
	l.bars[bar.Symbol]++
	l.mu.Unlock()
}

// OnExecution implements engine.Observer.
func (l *Ledger) OnExecution(exec domain.Execution, report domain.CommissionReport) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mult := decimal.NewFromInt(1)
	if l.catalog != nil {
		if inst, err := l.catalog.Lookup(exec.Symbol); err == nil {
			mult = inst.Multiplier
		}
	}
	fee := decimal.Zero
	if exec.Qty > 0 {
		fee = report.Commission.Div(decimal.NewFromInt(exec.Qty))
	}
	dir := domain.DirectionLong
	if exec.Side == domain.OrderSideSell {
		dir = domain.DirectionShort
	}
	idx := l.bars[exec.Symbol]
	remaining := exec.Qty

	lots := l.open[exec.Symbol]
	for remaining > 0 && len(lots) > 0 && lots[0].rec.Direction != dir {
		head := lots[0]
		n := min(remaining, head.rec.Qty)

		rec := head.rec
		rec.Qty = n
		rec.ExitTime = exec.Time
		rec.ExitPrice = exec.Price
		rec.BarsHeld = idx - head.entryBar
		gross := exec.Price.Sub(rec.EntryPrice).Mul(decimal.NewFromInt(n)).Mul(mult)
		if rec.Direction == domain.DirectionShort {
			gross = gross.Neg()
		}
		fees := head.entryFee.Add(fee).Mul(decimal.NewFromInt(n))
		rec.Profit = gross.Sub(fees)
		l.closed = append(l.closed, rec)

		head.rec.Qty -= n
		remaining -= n
		if head.rec.Qty == 0 {
			lots = lots[1:]
		}
	}
	if remaining > 0 {
		lots = append(lots, &lot{
			rec: domain.TradeRecord{
				Ticker:     exec.Symbol,
				Direction:  dir,
				Qty:        remaining,
				EntryTime:  exec.Time,
				EntryPrice: exec.Price,
			},
			entryFee: fee,
			entryBar: idx,
		})
	}
	l.open[exec.Symbol] = lots
}

// Trades returns closed lots in the order they were closed.
func (l *Ledger) Trades() []domain.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.TradeRecord, len(l.closed))
	copy(out, l.closed)
	return out
}

// OpenTrades returns lots that are still open, by symbol then entry.
func (l *Ledger) OpenTrades() []domain.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	symbols := make([]string, 0, len(l.open))
	for s := range l.open {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var out []domain.TradeRecord
	for _, s := range symbols {
		for _, lt := range l.open[s] {
			out = append(out, lt.rec)
		}
	}
	return out
}
