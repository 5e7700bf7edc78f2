package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// ApplyFill returns pos after a fill of qty contracts at price on side,
// together with the P&L realised by the fill. It covers five cases:
//
//	flat      -> open        avg = price
//	same sign -> add         avg = weighted average
//	opposite, |fill| < |pos| avg unchanged, realise the closed part
//	opposite, |fill| = |pos| flat, avg cleared
//	opposite, |fill| > |pos| reverse, avg = price for the remainder
//
// Realised P&L for the closed part is closed * (price - avg) * sign(pos) *
// multiplier. A non-positive qty leaves pos unchanged.
func ApplyFill(pos domain.Position, side domain.OrderSide, qty int64, price, multiplier decimal.Decimal) (domain.Position, decimal.Decimal) {
	if qty <= 0 {
		return pos, decimal.Zero
	}
	cur := pos.Qty
	delta := qty * side.Sign()
	next := cur + delta
	realized := decimal.Zero

	switch {
	case cur == 0:
		pos.AvgCost = decimal.NewNullDecimal(price)
	case sameSign(cur, delta):
		cost := pos.AvgCost.Decimal.Mul(decimal.NewFromInt(cur)).
			Add(price.Mul(decimal.NewFromInt(delta)))
		pos.AvgCost = decimal.NewNullDecimal(cost.Div(decimal.NewFromInt(next)))
	default:
		closed := min(abs(cur), abs(delta))
		realized = price.Sub(pos.AvgCost.Decimal).
			Mul(decimal.NewFromInt(closed * sign(cur))).
			Mul(multiplier)
		switch {
		case next == 0:
			pos.AvgCost = decimal.NullDecimal{}
		case sameSign(cur, next):
			// partial reduce keeps the basis
		default:
			pos.AvgCost = decimal.NewNullDecimal(price)
		}
	}

	pos.Qty = next
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	return pos, realized
}

// Mark revalues pos at price. Flat positions carry no unrealised P&L.
func Mark(pos domain.Position, price, multiplier decimal.Decimal) domain.Position {
	pos.MarketPrice = price
	if pos.Qty == 0 || !pos.AvgCost.Valid {
		pos.UnrealizedPnL = decimal.Zero
		return pos
	}
	pos.UnrealizedPnL = price.Sub(pos.AvgCost.Decimal).
		Mul(decimal.NewFromInt(pos.Qty)).
		Mul(multiplier)
	return pos
}

type ledgerEntry struct {
	pos  domain.Position
	inst domain.Instrument
}

// PositionLedger holds quantity, average cost and realised P&L per traded
// symbol. Market price and unrealised P&L are not stored; callers derive
// them with Mark from the latest bar.
type PositionLedger struct {
	entries map[string]*ledgerEntry
}

// NewPositionLedger returns an empty ledger.
func NewPositionLedger() *PositionLedger {
	return &PositionLedger{entries: make(map[string]*ledgerEntry)}
}

func (l *PositionLedger) entry(inst domain.Instrument) *ledgerEntry {
	e, ok := l.entries[inst.Symbol]
	if !ok {
		e = &ledgerEntry{pos: domain.Position{Symbol: inst.Symbol}, inst: inst}
		l.entries[inst.Symbol] = e
	}
	return e
}

// Apply books a fill and returns the unmarked position with the realised
// P&L.
func (l *PositionLedger) Apply(inst domain.Instrument, side domain.OrderSide, qty int64, price decimal.Decimal) (domain.Position, decimal.Decimal) {
	e := l.entry(inst)
	pos, realized := ApplyFill(e.pos, side, qty, price, inst.Multiplier)
	e.pos = pos
	return e.pos, realized
}

// Get returns the position for symbol; unknown symbols are flat.
func (l *PositionLedger) Get(symbol string) domain.Position {
	if e, ok := l.entries[symbol]; ok {
		return e.pos
	}
	return domain.Position{Symbol: symbol}
}

// Open returns non-flat positions sorted by symbol.
func (l *PositionLedger) Open() []domain.Position {
	out := make([]domain.Position, 0, len(l.entries))
	for _, e := range l.entries {
		if e.pos.Qty != 0 {
			out = append(out, e.pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// MarginUsed is the sum of |qty| * initial margin across positions.
func (l *PositionLedger) MarginUsed() decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.entries {
		total = total.Add(e.inst.InitMargin.Mul(decimal.NewFromInt(abs(e.pos.Qty))))
	}
	return total
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }

func sign(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
