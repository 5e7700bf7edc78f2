// Package builtins provides the strategies that ship with barsim.
package builtins

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
	"barsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. When the
// short-period SMA crosses above the long-period SMA it closes any short and
// goes long; when it crosses below it closes any long and, if shorting is
// allowed, goes short.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	qty         int64
	allowShort  bool

	closes   []decimal.Decimal
	prevDiff int // sign of short SMA - long SMA on the previous bar
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods, trading qty contracts per entry.
func NewSMACross(short, long int, qty int64, allowShort bool) (*SMACross, error) {
	if short <= 0 || long <= short {
		return nil, fmt.Errorf("sma-cross: need 0 < short < long, got %d/%d", short, long)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("sma-cross: qty must be positive, got %d", qty)
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		qty:         qty,
		allowShort:  allowShort,
	}, nil
}

// NewSMACrossFromParams reads "short", "long", "qty" and "allow_short",
// defaulting to 10, 30, 1 and true.
func NewSMACrossFromParams(params map[string]string) (strategy.Strategy, error) {
	short, err := intParam(params, "short", 10)
	if err != nil {
		return nil, err
	}
	long, err := intParam(params, "long", 30)
	if err != nil {
		return nil, err
	}
	qty, err := intParam(params, "qty", 1)
	if err != nil {
		return nil, err
	}
	allowShort := true
	if v, ok := params["allow_short"]; ok {
		if allowShort, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("allow_short %q: %w", v, err)
		}
	}
	return NewSMACross(short, long, int64(qty), allowShort)
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init seeds the price history from the preloaded bars.
func (s *SMACross) Init(_ context.Context, history []domain.Bar) error {
	s.closes = make([]decimal.Decimal, 0, s.longPeriod)
	s.prevDiff = 0
	for _, b := range history {
		s.push(b.Close)
	}
	return nil
}

// OnBar processes a new bar and returns trading signals based on SMA crossover
// logic.
func (s *SMACross) OnBar(_ context.Context, bar domain.Bar, pos domain.Position) ([]domain.Signal, error) {
	prev := s.prevDiff
	cur := s.push(bar.Close)
	if prev == 0 || cur == 0 || cur == prev {
		return nil, nil
	}

	var out []domain.Signal
	if cur > 0 {
		if pos.Qty < 0 {
			out = append(out, s.signal(bar, domain.SignalTypeCover, -pos.Qty, "cross up"))
		}
		if pos.Qty <= 0 {
			out = append(out, s.signal(bar, domain.SignalTypeBuy, s.qty, "cross up"))
		}
		return out, nil
	}
	if pos.Qty > 0 {
		out = append(out, s.signal(bar, domain.SignalTypeSell, pos.Qty, "cross down"))
	}
	if s.allowShort && pos.Qty >= 0 {
		out = append(out, s.signal(bar, domain.SignalTypeShort, s.qty, "cross down"))
	}
	return out, nil
}

// OnTrade is a no-op; the strategy reads its position on each bar.
func (s *SMACross) OnTrade(_ context.Context, _ domain.Execution) ([]domain.Signal, error) {
	return nil, nil
}

// push appends a close and returns the sign of short SMA - long SMA, or 0
// until enough history exists.
func (s *SMACross) push(c decimal.Decimal) int {
	s.closes = append(s.closes, c)
	if len(s.closes) > s.longPeriod {
		s.closes = s.closes[1:]
	}
	if len(s.closes) < s.longPeriod {
		return 0
	}
	diff := sma(s.closes[len(s.closes)-s.shortPeriod:]).Sub(sma(s.closes)).Sign()
	if diff != 0 {
		s.prevDiff = diff
	}
	return diff
}

func (s *SMACross) signal(bar domain.Bar, typ domain.SignalType, qty int64, reason string) domain.Signal {
	return domain.Signal{
		Symbol:    bar.Symbol,
		Type:      typ,
		Qty:       qty,
		OrderType: domain.OrderTypeMarket,
		Metadata:  map[string]string{"reason": reason},
	}
}

func sma(xs []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(xs[0], xs[1:]...).Div(decimal.NewFromInt(int64(len(xs))))
}

func intParam(params map[string]string, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return n, nil
}
