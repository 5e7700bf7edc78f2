package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// MarketFill selects the bar price at which market orders execute.
type MarketFill string

const (
	// MarketFillOpen fills market orders at the open of the first bar after
	// submission, which avoids same-bar look-ahead.
	MarketFillOpen MarketFill = "open"
	// MarketFillClose fills at the bar close.
	MarketFillClose MarketFill = "close"
)

// ParseMarketFill accepts "open" or "close"; the empty string means open.
func ParseMarketFill(s string) (MarketFill, error) {
	switch MarketFill(s) {
	case "", MarketFillOpen:
		return MarketFillOpen, nil
	case MarketFillClose:
		return MarketFillClose, nil
	default:
		return "", fmt.Errorf("unknown market fill policy %q", s)
	}
}

// Matcher decides whether an order executes against a bar and at what
// price. Fills are optimistic: a limit touching the bar range fills in full
// at the limit price, with no intrabar path simulation and no partial fills.
type Matcher struct {
	marketFill MarketFill
}

// NewMatcher creates a Matcher with the given market-order policy.
func NewMatcher(policy MarketFill) *Matcher {
	if policy == "" {
		policy = MarketFillOpen
	}
	return &Matcher{marketFill: policy}
}

// Policy returns the configured market-order fill policy.
func (m *Matcher) Policy() MarketFill { return m.marketFill }

// FillPrice returns the execution price of o on bar, or false if o does not
// fill on this bar.
//
//	market      always            open (or close)
//	limit buy   limit <= high     limit
//	limit sell  limit >= low      limit
//	stop buy    stop  <= high     stop
//	stop sell   stop  >= low      stop
func (m *Matcher) FillPrice(o domain.Order, bar domain.Bar) (decimal.Decimal, bool) {
	switch o.Type {
	case domain.OrderTypeMarket:
		if m.marketFill == MarketFillClose {
			return bar.Close, true
		}
		return bar.Open, true
	case domain.OrderTypeLimit:
		return touch(o.Side, o.LimitPrice, bar)
	case domain.OrderTypeStopLimit:
		return touch(o.Side, o.StopPrice, bar)
	}
	return decimal.Decimal{}, false
}

// Match is one order that executes on a bar.
type Match struct {
	Order domain.Order
	Price decimal.Decimal
}

// Match returns the orders that fill on bar, preserving the input order.
// Orders for other symbols are ignored.
func (m *Matcher) Match(bar domain.Bar, orders []domain.Order) []Match {
	var out []Match
	for _, o := range orders {
		if o.Symbol != bar.Symbol {
			continue
		}
		if price, ok := m.FillPrice(o, bar); ok {
			out = append(out, Match{Order: o, Price: price})
		}
	}
	return out
}

func touch(side domain.OrderSide, price decimal.Decimal, bar domain.Bar) (decimal.Decimal, bool) {
	switch side {
	case domain.OrderSideBuy:
		if price.LessThanOrEqual(bar.High) {
			return price, true
		}
	case domain.OrderSideSell:
		if price.GreaterThanOrEqual(bar.Low) {
			return price, true
		}
	}
	return decimal.Decimal{}, false
}
