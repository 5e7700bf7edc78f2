package builtins

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
	"barsim/internal/strategy"
)

var _ strategy.Strategy = (*Scripted)(nil)

// Step is one scripted order, sent after the replay bar with index Bar
// (zero-based, counting only bars after the preload window).
type Step struct {
	Bar    int
	Signal domain.Signal
}

// Scripted replays a fixed list of orders. It is used to reproduce exact
// add, reduce, reverse and close sequences against recorded data.
type Scripted struct {
	steps []Step
	bar   int
}

// NewScripted creates a Scripted strategy from steps.
func NewScripted(steps []Step) *Scripted {
	return &Scripted{steps: steps}
}

// NewScriptedFromParams parses params["orders"], a comma-separated list of
//
//	bar:type:qty[:limit|stop_limit:price[:stop]]
//
// e.g. "0:buy:1,4:sell:2,9:cover:1:limit:4480".
func NewScriptedFromParams(params map[string]string) (strategy.Strategy, error) {
	steps, err := ParseScript(params["orders"])
	if err != nil {
		return nil, err
	}
	return NewScripted(steps), nil
}

// ParseScript parses the scripted order syntax.
func ParseScript(script string) ([]Step, error) {
	var steps []Step
	for _, item := range strings.Split(script, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) < 3 {
			return nil, fmt.Errorf("scripted order %q: want bar:type:qty", item)
		}
		bar, err := strconv.Atoi(parts[0])
		if err != nil || bar < 0 {
			return nil, fmt.Errorf("scripted order %q: bad bar index", item)
		}
		typ := domain.SignalType(strings.ToLower(parts[1]))
		switch typ {
		case domain.SignalTypeBuy, domain.SignalTypeSell, domain.SignalTypeShort, domain.SignalTypeCover:
		default:
			return nil, fmt.Errorf("scripted order %q: unknown signal %q", item, parts[1])
		}
		qty, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("scripted order %q: bad qty", item)
		}
		sig := domain.Signal{Type: typ, Qty: qty, OrderType: domain.OrderTypeMarket}
		if len(parts) >= 5 {
			sig.OrderType = domain.OrderType(parts[3])
			if sig.LimitPrice, err = decimal.NewFromString(parts[4]); err != nil {
				return nil, fmt.Errorf("scripted order %q: bad price: %w", item, err)
			}
			if sig.OrderType == domain.OrderTypeStopLimit {
				sig.StopPrice = sig.LimitPrice
				if len(parts) >= 6 {
					if sig.StopPrice, err = decimal.NewFromString(parts[5]); err != nil {
						return nil, fmt.Errorf("scripted order %q: bad stop: %w", item, err)
					}
				}
			}
		}
		steps = append(steps, Step{Bar: bar, Signal: sig})
	}
	return steps, nil
}

// Name returns "scripted".
func (s *Scripted) Name() string { return "scripted" }

// Init resets the bar counter.
func (s *Scripted) Init(context.Context, []domain.Bar) error {
	s.bar = 0
	return nil
}

// OnBar emits the steps scheduled for this bar.
func (s *Scripted) OnBar(_ context.Context, bar domain.Bar, _ domain.Position) ([]domain.Signal, error) {
	var out []domain.Signal
	for _, st := range s.steps {
		if st.Bar == s.bar {
			sig := st.Signal
			sig.Symbol = bar.Symbol
			out = append(out, sig)
		}
	}
	s.bar++
	return out, nil
}

// OnTrade is a no-op.
func (s *Scripted) OnTrade(context.Context, domain.Execution) ([]domain.Signal, error) {
	return nil, nil
}
