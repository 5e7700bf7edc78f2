// Package strategy defines the Strategy interface for trading strategies, a
// Registry of strategy constructors, and the Backtester that replays bars
// through a strategy against the simulated broker.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"barsim/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init receives the preloaded history before replay begins.
	Init(ctx context.Context, history []domain.Bar) error

	// OnBar is called after each replayed bar has been matched. pos is the
	// position in the bar's symbol after any fills on that bar.
	OnBar(ctx context.Context, bar domain.Bar, pos domain.Position) ([]domain.Signal, error)

	// OnTrade is called for each of the strategy's own executions, before
	// OnBar for the same bar.
	OnTrade(ctx context.Context, exec domain.Execution) ([]domain.Signal, error)
}

// Factory builds a fresh Strategy from string parameters. Every run gets
// its own instance.
type Factory func(params map[string]string) (Strategy, error)

// Registry holds named strategy factories for lookup and enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy.
func (r *Registry) New(name string, params map[string]string) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, r.List())
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SignalToRequest converts a signal to the order that executes it. Signals
// without an order type trade at market.
func SignalToRequest(sig domain.Signal) domain.OrderRequest {
	typ := sig.OrderType
	if typ == "" {
		typ = domain.OrderTypeMarket
	}
	return domain.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       sig.Type.Side(),
		Type:       typ,
		Qty:        sig.Qty,
		LimitPrice: sig.LimitPrice,
		StopPrice:  sig.StopPrice,
	}
}
