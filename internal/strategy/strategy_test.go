package strategy

import (
	"context"
	"testing"

	"barsim/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string                                { return s.name }
func (s *stubStrategy) Init(_ context.Context, _ []domain.Bar) error { return nil }
func (s *stubStrategy) OnBar(_ context.Context, _ domain.Bar, _ domain.Position) ([]domain.Signal, error) {
	return nil, nil
}
func (s *stubStrategy) OnTrade(_ context.Context, _ domain.Execution) ([]domain.Signal, error) {
	return nil, nil
}

func stubFactory(name string) Factory {
	return func(map[string]string) (Strategy, error) { return &stubStrategy{name: name}, nil }
}

func TestRegistryRegisterAndNew(t *testing.T) {
	r := NewRegistry()
	r.Register("test-strategy", stubFactory("test-strategy"))

	if _, ok := r.Get("test-strategy"); !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	got, err := r.New("test-strategy", nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if got.Name() != "test-strategy" {
		t.Errorf("New returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}

	again, _ := r.New("test-strategy", nil)
	if again == got {
		t.Error("New returned the same instance twice")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned true for unregistered strategy")
	}
	if _, err := r.New("nonexistent", nil); err == nil {
		t.Error("New returned nil error for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", stubFactory("beta"))
	r.Register("alpha", stubFactory("alpha"))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestSignalToRequest(t *testing.T) {
	req := SignalToRequest(domain.Signal{Symbol: "ES", Type: domain.SignalTypeShort, Qty: 2})
	if req.Side != domain.OrderSideSell {
		t.Errorf("Side = %q, want %q", req.Side, domain.OrderSideSell)
	}
	if req.Type != domain.OrderTypeMarket {
		t.Errorf("Type = %q, want %q", req.Type, domain.OrderTypeMarket)
	}
	if req.Qty != 2 || req.Symbol != "ES" {
		t.Errorf("Qty/Symbol = %d/%q, want 2/ES", req.Qty, req.Symbol)
	}
}

func TestNilPacerDoesNotWait(t *testing.T) {
	if p := NewPacer(0, 1); p != nil {
		t.Fatalf("NewPacer(0) = %v, want nil", p)
	}
	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("nil Pacer.Wait returned %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Fatal("nil Pacer.Wait ignored a cancelled context")
	}
}

func TestPacerWait(t *testing.T) {
	p := NewPacer(1000, 5)
	for i := 0; i < 10; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait #%d returned %v", i, err)
		}
	}
}
