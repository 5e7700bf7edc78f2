package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// Registry owns every order that has not reached a terminal state. Open
// orders are kept in ascending id order, which is also submission order, so
// matching is deterministic for a given input sequence. Terminal orders move
// to a read-only history and are never re-activated.
type Registry struct {
	nextID  int64
	open    []*domain.Order
	byID    map[int64]*domain.Order
	history []domain.Order
}

// NewRegistry creates an empty registry whose first order id is startID.
func NewRegistry(startID int64) *Registry {
	if startID <= 0 {
		startID = 1
	}
	return &Registry{
		nextID: startID,
		byID:   make(map[int64]*domain.Order),
	}
}

// Submit validates req and stores it as PendingSubmit under the next order
// id. Invalid requests are rejected with domain.ErrInvalidOrder and never
// enter the registry.
func (r *Registry) Submit(req domain.OrderRequest, now time.Time) (domain.Order, error) {
	if err := ValidateRequest(req); err != nil {
		return domain.Order{}, err
	}
	o := &domain.Order{
		ID:         r.nextID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		Status:     domain.OrderStatusPendingSubmit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.nextID++
	r.open = append(r.open, o)
	r.byID[o.ID] = o
	return *o, nil
}

// Acknowledge moves a PendingSubmit order to Submitted.
func (r *Registry) Acknowledge(id int64, now time.Time) (domain.Order, error) {
	o, err := r.live(id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.OrderStatusPendingSubmit {
		return domain.Order{}, fmt.Errorf("%w: order %d is %s", domain.ErrInvalidState, id, o.Status)
	}
	o.Status = domain.OrderStatusSubmitted
	o.UpdatedAt = now
	return *o, nil
}

// Cancel moves a live order to the history as Cancelled.
func (r *Registry) Cancel(id int64, now time.Time) (domain.Order, error) {
	o, err := r.live(id)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = now
	r.retire(o)
	return *o, nil
}

// Modify never changes an order. Live orders report domain.ErrUnsupported;
// terminal ones report domain.ErrInvalidState.
func (r *Registry) Modify(id int64, _ domain.OrderRequest) error {
	if _, err := r.live(id); err != nil {
		return err
	}
	return fmt.Errorf("%w: modify order %d", domain.ErrUnsupported, id)
}

// fill transitions a Submitted order to Filled. Orders in any other state
// are left untouched and ok is false.
func (r *Registry) fill(id int64, price decimal.Decimal, at time.Time) (domain.Order, bool) {
	o, found := r.byID[id]
	if !found || o.Status != domain.OrderStatusSubmitted {
		return domain.Order{}, false
	}
	o.Status = domain.OrderStatusFilled
	o.FillPrice = price
	o.FilledAt = at
	o.UpdatedAt = at
	r.retire(o)
	return *o, true
}

// Working returns copies of the Submitted orders for symbol in ascending id
// order.
func (r *Registry) Working(symbol string) []domain.Order {
	var out []domain.Order
	for _, o := range r.open {
		if o.Symbol == symbol && o.Status == domain.OrderStatusSubmitted {
			out = append(out, *o)
		}
	}
	return out
}

// Get returns a copy of the order with the given id, live or terminal.
func (r *Registry) Get(id int64) (domain.Order, bool) {
	if o, ok := r.byID[id]; ok {
		return *o, true
	}
	for _, o := range r.history {
		if o.ID == id {
			return o, true
		}
	}
	return domain.Order{}, false
}

// Open returns copies of all live orders in ascending id order.
func (r *Registry) Open() []domain.Order {
	out := make([]domain.Order, len(r.open))
	for i, o := range r.open {
		out[i] = *o
	}
	return out
}

// History returns terminal orders in the order they became terminal.
func (r *Registry) History() []domain.Order {
	out := make([]domain.Order, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Registry) live(id int64) (*domain.Order, error) {
	if o, ok := r.byID[id]; ok {
		return o, nil
	}
	for _, o := range r.history {
		if o.ID == id {
			return nil, fmt.Errorf("%w: order %d is %s", domain.ErrInvalidState, id, o.Status)
		}
	}
	return nil, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
}

func (r *Registry) retire(o *domain.Order) {
	delete(r.byID, o.ID)
	for i, cur := range r.open {
		if cur.ID == o.ID {
			r.open = append(r.open[:i], r.open[i+1:]...)
			break
		}
	}
	r.history = append(r.history, *o)
}

// ValidateRequest checks the terms every order must satisfy before it can
// enter the registry.
func ValidateRequest(req domain.OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", domain.ErrInvalidOrder)
	}
	if !req.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, req.Side)
	}
	if req.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidOrder, req.Qty)
	}
	switch req.Type {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if !req.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: limit order requires a limit price", domain.ErrInvalidOrder)
		}
	case domain.OrderTypeStopLimit:
		if !req.StopPrice.IsPositive() || !req.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: stop-limit order requires stop and limit prices", domain.ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", domain.ErrInvalidOrder, req.Type)
	}
	return nil
}
