package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barsim/internal/domain"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(7)
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	o, err := r.Submit(market("ES", domain.OrderSideBuy, 1), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), o.ID)
	assert.Equal(t, domain.OrderStatusPendingSubmit, o.Status)
	assert.Empty(t, r.Working("ES"), "pending orders are not matchable")

	o, err = r.Acknowledge(o.ID, now)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, o.Status)

	_, err = r.Acknowledge(o.ID, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	filled, ok := r.fill(o.ID, d("4500"), now.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusFilled, filled.Status)

	_, ok = r.fill(o.ID, d("4501"), now.Add(2*time.Minute))
	assert.False(t, ok, "filled orders never transition again")
	_, err = r.Cancel(o.ID, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	got, ok := r.Get(o.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assertDec(t, "4500", got.FillPrice)

	next, err := r.Submit(market("ES", domain.OrderSideSell, 1), now)
	require.NoError(t, err)
	assert.Equal(t, int64(8), next.ID)
	assert.Len(t, r.Open(), 1)
	assert.Len(t, r.History(), 1)
}

func TestValidateRequest(t *testing.T) {
	bad := []domain.OrderRequest{
		{Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: 1},
		{Symbol: "ES", Side: "hold", Type: domain.OrderTypeMarket, Qty: 1},
		{Symbol: "ES", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: -1},
		{Symbol: "ES", Side: domain.OrderSideBuy, Type: "trailing", Qty: 1},
		{Symbol: "ES", Side: domain.OrderSideBuy, Type: domain.OrderTypeStopLimit, Qty: 1, StopPrice: d("4500")},
	}
	for i, req := range bad {
		err := ValidateRequest(req)
		assert.True(t, errors.Is(err, domain.ErrInvalidOrder), "case %d: %v", i, err)
	}
	assert.NoError(t, ValidateRequest(market("ES", domain.OrderSideSell, 3)))
}
