package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if !bar.Open.IsZero() || !bar.High.IsZero() || !bar.Low.IsZero() || !bar.Close.IsZero() {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.Volume != 0 || bar.Count != 0 {
		t.Error("expected zero Volume/Count for zero-value Bar")
	}

	// Verify Order can be instantiated with zero values.
	order := Order{}
	if order.ID != 0 {
		t.Error("expected zero ID for zero-value Order")
	}
	if order.Side != "" || order.Type != "" || order.Status != "" {
		t.Error("expected empty Side/Type/Status for zero-value Order")
	}
	if order.Qty != 0 || !order.FillPrice.IsZero() {
		t.Error("expected zero Qty/FillPrice for zero-value Order")
	}
	if !order.CreatedAt.IsZero() || !order.UpdatedAt.IsZero() {
		t.Error("expected zero timestamps for zero-value Order")
	}

	// Verify enum constants are defined correctly.
	if OrderSideBuy != "buy" {
		t.Errorf("OrderSideBuy = %q, want %q", OrderSideBuy, "buy")
	}
	if OrderTypeStopLimit != "stop_limit" {
		t.Errorf("OrderTypeStopLimit = %q, want %q", OrderTypeStopLimit, "stop_limit")
	}

	// Verify structs can be constructed with real values.
	now := time.Now()
	signal := Signal{
		ID:         1,
		StrategyID: "sma-cross",
		Symbol:     "ES",
		Type:       SignalTypeBuy,
		Qty:        1,
		OrderType:  OrderTypeMarket,
		Metadata:   map[string]string{"reason": "crossover"},
		CreatedAt:  now,
	}
	if signal.StrategyID != "sma-cross" {
		t.Errorf("signal.StrategyID = %q, want %q", signal.StrategyID, "sma-cross")
	}

	pos := Position{Symbol: "ES", Qty: -2}
	if pos.Flat() {
		t.Error("pos.Flat() = true for a short position")
	}
	if pos.AvgCost.Valid {
		t.Error("expected invalid AvgCost for zero-value NullDecimal")
	}
}

func TestOrderSideSign(t *testing.T) {
	if got := OrderSideBuy.Sign(); got != 1 {
		t.Errorf("OrderSideBuy.Sign() = %d, want 1", got)
	}
	if got := OrderSideSell.Sign(); got != -1 {
		t.Errorf("OrderSideSell.Sign() = %d, want -1", got)
	}
	if OrderSide("hold").Valid() {
		t.Error(`OrderSide("hold").Valid() = true, want false`)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusPendingSubmit, false},
		{OrderStatusSubmitted, false},
		{OrderStatusFilled, true},
		{OrderStatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSignalTypeSide(t *testing.T) {
	tests := map[SignalType]OrderSide{
		SignalTypeBuy:   OrderSideBuy,
		SignalTypeCover: OrderSideBuy,
		SignalTypeSell:  OrderSideSell,
		SignalTypeShort: OrderSideSell,
	}
	for st, want := range tests {
		if got := st.Side(); got != want {
			t.Errorf("%s.Side() = %q, want %q", st, got, want)
		}
	}
}

func TestTradeRecordClosed(t *testing.T) {
	tr := TradeRecord{Ticker: "ES", EntryPrice: decimal.NewFromInt(4500)}
	if tr.Closed() {
		t.Error("open trade reported as closed")
	}
	tr.ExitTime = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if !tr.Closed() {
		t.Error("exited trade reported as open")
	}
}
