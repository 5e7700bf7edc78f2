package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

func TestRiskManagerCheckOrder(t *testing.T) {
	rm := NewRiskManager(0.10, 0.02)
	inst := domain.Instrument{Symbol: "ES", Multiplier: decimal.NewFromInt(50), InitMargin: decimal.NewFromInt(5000)}
	acct := domain.AccountInfo{Equity: decimal.NewFromInt(100000)}
	day := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	flat := domain.Position{Symbol: "ES"}

	if err := rm.CheckOrder(market("ES", domain.OrderSideBuy, 2), inst, flat, acct, day); err != nil {
		t.Fatalf("CheckOrder(2 lots) returned unexpected error: %v", err)
	}
	err := rm.CheckOrder(market("ES", domain.OrderSideBuy, 3), inst, flat, acct, day)
	if !errors.Is(err, domain.ErrRiskRejected) {
		t.Fatalf("CheckOrder(3 lots) = %v, want ErrRiskRejected", err)
	}

	// reducing an oversized position is always allowed
	big := domain.Position{Symbol: "ES", Qty: 4}
	if err := rm.CheckOrder(market("ES", domain.OrderSideSell, 1), inst, big, acct, day); err != nil {
		t.Fatalf("CheckOrder(reduce) returned unexpected error: %v", err)
	}

	rm.RecordFill(day, decimal.NewFromInt(-2500))
	err = rm.CheckOrder(market("ES", domain.OrderSideBuy, 1), inst, flat, acct, day.Add(time.Hour))
	if !errors.Is(err, domain.ErrRiskRejected) {
		t.Fatalf("CheckOrder after daily loss = %v, want ErrRiskRejected", err)
	}
	if err := rm.CheckOrder(market("ES", domain.OrderSideBuy, 1), inst, flat, acct, day.Add(24*time.Hour)); err != nil {
		t.Fatalf("CheckOrder on next day returned unexpected error: %v", err)
	}
}
