package engine

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barsim/internal/domain"
	"barsim/internal/instrument"
)

var t0 = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func testCatalog(t *testing.T) *instrument.Catalog {
	t.Helper()
	cat, err := instrument.New(
		domain.Instrument{
			Symbol:     "ES",
			SecType:    "FUT",
			Multiplier: decimal.NewFromInt(50),
			Commission: d("3.50"),
			InitMargin: decimal.NewFromInt(12000),
			MinTick:    d("0.25"),
		},
		domain.Instrument{
			Symbol:     "MNQ",
			SecType:    "FUT",
			Multiplier: decimal.NewFromInt(2),
			Commission: d("0.62"),
			InitMargin: decimal.NewFromInt(1800),
			MinTick:    d("0.25"),
		},
	)
	require.NoError(t, err)
	return cat
}

func mkBar(symbol string, i int, o, h, l, c string) domain.Bar {
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
		Open:      d(o),
		High:      d(h),
		Low:       d(l),
		Close:     d(c),
		Volume:    100,
		Count:     int64(i),
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return New(DefaultConfig(), testCatalog(t), opts...)
}

func market(symbol string, side domain.OrderSide, qty int64) domain.OrderRequest {
	return domain.OrderRequest{Symbol: symbol, Side: side, Type: domain.OrderTypeMarket, Qty: qty}
}

func onBar(t *testing.T, e *Engine, b domain.Bar) []Fill {
	t.Helper()
	fills, err := e.OnBar(b)
	require.NoError(t, err)
	return fills
}

func TestMarketBuyFillsAtNextOpen(t *testing.T) {
	e := newTestEngine(t)
	onBar(t, e, mkBar("ES", 0, "4495", "4498", "4490", "4497"))

	o, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, o.Status)
	assert.Empty(t, e.Executions(), "no fill before the next bar")

	fills := onBar(t, e, mkBar("ES", 1, "4500", "4506", "4499", "4505"))
	require.Len(t, fills, 1)
	assertDec(t, "4500", fills[0].Execution.Price)
	assert.Equal(t, domain.OrderStatusFilled, fills[0].Order.Status)

	pos := e.Position("ES")
	assert.Equal(t, int64(1), pos.Qty)
	require.True(t, pos.AvgCost.Valid)
	assertDec(t, "4500", pos.AvgCost.Decimal)

	acct := e.Account()
	assertDec(t, "99996.50", acct.Cash)
	assertDec(t, "0", acct.RealizedPnL)
	assertDec(t, "3.50", fills[0].Report.Commission)
	// marked at the close: (4505 - 4500) * 1 * 50
	assertDec(t, "250", acct.UnrealizedPnL)
	assertDec(t, "100246.50", acct.Equity)
	assertDec(t, "12000", acct.MarginUsed)
}

func TestRoundTripRealizesProfit(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	require.NoError(t, err)
	onBar(t, e, mkBar("ES", 1, "4500", "4506", "4499", "4505"))

	_, err = e.Submit(market("ES", domain.OrderSideSell, 1))
	require.NoError(t, err)
	fills := onBar(t, e, mkBar("ES", 2, "4510", "4512", "4508", "4511"))
	require.Len(t, fills, 1)
	assertDec(t, "500", fills[0].Report.RealizedPnL)

	pos := e.Position("ES")
	assert.True(t, pos.Flat())
	assert.False(t, pos.AvgCost.Valid)
	assertDec(t, "500", pos.RealizedPnL)

	acct := e.Account()
	assertDec(t, "100493.00", acct.Cash)
	assertDec(t, "500", acct.RealizedPnL)
	assertDec(t, "7", acct.Commissions)
	assertDec(t, "0", acct.UnrealizedPnL)
	assert.Empty(t, e.Positions())
}

func TestReversalRealizesClosedUnitAndReopens(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	require.NoError(t, err)
	onBar(t, e, mkBar("ES", 1, "4500", "4500", "4500", "4500"))

	_, err = e.Submit(market("ES", domain.OrderSideSell, 2))
	require.NoError(t, err)
	fills := onBar(t, e, mkBar("ES", 2, "4490", "4492", "4485", "4490"))
	require.Len(t, fills, 1)
	assertDec(t, "-500", fills[0].Report.RealizedPnL)
	assertDec(t, "7", fills[0].Report.Commission)

	pos := e.Position("ES")
	assert.Equal(t, int64(-1), pos.Qty)
	require.True(t, pos.AvgCost.Valid)
	assertDec(t, "4490", pos.AvgCost.Decimal)

	// 100000 - 3.50 - 500 - 7.00
	assertDec(t, "99489.50", e.Account().Cash)
}

func TestLimitBelowBarLowFillsOptimistically(t *testing.T) {
	e := newTestEngine(t)
	onBar(t, e, mkBar("ES", 0, "4490", "4495", "4485", "4490"))

	_, err := e.Submit(domain.OrderRequest{
		Symbol:     "ES",
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeLimit,
		Qty:        1,
		LimitPrice: d("4480"),
	})
	require.NoError(t, err)

	// 4480 never traded, but a buy limit fills whenever limit <= high.
	fills := onBar(t, e, mkBar("ES", 1, "4490", "4495", "4485", "4490"))
	require.Len(t, fills, 1)
	assertDec(t, "4480", fills[0].Execution.Price)
	assertDec(t, "4480", e.Position("ES").AvgCost.Decimal)
}

func TestLimitAndStopConditions(t *testing.T) {
	tests := []struct {
		name  string
		req   domain.OrderRequest
		fill  bool
		price string
	}{
		{"buy limit under high", domain.OrderRequest{Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, LimitPrice: d("4500")}, true, "4500"},
		{"buy limit above high", domain.OrderRequest{Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, LimitPrice: d("4520")}, false, ""},
		{"sell limit above low", domain.OrderRequest{Side: domain.OrderSideSell, Type: domain.OrderTypeLimit, LimitPrice: d("4505")}, true, "4505"},
		{"sell limit below low", domain.OrderRequest{Side: domain.OrderSideSell, Type: domain.OrderTypeLimit, LimitPrice: d("4480")}, false, ""},
		{"buy stop touched", domain.OrderRequest{Side: domain.OrderSideBuy, Type: domain.OrderTypeStopLimit, StopPrice: d("4508"), LimitPrice: d("4509")}, true, "4508"},
		{"sell stop touched", domain.OrderRequest{Side: domain.OrderSideSell, Type: domain.OrderTypeStopLimit, StopPrice: d("4492"), LimitPrice: d("4491")}, true, "4492"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			req := tt.req
			req.Symbol = "ES"
			req.Qty = 1
			_, err := e.Submit(req)
			require.NoError(t, err)

			fills := onBar(t, e, mkBar("ES", 1, "4500", "4510", "4490", "4505"))
			if !tt.fill {
				assert.Empty(t, fills)
				assert.Len(t, e.OpenOrders(), 1)
				return
			}
			require.Len(t, fills, 1)
			assertDec(t, tt.price, fills[0].Execution.Price)
			assert.Empty(t, e.OpenOrders())
		})
	}
}

func TestMarketFillAtClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MarketFill = MarketFillClose
	e := New(cfg, testCatalog(t))

	_, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	require.NoError(t, err)
	fills := onBar(t, e, mkBar("ES", 1, "4500", "4510", "4490", "4505"))
	require.Len(t, fills, 1)
	assertDec(t, "4505", fills[0].Execution.Price)
}

func TestFillsInAscendingOrderID(t *testing.T) {
	e := newTestEngine(t)
	first, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	require.NoError(t, err)
	second, err := e.Submit(market("ES", domain.OrderSideSell, 3))
	require.NoError(t, err)
	other, err := e.Submit(market("MNQ", domain.OrderSideBuy, 1))
	require.NoError(t, err)

	fills := onBar(t, e, mkBar("ES", 1, "4500", "4510", "4490", "4505"))
	require.Len(t, fills, 2)
	assert.Equal(t, first.ID, fills[0].Order.ID)
	assert.Equal(t, second.ID, fills[1].Order.ID)
	assert.Equal(t, fills[0].Execution.ID+1, fills[1].Execution.ID)
	assert.Equal(t, DefaultExecIDStart, fills[0].Execution.ID)
	assert.Equal(t, int64(-2), e.Position("ES").Qty)

	// MNQ order waits for an MNQ bar.
	open := e.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, other.ID, open[0].ID)
}

func TestOnBarRejectsOutOfOrderBars(t *testing.T) {
	e := newTestEngine(t)
	onBar(t, e, mkBar("ES", 2, "4500", "4500", "4500", "4500"))

	_, err := e.OnBar(mkBar("ES", 2, "4501", "4501", "4501", "4501"))
	assert.True(t, errors.Is(err, domain.ErrFeedOrder), "equal timestamp: %v", err)
	_, err = e.OnBar(mkBar("ES", 1, "4501", "4501", "4501", "4501"))
	assert.True(t, errors.Is(err, domain.ErrFeedOrder), "earlier timestamp: %v", err)

	// ordering is per symbol
	_, err = e.OnBar(mkBar("MNQ", 1, "17000", "17000", "17000", "17000"))
	assert.NoError(t, err)

	_, err = e.OnBar(mkBar("CL", 3, "70", "70", "70", "70"))
	assert.True(t, errors.Is(err, domain.ErrUnknownInstrument))
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(market("CL", domain.OrderSideBuy, 1))
	assert.True(t, errors.Is(err, domain.ErrUnknownInstrument))

	_, err = e.Submit(market("ES", domain.OrderSideBuy, 0))
	assert.True(t, errors.Is(err, domain.ErrInvalidOrder))

	_, err = e.Submit(domain.OrderRequest{Symbol: "ES", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Qty: 1})
	assert.True(t, errors.Is(err, domain.ErrInvalidOrder))

	assert.Empty(t, e.OpenOrders())
	assert.Empty(t, e.CompletedOrders())
}

func TestCancelAndModify(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	require.NoError(t, err)

	err = e.Modify(o.ID, market("ES", domain.OrderSideBuy, 2))
	assert.True(t, errors.Is(err, domain.ErrUnsupported))

	cancelled, err := e.Cancel(o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	assert.Empty(t, onBar(t, e, mkBar("ES", 1, "4500", "4510", "4490", "4505")))

	_, err = e.Cancel(o.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	err = e.Modify(o.ID, market("ES", domain.OrderSideBuy, 2))
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	_, err = e.Cancel(999)
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))

	done := e.CompletedOrders()
	require.Len(t, done, 1)
	assert.Equal(t, domain.OrderStatusCancelled, done[0].Status)
}

type recorder struct {
	statuses []domain.OrderStatus
	execs    []domain.Execution
}

func (r *recorder) OnOrderStatus(o domain.Order) { r.statuses = append(r.statuses, o.Status) }
func (r *recorder) OnExecution(exec domain.Execution, _ domain.CommissionReport) {
	r.execs = append(r.execs, exec)
}

func TestObserverSeesLifecycle(t *testing.T) {
	e := newTestEngine(t)
	rec := &recorder{}
	e.Subscribe(rec)

	_, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	require.NoError(t, err)
	onBar(t, e, mkBar("ES", 1, "4500", "4510", "4490", "4505"))

	assert.Equal(t, []domain.OrderStatus{
		domain.OrderStatusPendingSubmit,
		domain.OrderStatusSubmitted,
		domain.OrderStatusFilled,
	}, rec.statuses)
	require.Len(t, rec.execs, 1)
	assert.Equal(t, e.Executions()[0].ID, rec.execs[0].ID)
}

func TestLedgerInvariantsHoldThroughSequence(t *testing.T) {
	e := newTestEngine(t)
	steps := []struct {
		side domain.OrderSide
		qty  int64
		open string
	}{
		{domain.OrderSideBuy, 2, "4500"},
		{domain.OrderSideBuy, 1, "4530"},
		{domain.OrderSideSell, 1, "4520"},
		{domain.OrderSideSell, 4, "4490.25"},
		{domain.OrderSideSell, 1, "4480"},
		{domain.OrderSideBuy, 3, "4470.75"},
	}
	initial := e.Account().InitialCash
	for i, s := range steps {
		_, err := e.Submit(market("ES", s.side, s.qty))
		require.NoError(t, err)
		onBar(t, e, mkBar("ES", i+1, s.open, s.open, s.open, s.open))

		realized, commission := decimal.Zero, decimal.Zero
		for _, r := range e.CommissionReports() {
			realized = realized.Add(r.RealizedPnL)
			commission = commission.Add(r.Commission)
		}
		acct := e.Account()
		assertDec(t, initial.Add(realized).Sub(commission).String(), acct.Cash, "step %d", i)

		pos := e.Position("ES")
		assert.Equal(t, pos.Qty != 0, pos.AvgCost.Valid, "step %d", i)
	}
	assert.True(t, e.Position("ES").Flat())

	for _, o := range e.CompletedOrders() {
		assert.True(t, o.Status.Terminal())
	}
	assert.Len(t, e.Executions(), len(steps))
	assert.Len(t, e.CommissionReports(), len(steps))
}

func TestReadsAreIdempotent(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	require.NoError(t, err)
	_, err = e.Submit(domain.OrderRequest{Symbol: "ES", Side: domain.OrderSideSell, Type: domain.OrderTypeLimit, Qty: 1, LimitPrice: d("4600")})
	require.NoError(t, err)
	onBar(t, e, mkBar("ES", 1, "4500", "4510", "4490", "4505"))

	snapshot := func() string {
		b, err := json.Marshal([]any{e.Positions(), e.Account(), e.OpenOrders()})
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, snapshot(), snapshot())
}

func TestRiskManagerBlocksOversizedOrder(t *testing.T) {
	e := newTestEngine(t, WithRiskManager(NewRiskManager(0.10, 0)))

	// one ES contract needs 12000 of margin against a 10000 limit
	_, err := e.Submit(market("ES", domain.OrderSideBuy, 1))
	assert.True(t, errors.Is(err, domain.ErrRiskRejected))
	assert.Empty(t, e.OpenOrders())

	_, err = e.Submit(market("MNQ", domain.OrderSideBuy, 5))
	assert.NoError(t, err)
}

func TestUnrealizedFollowsLatestClose(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(market("ES", domain.OrderSideBuy, 2))
	require.NoError(t, err)
	onBar(t, e, mkBar("ES", 1, "4500", "4506", "4499", "4505"))
	onBar(t, e, mkBar("MNQ", 1, "17000", "17010", "16990", "17005"))
	onBar(t, e, mkBar("ES", 2, "4505", "4512", "4490", "4492"))

	// (4492 - 4500) * 2 * 50
	assertDec(t, "-800", e.Account().UnrealizedPnL)
	pos := e.Position("ES")
	assertDec(t, "4492", pos.MarketPrice)
	assertDec(t, "-800", pos.UnrealizedPnL)
	require.Len(t, e.Positions(), 1)
	assertDec(t, "-800", e.Positions()[0].UnrealizedPnL)

	// the ledger itself carries no mark
	assert.True(t, e.positions.Get("ES").UnrealizedPnL.IsZero())
}
