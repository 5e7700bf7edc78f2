package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barsim/internal/domain"
	"barsim/internal/engine"
	"barsim/internal/instrument"
)

var t0 = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

func esCatalog(t *testing.T) *instrument.Catalog {
	t.Helper()
	cat, err := instrument.New(domain.Instrument{
		Symbol:     "ES",
		Multiplier: decimal.NewFromInt(50),
		Commission: decimal.RequireFromString("3.5"),
	})
	require.NoError(t, err)
	return cat
}

func execute(l *Ledger, id int64, side domain.OrderSide, qty int64, price string, at time.Time) {
	exec := domain.Execution{ID: id, Symbol: "ES", Side: side, Qty: qty, Price: decimal.RequireFromString(price), Time: at}
	l.OnExecution(exec, domain.CommissionReport{ExecID: id, Commission: decimal.RequireFromString("3.5").Mul(decimal.NewFromInt(qty))})
}

func bar(i int) domain.Bar {
	return domain.Bar{Symbol: "ES", Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute)}
}

func sampleLedger(t *testing.T) *Ledger {
	l := NewLedger(esCatalog(t))
	execute(l, 1, domain.OrderSideBuy, 2, "4500", t0)
	l.OnBar(bar(0))
	l.OnBar(bar(1))
	l.OnBar(bar(2))
	execute(l, 2, domain.OrderSideSell, 1, "4510", t0.Add(15*time.Minute))
	execute(l, 3, domain.OrderSideSell, 3, "4490", t0.Add(15*time.Minute))
	l.OnBar(bar(3))
	execute(l, 4, domain.OrderSideBuy, 2, "4480", t0.Add(20*time.Minute))
	l.OnBar(bar(4))
	return l
}

func TestLedgerRoundTrips(t *testing.T) {
	l := sampleLedger(t)
	trades := l.Trades()
	require.Len(t, trades, 3)

	first := trades[0]
	assert.Equal(t, domain.DirectionLong, first.Direction)
	assert.Equal(t, int64(1), first.Qty)
	assert.Equal(t, 3, first.BarsHeld)
	assert.True(t, first.Closed())
	assert.True(t, first.Profit.Equal(decimal.NewFromInt(493)), "profit %s", first.Profit)

	assert.True(t, trades[1].Profit.Equal(decimal.NewFromInt(-507)), "profit %s", trades[1].Profit)

	short := trades[2]
	assert.Equal(t, domain.DirectionShort, short.Direction)
	assert.Equal(t, int64(2), short.Qty)
	assert.Equal(t, 1, short.BarsHeld)
	assert.True(t, short.EntryPrice.Equal(decimal.NewFromInt(4490)))
	assert.True(t, short.Profit.Equal(decimal.NewFromInt(986)), "profit %s", short.Profit)

	assert.Empty(t, l.OpenTrades())
}

func TestLedgerKeepsOpenLots(t *testing.T) {
	l := NewLedger(nil)
	execute(l, 1, domain.OrderSideSell, 1, "100", t0)
	execute(l, 2, domain.OrderSideSell, 2, "101", t0.Add(time.Minute))

	open := l.OpenTrades()
	require.Len(t, open, 2)
	assert.Equal(t, domain.DirectionShort, open[1].Direction)
	assert.False(t, open[0].Closed())
	assert.Empty(t, l.Trades())
}

func TestLedgerFollowsEngine(t *testing.T) {
	cat := esCatalog(t)
	eng := engine.New(engine.DefaultConfig(), cat)
	l := NewLedger(cat)
	eng.Subscribe(l)

	step := func(i int, open string) {
		p := decimal.RequireFromString(open)
		b := domain.Bar{Symbol: "ES", Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: p, High: p, Low: p, Close: p}
		_, err := eng.OnBar(b)
		require.NoError(t, err)
		l.OnBar(b)
	}

	_, err := eng.Submit(domain.OrderRequest{Symbol: "ES", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: 1})
	require.NoError(t, err)
	step(0, "4500")
	step(1, "4505")
	_, err = eng.Submit(domain.OrderRequest{Symbol: "ES", Side: domain.OrderSideSell, Type: domain.OrderTypeMarket, Qty: 1})
	require.NoError(t, err)
	step(2, "4510")

	trades := l.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 2, trades[0].BarsHeld)
	// ledger profit equals the account's change in cash
	assert.True(t, trades[0].Profit.Equal(eng.Account().Cash.Sub(decimal.NewFromInt(100000))))
}

func TestSummarize(t *testing.T) {
	cat := esCatalog(t)
	s := Summarize(sampleLedger(t).Trades(), cat, 0.03)

	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.Winners)
	assert.Equal(t, 1, s.Losers)
	assert.True(t, s.TotalProfit.Equal(decimal.NewFromInt(972)))
	assert.True(t, s.AvgProfitLoss.Equal(decimal.NewFromInt(324)))
	assert.InDelta(t, 66.6667, s.WinRatio, 1e-3)
	assert.InDelta(t, 7.0/3.0, s.AvgBarsHeld, 1e-9)
	assert.InDelta(t, 507, s.MaxDrawdown, 1e-9)
	assert.InDelta(t, 507/1.7320508, s.UlcerIndex, 1e-3)
	assert.InDelta(t, 1479.0/507.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 739.5/507.0, s.RiskReward, 1e-9)
	assert.InDelta(t, 324, s.Expectancy, 1e-9)
	assert.Greater(t, s.SharpeRatio, 0.0)
	assert.Greater(t, s.SortinoRatio, 0.0)
}

func TestSummarizeEmptyAndAllWinners(t *testing.T) {
	s := Summarize(nil, nil, 0.03)
	assert.Equal(t, 0, s.TotalTrades)
	assert.True(t, s.TotalProfit.IsZero())

	win := domain.TradeRecord{Ticker: "X", Qty: 1, EntryPrice: decimal.NewFromInt(100), Profit: decimal.NewFromInt(5)}
	s = Summarize([]domain.TradeRecord{win}, nil, 0)
	assert.Equal(t, 0.0, s.ProfitFactor, "undefined with no losers")
	assert.Equal(t, 0.0, s.SharpeRatio, "undefined for one sample")
	assert.InDelta(t, 5.0, s.AvgProfitLossPct, 1e-9)
	assert.Equal(t, 100.0, s.WinRatio)
}
