package stats

import (
	"math"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
	"barsim/internal/instrument"
)

// TradingDays annualises the risk-free rate.
const TradingDays = 252

// Summary holds performance metrics over closed trades. Ratios that are
// undefined for the sample (no losers, zero deviation) are reported as 0.
type Summary struct {
	TotalTrades      int             `json:"total_trades"`
	Winners          int             `json:"winners"`
	Losers           int             `json:"losers"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	AvgProfitLoss    decimal.Decimal `json:"avg_profit_loss"`
	AvgProfitLossPct float64         `json:"avg_profit_loss_pct"`
	WinRatio         float64         `json:"win_ratio"` // percent
	AvgBarsHeld      float64         `json:"avg_bars_held"`
	MaxDrawdown      float64         `json:"max_drawdown"`
	UlcerIndex       float64         `json:"ulcer_index"`
	SharpeRatio      float64         `json:"sharpe_ratio"`
	SortinoRatio     float64         `json:"sortino_ratio"`
	ProfitFactor     float64         `json:"profit_factor"`
	RiskReward       float64         `json:"risk_reward"`
	Expectancy       float64         `json:"expectancy"`
}

// Summarize computes metrics over trades. Per-trade returns are profit over
// entry notional (price * qty * multiplier); riskFreeRate is annual, e.g.
// 0.03. A nil catalog treats every multiplier as 1.
func Summarize(trades []domain.TradeRecord, catalog *instrument.Catalog, riskFreeRate float64) Summary {
	s := Summary{TotalTrades: len(trades), TotalProfit: decimal.Zero, AvgProfitLoss: decimal.Zero}
	if len(trades) == 0 {
		return s
	}

	profits := make([]float64, len(trades))
	returns := make([]float64, len(trades))
	var bars, winSum, lossSum float64
	for i, tr := range trades {
		s.TotalProfit = s.TotalProfit.Add(tr.Profit)
		p := tr.Profit.InexactFloat64()
		profits[i] = p
		returns[i] = p / notional(tr, catalog)
		bars += float64(tr.BarsHeld)
		switch {
		case p > 0:
			s.Winners++
			winSum += p
		case p < 0:
			s.Losers++
			lossSum += p
		}
	}
	n := float64(len(trades))
	s.AvgProfitLoss = s.TotalProfit.Div(decimal.NewFromInt(int64(len(trades))))
	s.AvgProfitLossPct = mean(returns) * 100
	s.WinRatio = float64(s.Winners) / n * 100
	s.AvgBarsHeld = bars / n

	drawdowns := drawdownSeries(profits)
	s.MaxDrawdown = maxOf(drawdowns)
	sq := make([]float64, len(drawdowns))
	for i, d := range drawdowns {
		sq[i] = d * d
	}
	s.UlcerIndex = math.Sqrt(mean(sq))

	dailyRF := math.Pow(1+riskFreeRate, 1.0/TradingDays) - 1
	excess := make([]float64, len(returns))
	var downside []float64
	for i, r := range returns {
		excess[i] = r - dailyRF
		if excess[i] < 0 {
			downside = append(downside, excess[i]*excess[i])
		}
	}
	if sd := stddev(excess); sd != 0 {
		s.SharpeRatio = mean(excess) / sd
	}
	if len(downside) > 0 {
		if dd := math.Sqrt(mean(downside)); dd != 0 {
			s.SortinoRatio = mean(excess) / dd
		}
	}

	var avgWin, avgLoss float64
	if s.Winners > 0 {
		avgWin = winSum / float64(s.Winners)
	}
	if s.Losers > 0 {
		avgLoss = lossSum / float64(s.Losers)
		s.ProfitFactor = winSum / math.Abs(lossSum)
		s.RiskReward = avgWin / math.Abs(avgLoss)
	}
	s.Expectancy = float64(s.Winners)/n*avgWin + float64(s.Losers)/n*avgLoss
	return s
}

func notional(tr domain.TradeRecord, catalog *instrument.Catalog) float64 {
	mult := 1.0
	if catalog != nil {
		if inst, err := catalog.Lookup(tr.Ticker); err == nil {
			mult = inst.Multiplier.InexactFloat64()
		}
	}
	v := tr.EntryPrice.InexactFloat64() * float64(tr.Qty) * mult
	if v == 0 {
		return 1
	}
	return v
}

// drawdownSeries is the running peak of cumulative profit minus the
// cumulative profit, trade by trade.
func drawdownSeries(profits []float64) []float64 {
	out := make([]float64, len(profits))
	cum, peak := 0.0, math.Inf(-1)
	for i, p := range profits {
		cum += p
		peak = math.Max(peak, cum)
		out[i] = peak - cum
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation; it is 0 below two samples.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func maxOf(xs []float64) float64 {
	out := 0.0
	for _, x := range xs {
		out = math.Max(out, x)
	}
	return out
}
