package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// RiskManager enforces pre-trade limits on orders that add exposure. Orders
// that only reduce or close a position always pass.
type RiskManager struct {
	maxPositionPct  decimal.Decimal
	maxDailyLossPct decimal.Decimal

	day    string
	dayPnL decimal.Decimal
}

// NewRiskManager creates a RiskManager with the specified risk thresholds.
//
//   - maxPositionPct: maximum initial margin of one position as a fraction of
//     equity (e.g. 0.10 for 10%).
//   - maxDailyLossPct: realised loss per trading day, as a fraction of equity,
//     after which new exposure is refused (e.g. 0.02 for 2%).
//
// A zero threshold disables that check.
func NewRiskManager(maxPositionPct, maxDailyLossPct float64) *RiskManager {
	return &RiskManager{
		maxPositionPct:  decimal.NewFromFloat(maxPositionPct),
		maxDailyLossPct: decimal.NewFromFloat(maxDailyLossPct),
	}
}

// CheckOrder evaluates req against the current position and account.
func (rm *RiskManager) CheckOrder(req domain.OrderRequest, inst domain.Instrument, pos domain.Position, acct domain.AccountInfo, now time.Time) error {
	next := pos.Qty + req.Qty*req.Side.Sign()
	if abs(next) <= abs(pos.Qty) {
		return nil
	}

	if rm.maxPositionPct.IsPositive() {
		margin := inst.InitMargin.Mul(decimal.NewFromInt(abs(next)))
		limit := acct.Equity.Mul(rm.maxPositionPct)
		if margin.GreaterThan(limit) {
			return fmt.Errorf("%w: %s margin %s exceeds %s of equity",
				domain.ErrRiskRejected, req.Symbol, margin.StringFixed(2), limit.StringFixed(2))
		}
	}

	if rm.maxDailyLossPct.IsPositive() && rm.day == dayKey(now) && rm.dayPnL.IsNegative() {
		limit := acct.Equity.Mul(rm.maxDailyLossPct)
		if rm.dayPnL.Neg().GreaterThanOrEqual(limit) {
			return fmt.Errorf("%w: daily loss %s reached limit %s",
				domain.ErrRiskRejected, rm.dayPnL.Neg().StringFixed(2), limit.StringFixed(2))
		}
	}
	return nil
}

// RecordFill adds the net P&L of a fill to the running total for its day.
func (rm *RiskManager) RecordFill(at time.Time, pnl decimal.Decimal) {
	key := dayKey(at)
	if key != rm.day {
		rm.day = key
		rm.dayPnL = decimal.Zero
	}
	rm.dayPnL = rm.dayPnL.Add(pnl)
}

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }
