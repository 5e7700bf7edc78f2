package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// DefaultExecIDStart keeps execution ids clear of order ids.
const DefaultExecIDStart int64 = 0x1_000_000_000

// Reporter issues execution ids and keeps the execution and commission
// history of a run.
type Reporter struct {
	nextID     int64
	executions []domain.Execution
	reports    []domain.CommissionReport
}

// NewReporter creates a Reporter whose first execution id is startID.
func NewReporter(startID int64) *Reporter {
	if startID <= 0 {
		startID = DefaultExecIDStart
	}
	return &Reporter{nextID: startID}
}

// Record emits the Execution and CommissionReport for a fill of qty at price.
// Commission is the instrument's per-contract rate times |qty|.
func (r *Reporter) Record(o domain.Order, inst domain.Instrument, price decimal.Decimal, qty int64, realized decimal.Decimal, at time.Time) (domain.Execution, domain.CommissionReport) {
	exec := domain.Execution{
		ID:      r.nextID,
		OrderID: o.ID,
		Symbol:  o.Symbol,
		Side:    o.Side,
		Qty:     qty,
		Price:   price,
		Time:    at,
	}
	r.nextID++
	report := domain.CommissionReport{
		ExecID:      exec.ID,
		Commission:  inst.Commission.Mul(decimal.NewFromInt(abs(qty))),
		RealizedPnL: realized,
	}
	r.executions = append(r.executions, exec)
	r.reports = append(r.reports, report)
	return exec, report
}

// Executions returns all executions in fill order.
func (r *Reporter) Executions() []domain.Execution {
	out := make([]domain.Execution, len(r.executions))
	copy(out, r.executions)
	return out
}

// CommissionReports returns the reports paired index-wise with Executions.
func (r *Reporter) CommissionReports() []domain.CommissionReport {
	out := make([]domain.CommissionReport, len(r.reports))
	copy(out, r.reports)
	return out
}
