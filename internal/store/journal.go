package store

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
	"barsim/internal/instrument"
)

// RunJournal writes the order and execution events of one run to a Journal
// as they happen. It satisfies engine.Observer. Write failures are logged
// and counted; they never interrupt the replay.
type RunJournal struct {
	ctx     context.Context
	journal Journal
	runID   string
	catalog *instrument.Catalog
	log     *slog.Logger
	errs    int
}

// NewRunJournal creates a RunJournal for runID. The catalog supplies the
// multiplier used for market values; a nil catalog means multiplier 1.
func NewRunJournal(ctx context.Context, j Journal, runID string, catalog *instrument.Catalog, log *slog.Logger) *RunJournal {
	if log == nil {
		log = slog.Default()
	}
	return &RunJournal{
		ctx:     ctx,
		journal: j,
		runID:   runID,
		catalog: catalog,
		log:     log.With("component", "journal", "run_id", runID),
	}
}

// OnOrderStatus persists the latest state of o.
func (r *RunJournal) OnOrderStatus(o domain.Order) {
	if err := r.journal.SaveOrder(r.ctx, r.runID, o); err != nil {
		r.errs++
		r.log.Error("journal order", "order_id", o.ID, "err", err)
	}
}

// OnExecution persists a fill with its commission and market value.
func (r *RunJournal) OnExecution(exec domain.Execution, report domain.CommissionReport) {
	mult := decimal.NewFromInt(1)
	if r.catalog != nil {
		if inst, err := r.catalog.Lookup(exec.Symbol); err == nil {
			mult = inst.Multiplier
		}
	}
	rec := ExecutionRecord{
		RunID:       r.runID,
		Execution:   exec,
		Commission:  report.Commission,
		RealizedPnL: report.RealizedPnL,
		Multiplier:  mult,
		MarketValue: MarketValue(exec, mult),
	}
	if err := r.journal.SaveExecution(r.ctx, rec); err != nil {
		r.errs++
		r.log.Error("journal execution", "exec_id", exec.ID, "err", err)
	}
}

// Errors returns how many writes failed.
func (r *RunJournal) Errors() int { return r.errs }
