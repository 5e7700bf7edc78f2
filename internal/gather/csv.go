package gather

import (
	"context"
	"fmt"
	"log/slog"

	"barsim/internal/broker"
	"barsim/internal/instrument"
	"barsim/internal/store"
)

var _ Gatherer = (*CSVImporter)(nil)

// CSVImporter copies the vendor CSV file of each catalog instrument into
// the bar stores, so later runs can read them by date range.
type CSVImporter struct {
	catalog *instrument.Catalog
	symbols []string
	stores  []store.BarStore
	log     *slog.Logger
}

// NewCSVImporter imports symbols, or every catalog symbol with a data file
// when symbols is empty.
func NewCSVImporter(catalog *instrument.Catalog, symbols []string, stores ...store.BarStore) *CSVImporter {
	return &CSVImporter{
		catalog: catalog,
		symbols: symbols,
		stores:  stores,
		log:     slog.Default().With("gatherer", "csv-import"),
	}
}

// Name returns the gatherer identifier.
func (g *CSVImporter) Name() string { return "csv-import" }

// Run imports each symbol in turn. Instruments without a data file are
// skipped when importing the whole catalog and fail when named explicitly.
func (g *CSVImporter) Run(ctx context.Context) error {
	symbols, explicit := g.symbols, true
	if len(symbols) == 0 {
		symbols, explicit = g.catalog.Symbols(), false
	}

	var src broker.CSVSource
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		inst, err := g.catalog.Lookup(sym)
		if err != nil {
			return err
		}
		if inst.DataFile == "" && !explicit {
			g.log.Debug("no data file", "symbol", inst.Symbol)
			continue
		}

		bars, err := src.LoadBars(ctx, inst)
		if err != nil {
			return fmt.Errorf("importing %s: %w", inst.Symbol, err)
		}
		if err := writeAll(ctx, g.stores, bars); err != nil {
			return fmt.Errorf("storing %s: %w", inst.Symbol, err)
		}
		g.log.Info("imported", "symbol", inst.Symbol, "bars", len(bars), "file", inst.DataFile)
	}
	return nil
}
