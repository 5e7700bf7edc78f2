// Package gather fills the bar stores that backtests replay from: vendor
// CSV files named in the contract catalog, or historical bars downloaded
// from the Alpaca market data API.
package gather

import (
	"context"
	"fmt"
	"time"

	"barsim/internal/domain"
	"barsim/internal/store"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs the import and returns when it is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses YYYY-MM-DD bounds. An empty end means now.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return r, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	r.Start = s
	if end == "" {
		r.End = time.Now().UTC()
		return r, nil
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return r, fmt.Errorf("parsing end date %q: %w", end, err)
	}
	// inclusive of the whole end day
	r.End = e.Add(24*time.Hour - time.Nanosecond)
	if r.End.Before(r.Start) {
		return r, fmt.Errorf("end date %s before start date %s", end, start)
	}
	return r, nil
}

// writeAll writes bars to every store, stopping at the first failure.
func writeAll(ctx context.Context, stores []store.BarStore, bars []domain.Bar) error {
	for _, s := range stores {
		if err := s.WriteBars(ctx, bars); err != nil {
			return err
		}
	}
	return nil
}
