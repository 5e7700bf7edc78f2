package broker

import (
	"context"
	"fmt"
	"time"

	"barsim/internal/domain"
	"barsim/internal/feed"
)

// BarSource loads the full bar history of an instrument, oldest first.
type BarSource interface {
	LoadBars(ctx context.Context, inst domain.Instrument) ([]domain.Bar, error)
}

// BarSourceFunc adapts a function to BarSource.
type BarSourceFunc func(ctx context.Context, inst domain.Instrument) ([]domain.Bar, error)

// LoadBars implements BarSource.
func (f BarSourceFunc) LoadBars(ctx context.Context, inst domain.Instrument) ([]domain.Bar, error) {
	return f(ctx, inst)
}

// CSVSource reads the vendor CSV named by the instrument's data file.
// Timestamps are read in the instrument's time zone when it has one.
type CSVSource struct{}

// LoadBars implements BarSource.
func (CSVSource) LoadBars(_ context.Context, inst domain.Instrument) ([]domain.Bar, error) {
	if inst.DataFile == "" {
		return nil, fmt.Errorf("%w: %s has no data file", domain.ErrUnknownInstrument, inst.Symbol)
	}
	loc := time.UTC
	if inst.TimeZone != "" {
		l, err := time.LoadLocation(inst.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("instrument %s time zone: %w", inst.Symbol, err)
		}
		loc = l
	}
	return feed.LoadCSV(inst.DataFile, inst.Symbol, loc)
}

// BarReader is the read side of a bar store.
type BarReader interface {
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// StoreSource loads bars from a bar store over [Start, End]. Zero bounds
// mean unbounded.
type StoreSource struct {
	Store      BarReader
	Start, End time.Time
}

// LoadBars implements BarSource.
func (s StoreSource) LoadBars(ctx context.Context, inst domain.Instrument) ([]domain.Bar, error) {
	end := s.End
	if end.IsZero() {
		end = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return s.Store.ReadBars(ctx, inst.Symbol, s.Start, end)
}
