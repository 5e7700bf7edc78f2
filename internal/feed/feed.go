// Package feed supplies bars to the simulator. A Feed is pulled one bar at
// a time and reports exhaustion with io.EOF.
package feed

import (
	"context"
	"errors"
	"io"

	"barsim/internal/domain"
)

// Feed yields bars in non-decreasing timestamp order. Next returns io.EOF
// once no bars remain.
type Feed interface {
	Next(ctx context.Context) (domain.Bar, error)
}

// SliceFeed replays an in-memory slice of bars.
type SliceFeed struct {
	bars []domain.Bar
	pos  int
}

// NewSliceFeed returns a Feed over bars. The slice is not copied.
func NewSliceFeed(bars []domain.Bar) *SliceFeed {
	return &SliceFeed{bars: bars}
}

// Next implements Feed.
func (f *SliceFeed) Next(ctx context.Context) (domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bar{}, err
	}
	if f.pos >= len(f.bars) {
		return domain.Bar{}, io.EOF
	}
	b := f.bars[f.pos]
	f.pos++
	return b, nil
}

// Peek returns the next bar without consuming it.
func (f *SliceFeed) Peek() (domain.Bar, bool) {
	if f.pos >= len(f.bars) {
		return domain.Bar{}, false
	}
	return f.bars[f.pos], true
}

// Remaining reports how many bars have not been delivered yet.
func (f *SliceFeed) Remaining() int { return len(f.bars) - f.pos }

type filterFeed struct {
	src  Feed
	keep func(domain.Bar) bool
}

// Filter returns a Feed that skips bars for which keep returns false.
func Filter(src Feed, keep func(domain.Bar) bool) Feed {
	return &filterFeed{src: src, keep: keep}
}

func (f *filterFeed) Next(ctx context.Context) (domain.Bar, error) {
	for {
		b, err := f.src.Next(ctx)
		if err != nil {
			return domain.Bar{}, err
		}
		if f.keep(b) {
			return b, nil
		}
	}
}

// Collect drains f into a slice.
func Collect(ctx context.Context, f Feed) ([]domain.Bar, error) {
	var out []domain.Bar
	for {
		b, err := f.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
}
