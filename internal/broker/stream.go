package broker

import (
	"context"
	"io"

	"barsim/internal/domain"
	"barsim/internal/engine"
	"barsim/internal/feed"
)

// BarStream delivers the bars of a historical request after the preload
// window. Each call to Next applies exactly one bar to the engine, so a
// caller that places orders between calls sees them matched on the
// following bar.
type BarStream struct {
	broker  *SimulatorBroker
	symbol  string
	preload []domain.Bar
	live    *feed.SliceFeed
}

// Symbol returns the streamed instrument.
func (s *BarStream) Symbol() string { return s.symbol }

// Preloaded returns the historical window that was applied when the stream
// was opened.
func (s *BarStream) Preloaded() []domain.Bar { return s.preload }

// Peek returns the bar the next call to Next will apply, or false once the
// stream is exhausted.
func (s *BarStream) Peek() (domain.Bar, bool) {
	if s.live == nil {
		return domain.Bar{}, false
	}
	return s.live.Peek()
}

// Next applies the next bar and returns it with the fills it produced. It
// returns io.EOF when the stream is exhausted and any engine error (such as
// domain.ErrFeedOrder) as fatal.
func (s *BarStream) Next(ctx context.Context) (domain.Bar, []engine.Fill, error) {
	if s.live == nil {
		return domain.Bar{}, nil, io.EOF
	}
	bar, err := s.live.Next(ctx)
	if err != nil {
		return domain.Bar{}, nil, err
	}
	fills, err := s.broker.step(bar)
	if err != nil {
		return domain.Bar{}, nil, err
	}
	return bar, fills, nil
}
