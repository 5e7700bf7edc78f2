package strategy

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer throttles bar delivery to a fixed rate so a replay can drive a UI
// or downstream consumer in something close to real time. A nil Pacer does
// not wait.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer releasing barsPerSecond bars per second, or nil
// when barsPerSecond is not positive.
func NewPacer(barsPerSecond float64, burst int) *Pacer {
	if barsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(barsPerSecond), burst)}
}

// Wait blocks until the next bar may be delivered.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}
