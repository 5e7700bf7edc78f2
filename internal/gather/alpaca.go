package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"barsim/internal/domain"
	"barsim/internal/feed"
	"barsim/internal/store"
	"barsim/internal/util"
)

var _ Gatherer = (*AlpacaBarGatherer)(nil)

// BarClient is the part of the Alpaca market data client the gatherer uses.
type BarClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// NewAlpacaClient creates a market data client. An empty dataURL uses the
// SDK default endpoint.
func NewAlpacaClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// AlpacaBarConfig configures an AlpacaBarGatherer.
type AlpacaBarConfig struct {
	Symbols         []string
	Range           DateRange
	Timeframe       string // bar size, e.g. "5 mins"
	Feed            string // "sip" or "iex"
	MaxWorkers      int
	RateLimitPerMin int
	MaxRetries      int
}

// AlpacaBarGatherer downloads historical bars per symbol and writes them to
// the bar stores. Requests are paced by a shared rate limiter and retried
// with backoff.
type AlpacaBarGatherer struct {
	client    BarClient
	stores    []store.BarStore
	cfg       AlpacaBarConfig
	timeframe marketdata.TimeFrame
	limiter   *rate.Limiter
	backoff   time.Duration
	log       *slog.Logger
}

// NewAlpacaBarGatherer validates cfg and creates the gatherer.
func NewAlpacaBarGatherer(client BarClient, cfg AlpacaBarConfig, stores ...store.BarStore) (*AlpacaBarGatherer, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("alpaca gatherer: no symbols")
	}
	size, err := feed.ParseBarSize(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	tf, err := toTimeFrame(size)
	if err != nil {
		return nil, err
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	limit := rate.Inf
	if cfg.RateLimitPerMin > 0 {
		limit = rate.Limit(float64(cfg.RateLimitPerMin) / 60)
	}
	return &AlpacaBarGatherer{
		client:    client,
		stores:    stores,
		cfg:       cfg,
		timeframe: tf,
		limiter:   rate.NewLimiter(limit, 1),
		backoff:   time.Second,
		log:       slog.Default().With("gatherer", "alpaca-bars"),
	}, nil
}

// Name returns the gatherer identifier.
func (g *AlpacaBarGatherer) Name() string { return "alpaca-bars" }

// Run fetches every symbol, MaxWorkers at a time. A symbol that keeps
// failing is logged and skipped; Run reports how many failed.
func (g *AlpacaBarGatherer) Run(ctx context.Context) error {
	var (
		failed atomic.Int64
		total  atomic.Int64
		start  = time.Now()
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.MaxWorkers)
	for _, sym := range g.cfg.Symbols {
		sym := strings.ToUpper(sym)
		eg.Go(func() error {
			bars, err := g.fetch(ctx, sym)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				g.log.Error("fetch failed", "symbol", sym, "err", err)
				return nil
			}
			if len(bars) == 0 {
				g.log.Warn("no bars", "symbol", sym)
				return nil
			}
			if err := writeAll(ctx, g.stores, bars); err != nil {
				return fmt.Errorf("storing %s: %w", sym, err)
			}
			total.Add(int64(len(bars)))
			g.log.Info("symbol done", "symbol", sym, "bars", len(bars))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.log.Info("complete",
		"symbols", len(g.cfg.Symbols),
		"failed", failed.Load(),
		"bars", total.Load(),
		"elapsed", time.Since(start).Round(time.Second),
	)
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("alpaca gatherer: %d of %d symbols failed", n, len(g.cfg.Symbols))
	}
	return nil
}

func (g *AlpacaBarGatherer) fetch(ctx context.Context, symbol string) ([]domain.Bar, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame: g.timeframe,
		Start:     g.cfg.Range.Start,
		End:       g.cfg.Range.End,
		Feed:      feedName(g.cfg.Feed),
	}

	var raw []marketdata.Bar
	err := util.Retry(ctx, g.cfg.MaxRetries, g.backoff, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		bars, err := g.client.GetBars(symbol, req)
		if err != nil {
			return err
		}
		raw = bars
		return nil
	})
	if err != nil {
		return nil, err
	}
	return convertBars(symbol, raw), nil
}

func convertBars(symbol string, raw []marketdata.Bar) []domain.Bar {
	bars := make([]domain.Bar, len(raw))
	for i, ab := range raw {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: ab.Timestamp.UTC(),
			Open:      decimal.NewFromFloat(ab.Open),
			High:      decimal.NewFromFloat(ab.High),
			Low:       decimal.NewFromFloat(ab.Low),
			Close:     decimal.NewFromFloat(ab.Close),
			Volume:    int64(ab.Volume),
			Count:     int64(i),
		}
	}
	return bars
}

// toTimeFrame maps a bar size onto the largest whole Alpaca unit.
func toTimeFrame(size time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case size%(24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(size/(24*time.Hour)), marketdata.Day), nil
	case size%time.Hour == 0:
		return marketdata.NewTimeFrame(int(size/time.Hour), marketdata.Hour), nil
	case size%time.Minute == 0:
		return marketdata.NewTimeFrame(int(size/time.Minute), marketdata.Min), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("alpaca has no bars of %s", size)
}

func feedName(s string) marketdata.Feed {
	switch strings.ToLower(s) {
	case "iex":
		return marketdata.IEX
	case "otc":
		return marketdata.OTC
	default:
		return marketdata.SIP
	}
}
