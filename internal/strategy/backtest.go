package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"barsim/internal/broker"
	"barsim/internal/domain"
	"barsim/internal/engine"
	"barsim/internal/feed"
	"barsim/internal/instrument"
	"barsim/internal/stats"
	"barsim/internal/util"
)

// RiskLimits configures the optional pre-trade risk manager. Zero values
// disable the corresponding check.
type RiskLimits struct {
	MaxPositionPct  float64
	MaxDailyLossPct float64
}

// RunConfig describes one backtest run over one instrument.
type RunConfig struct {
	Strategy     string
	Params       map[string]string
	Request      feed.HistoricalRequest
	Engine       engine.Config
	Risk         RiskLimits
	RiskFreeRate float64
}

// BacktestResult holds the outcome of a backtest run.
type BacktestResult struct {
	RunID    string `json:"run_id"`
	Strategy string `json:"strategy"`
	Symbol   string `json:"symbol"`

	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`

	Account    domain.AccountInfo       `json:"account"`
	Summary    stats.Summary            `json:"summary"`
	Trades     []domain.TradeRecord     `json:"trades"`
	OpenTrades []domain.TradeRecord     `json:"open_trades"`
	Orders     []domain.Order           `json:"orders"`
	Executions []broker.ExecutionReport `json:"executions"`
	Signals    []domain.Signal          `json:"signals"`
	Bars       int                      `json:"bars"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
}

// ObserverFactory builds an engine observer for a run, e.g. a journal
// writer keyed by run id.
type ObserverFactory func(runID string, rc RunConfig) engine.Observer

// BacktestOption customises a Backtester.
type BacktestOption func(*Backtester)

// WithPacer throttles replay.
func WithPacer(p *Pacer) BacktestOption {
	return func(bt *Backtester) { bt.pacer = p }
}

// WithCalendar sets the session calendar for UseRTH requests.
func WithCalendar(cal *util.TradingCalendar) BacktestOption {
	return func(bt *Backtester) { bt.calendar = cal }
}

// WithObservers attaches per-run engine observers.
func WithObservers(fs ...ObserverFactory) BacktestOption {
	return func(bt *Backtester) { bt.observers = append(bt.observers, fs...) }
}

// WithParallelism bounds how many runs RunAll executes at once.
func WithParallelism(n int) BacktestOption {
	return func(bt *Backtester) { bt.parallelism = n }
}

// WithLogger sets the base logger; each run adds its run id.
func WithLogger(l *slog.Logger) BacktestOption {
	return func(bt *Backtester) { bt.log = l }
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics. Each run owns its engine, broker and account.
type Backtester struct {
	catalog     *instrument.Catalog
	source      broker.BarSource
	registry    *Registry
	pacer       *Pacer
	calendar    *util.TradingCalendar
	observers   []ObserverFactory
	parallelism int
	log         *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from source and looks
// up strategies in the provided registry.
func NewBacktester(catalog *instrument.Catalog, source broker.BarSource, registry *Registry, opts ...BacktestOption) *Backtester {
	bt := &Backtester{
		catalog:  catalog,
		source:   source,
		registry: registry,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(bt)
	}
	return bt
}

// Run executes one backtest. The historical request's preload window warms
// the strategy up; every bar after it is replayed with one strategy
// callback per bar.
func (bt *Backtester) Run(ctx context.Context, rc RunConfig) (*BacktestResult, error) {
	runID := uuid.NewString()
	log := bt.log.With("run_id", runID, "strategy", rc.Strategy, "symbol", rc.Request.Symbol)

	strat, err := bt.registry.New(rc.Strategy, rc.Params)
	if err != nil {
		return nil, err
	}

	engOpts := []engine.Option{engine.WithLogger(log)}
	if rc.Risk.MaxPositionPct > 0 || rc.Risk.MaxDailyLossPct > 0 {
		engOpts = append(engOpts, engine.WithRiskManager(engine.NewRiskManager(rc.Risk.MaxPositionPct, rc.Risk.MaxDailyLossPct)))
	}
	eng := engine.New(rc.Engine, bt.catalog, engOpts...)

	brkOpts := []broker.SimulatorOption{broker.WithLogger(log)}
	if bt.calendar != nil {
		brkOpts = append(brkOpts, broker.WithCalendar(bt.calendar))
	}
	brk := broker.NewSimulatorBroker(eng, bt.catalog, bt.source, brkOpts...)

	ledger := stats.NewLedger(bt.catalog)
	brk.Subscribe(ledger)
	for _, f := range bt.observers {
		if obs := f(runID, rc); obs != nil {
			brk.Subscribe(obs)
		}
	}

	res := &BacktestResult{
		RunID:     runID,
		Strategy:  strat.Name(),
		Symbol:    rc.Request.Symbol,
		StartedAt: time.Now().UTC(),
	}

	req := rc.Request
	req.KeepUpToDate = true
	stream, err := brk.RequestHistoricalBars(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, b := range stream.Preloaded() {
		ledger.OnBar(b)
	}
	if err := strat.Init(ctx, stream.Preloaded()); err != nil {
		return nil, fmt.Errorf("initialising %s: %w", strat.Name(), err)
	}
	log.Info("backtest started", "preload", len(stream.Preloaded()))

	var nextSignal int64 = 1
	for {
		if err := bt.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		bar, fills, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		ledger.OnBar(bar)
		res.Bars++

		var signals []domain.Signal
		for _, f := range fills {
			s, err := strat.OnTrade(ctx, f.Execution)
			if err != nil {
				return nil, fmt.Errorf("%s.OnTrade: %w", strat.Name(), err)
			}
			signals = append(signals, s...)
		}
		s, err := strat.OnBar(ctx, bar, brk.Position(bar.Symbol))
		if err != nil {
			return nil, fmt.Errorf("%s.OnBar: %w", strat.Name(), err)
		}
		signals = append(signals, s...)

		for _, sig := range signals {
			sig.ID = nextSignal
			nextSignal++
			sig.StrategyID = strat.Name()
			sig.CreatedAt = bar.Timestamp
			if sig.Symbol == "" {
				sig.Symbol = bar.Symbol
			}
			res.Signals = append(res.Signals, sig)

			if _, err := brk.PlaceOrder(ctx, SignalToRequest(sig)); err != nil {
				if errors.Is(err, domain.ErrRiskRejected) {
					continue
				}
				return nil, err
			}
		}
	}

	bt.finish(ctx, res, brk, ledger, rc)
	log.Info("backtest finished",
		"bars", res.Bars,
		"trades", res.TotalTrades,
		"equity", res.Account.Equity.StringFixed(2),
		"total_return", res.TotalReturn,
	)
	return res, nil
}

func (bt *Backtester) finish(ctx context.Context, res *BacktestResult, brk *broker.SimulatorBroker, ledger *stats.Ledger, rc RunConfig) {
	res.Account, _ = brk.GetAccount(ctx)
	res.Executions, _ = brk.GetExecutions(ctx)
	done, _ := brk.GetCompletedOrders(ctx)
	open, _ := brk.GetOpenOrders(ctx)
	res.Orders = append(done, open...)

	res.Trades = ledger.Trades()
	res.OpenTrades = ledger.OpenTrades()
	res.Summary = stats.Summarize(res.Trades, bt.catalog, rc.RiskFreeRate)

	if !res.Account.InitialCash.IsZero() {
		res.TotalReturn = res.Account.Equity.Sub(res.Account.InitialCash).
			Div(res.Account.InitialCash).InexactFloat64()
	}
	res.SharpeRatio = res.Summary.SharpeRatio
	res.MaxDrawdown = res.Summary.MaxDrawdown
	res.TotalTrades = res.Summary.TotalTrades
	res.WinRate = res.Summary.WinRatio
	res.ProfitFactor = res.Summary.ProfitFactor
	res.FinishedAt = time.Now().UTC()
}

// RunAll executes independent runs concurrently and returns their results
// in input order. The first failure cancels the remaining runs.
func (bt *Backtester) RunAll(ctx context.Context, runs []RunConfig) ([]*BacktestResult, error) {
	results := make([]*BacktestResult, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	if bt.parallelism > 0 {
		g.SetLimit(bt.parallelism)
	}
	for i, rc := range runs {
		g.Go(func() error {
			res, err := bt.Run(gctx, rc)
			if err != nil {
				return fmt.Errorf("%s on %s: %w", rc.Strategy, rc.Request.Symbol, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Combined sums the accounts of independent runs into one portfolio view.
func Combined(results []*BacktestResult) domain.AccountInfo {
	var out domain.AccountInfo
	for _, r := range results {
		a := r.Account
		out.InitialCash = out.InitialCash.Add(a.InitialCash)
		out.Cash = out.Cash.Add(a.Cash)
		out.RealizedPnL = out.RealizedPnL.Add(a.RealizedPnL)
		out.Commissions = out.Commissions.Add(a.Commissions)
		out.UnrealizedPnL = out.UnrealizedPnL.Add(a.UnrealizedPnL)
		out.Equity = out.Equity.Add(a.Equity)
		out.MarginUsed = out.MarginUsed.Add(a.MarginUsed)
		out.AvailableFunds = out.AvailableFunds.Add(a.AvailableFunds)
	}
	return out
}
