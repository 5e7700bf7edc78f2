// Package app wires configuration into the catalog, stores, bar source and
// backtester that the barsim commands share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"barsim/internal/broker"
	"barsim/internal/config"
	"barsim/internal/engine"
	"barsim/internal/feed"
	"barsim/internal/instrument"
	"barsim/internal/store"
	"barsim/internal/strategy"
	"barsim/internal/strategy/builtins"
	"barsim/internal/util"
)

// Deps holds the long-lived dependencies built from a Config.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Catalog  *instrument.Catalog
	Parquet  *store.ParquetStore
	SQLite   *store.SQLiteStore // nil without storage.sqlite_path
	Source   broker.BarSource
	Calendar *util.TradingCalendar
	Registry *strategy.Registry
}

// Wire builds Deps. The returned cleanup closes what Wire opened.
func Wire(cfg *config.Config, logger *slog.Logger) (*Deps, func(), error) {
	d := &Deps{
		Config:  cfg,
		Logger:  logger,
		Parquet: store.NewParquetStore(cfg.Storage.DataDir),
	}
	cleanup := func() {
		if d.SQLite != nil {
			if err := d.SQLite.Close(); err != nil {
				logger.Error("closing sqlite", "err", err)
			}
		}
	}

	if cfg.Backtest.Contracts == "" {
		return nil, cleanup, errors.New("backtest.contracts is not set")
	}
	cat, err := instrument.LoadFile(cfg.Backtest.Contracts)
	if err != nil {
		return nil, cleanup, err
	}
	d.Catalog = cat

	if cfg.Storage.SQLitePath != "" {
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, cleanup, err
		}
		d.SQLite = s
	}

	switch cfg.Backtest.Source {
	case "csv":
		d.Source = broker.CSVSource{}
	case "parquet":
		d.Source = broker.StoreSource{Store: d.Parquet}
	case "sqlite":
		if d.SQLite == nil {
			return nil, cleanup, errors.New("backtest.source sqlite needs storage.sqlite_path")
		}
		d.Source = broker.StoreSource{Store: d.SQLite}
	default:
		return nil, cleanup, fmt.Errorf("unknown bar source %q", cfg.Backtest.Source)
	}

	if d.Calendar, err = util.USRegularHours(); err != nil {
		return nil, cleanup, err
	}

	d.Registry = strategy.NewRegistry()
	builtins.Register(d.Registry)
	return d, cleanup, nil
}

// EngineConfig converts the backtest section into an engine.Config.
func EngineConfig(b config.BacktestConfig) (engine.Config, error) {
	cash, err := b.Cash()
	if err != nil {
		return engine.Config{}, err
	}
	fill, err := engine.ParseMarketFill(b.MarketFill)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		InitialCash:  cash,
		MarketFill:   fill,
		OrderIDStart: b.OrderIDStart,
		ExecIDStart:  b.ExecIDStart,
	}, nil
}

// RunConfigs expands the backtest section into one run per symbol. An
// empty symbol list means every catalog symbol.
func (d *Deps) RunConfigs() ([]strategy.RunConfig, error) {
	b := d.Config.Backtest
	if b.Strategy == "" {
		return nil, errors.New("backtest.strategy is not set")
	}
	ec, err := EngineConfig(b)
	if err != nil {
		return nil, err
	}
	symbols := b.Symbols
	if len(symbols) == 0 {
		symbols = d.Catalog.Symbols()
	}

	runs := make([]strategy.RunConfig, 0, len(symbols))
	for _, sym := range symbols {
		runs = append(runs, strategy.RunConfig{
			Strategy: b.Strategy,
			Params:   b.Params,
			Request: feed.HistoricalRequest{
				Symbol:       sym,
				Duration:     b.Duration,
				BarSize:      b.BarSize,
				UseRTH:       b.UseRTH,
				KeepUpToDate: b.KeepUpToDate,
			},
			Engine: ec,
			Risk: strategy.RiskLimits{
				MaxPositionPct:  d.Config.Risk.MaxPositionPct,
				MaxDailyLossPct: d.Config.Risk.MaxDailyLossPct,
			},
			RiskFreeRate: b.RiskFreeRate,
		})
	}
	return runs, nil
}

// Backtester builds a backtester with pacing, the session calendar and, when
// SQLite is configured, a per-run journal observer.
func (d *Deps) Backtester(ctx context.Context, extra ...strategy.BacktestOption) *strategy.Backtester {
	opts := []strategy.BacktestOption{
		strategy.WithLogger(d.Logger),
		strategy.WithCalendar(d.Calendar),
		strategy.WithParallelism(d.Config.Backtest.Parallelism),
	}
	if p := strategy.NewPacer(d.Config.Pacing.BarsPerSecond, d.Config.Pacing.Burst); p != nil {
		opts = append(opts, strategy.WithPacer(p))
	}
	if d.SQLite != nil {
		opts = append(opts, strategy.WithObservers(func(runID string, _ strategy.RunConfig) engine.Observer {
			return store.NewRunJournal(ctx, d.SQLite, runID, d.Catalog, d.Logger)
		}))
	}
	opts = append(opts, extra...)
	return strategy.NewBacktester(d.Catalog, d.Source, d.Registry, opts...)
}

// Persist writes a finished run: its trade ledger to Parquet and, when
// SQLite is configured, its header and signals to the run journal.
func (d *Deps) Persist(ctx context.Context, res *strategy.BacktestResult) error {
	if err := d.Parquet.WriteTrades(ctx, res.RunID, res.Trades); err != nil {
		return err
	}
	if d.SQLite == nil {
		return nil
	}
	if err := d.SQLite.SaveRun(ctx, RunRecord(res)); err != nil {
		return err
	}
	for _, sig := range res.Signals {
		if err := d.SQLite.SaveSignal(ctx, res.RunID, sig); err != nil {
			return err
		}
	}
	return nil
}

// RunRecord projects a result onto the journal header.
func RunRecord(res *strategy.BacktestResult) store.RunRecord {
	return store.RunRecord{
		ID:          res.RunID,
		Strategy:    res.Strategy,
		Symbol:      res.Symbol,
		InitialCash: res.Account.InitialCash,
		Equity:      res.Account.Equity,
		TotalReturn: res.TotalReturn,
		Trades:      res.TotalTrades,
		Bars:        res.Bars,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
	}
}
