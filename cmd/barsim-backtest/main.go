package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"barsim/internal/app"
	"barsim/internal/config"
	"barsim/internal/domain"
	"barsim/internal/stats"
	"barsim/internal/strategy"
	"barsim/internal/util"
)

// runReport is the per-run section of the printed report.
type runReport struct {
	RunID       string             `json:"run_id"`
	Strategy    string             `json:"strategy"`
	Symbol      string             `json:"symbol"`
	Bars        int                `json:"bars"`
	TotalReturn float64            `json:"total_return"`
	Account     domain.AccountInfo `json:"account"`
	Summary     stats.Summary      `json:"summary"`
	OpenTrades  int                `json:"open_trades"`
}

type report struct {
	Runs     []runReport        `json:"runs"`
	Combined domain.AccountInfo `json:"combined"`
}

func main() {
	cfgFlag := flag.String("config", "", "config file (default $BARSIM_CONFIG or "+config.DefaultPath+")")
	strat := flag.String("strategy", "", "strategy name, overrides backtest.strategy")
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides backtest.symbols")
	out := flag.String("out", "", "write the full JSON results here instead of a summary on stdout")
	noPersist := flag.Bool("no-persist", false, "skip writing trade ledgers and the run journal")
	list := flag.Bool("list", false, "list registered strategies and exit")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *strat != "" {
		cfg.Backtest.Strategy = *strat
	}
	if *symbols != "" {
		cfg.Backtest.Symbols = strings.Split(*symbols, ",")
	}

	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	deps, cleanup, err := app.Wire(cfg, logger)
	defer cleanup()
	if err != nil {
		log.Fatalf("wiring: %v", err)
	}
	if *list {
		for _, name := range deps.Registry.List() {
			fmt.Println(name)
		}
		return
	}

	runs, err := deps.RunConfigs()
	if err != nil {
		log.Fatalf("building runs: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting backtest", "strategy", cfg.Backtest.Strategy, "runs", len(runs), "source", cfg.Backtest.Source)
	results, err := deps.Backtester(ctx).RunAll(ctx, runs)
	if err != nil {
		log.Fatalf("backtest error: %v", err)
	}

	if !*noPersist {
		for _, res := range results {
			if err := deps.Persist(ctx, res); err != nil {
				log.Fatalf("persisting run %s: %v", res.RunID, err)
			}
		}
	}

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("creating %s: %v", *out, err)
		}
		defer f.Close()
		if err := writeJSON(f, results); err != nil {
			log.Fatalf("writing %s: %v", *out, err)
		}
		slog.Info("results written", "path", *out)
		return
	}
	if err := writeJSON(os.Stdout, summarize(results)); err != nil {
		log.Fatalf("writing report: %v", err)
	}
}

func summarize(results []*strategy.BacktestResult) report {
	rep := report{Combined: strategy.Combined(results)}
	for _, r := range results {
		rep.Runs = append(rep.Runs, runReport{
			RunID:       r.RunID,
			Strategy:    r.Strategy,
			Symbol:      r.Symbol,
			Bars:        r.Bars,
			TotalReturn: r.TotalReturn,
			Account:     r.Account,
			Summary:     r.Summary,
			OpenTrades:  len(r.OpenTrades),
		})
	}
	return rep
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
