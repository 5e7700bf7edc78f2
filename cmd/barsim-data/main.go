package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"barsim/internal/config"
	"barsim/internal/feed"
	"barsim/internal/gather"
	"barsim/internal/instrument"
	"barsim/internal/store"
	"barsim/internal/util"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: barsim-data [-config path] <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  import     Import vendor CSV files named in the contracts file\n")
	fmt.Fprintf(os.Stderr, "  alpaca     Download historical bars from Alpaca\n")
	fmt.Fprintf(os.Stderr, "  symbols    List symbols in the Parquet bar store\n")
	fmt.Fprintf(os.Stderr, "  export     Write one symbol's stored bars as CSV to stdout\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	cfgFlag := flag.String("config", "", "config file (default $BARSIM_CONFIG or "+config.DefaultPath+")")
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides gather.symbols")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(config.ResolvePath(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *symbols != "" {
		cfg.Gather.Symbols = strings.Split(*symbols, ",")
	}

	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	stores := []store.BarStore{pstore}
	if cfg.Storage.SQLitePath != "" {
		sq, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite: %v", err)
		}
		defer sq.Close()
		stores = append(stores, sq)
	}

	switch flag.Arg(0) {
	case "import":
		cat, err := instrument.LoadFile(cfg.Backtest.Contracts)
		if err != nil {
			log.Fatalf("loading contracts: %v", err)
		}
		run(ctx, gather.NewCSVImporter(cat, cfg.Gather.Symbols, stores...))

	case "alpaca":
		rng, err := gather.ParseDateRange(cfg.Gather.StartDate, cfg.Gather.EndDate)
		if err != nil {
			log.Fatalf("gather dates: %v", err)
		}
		client := gather.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
		g, err := gather.NewAlpacaBarGatherer(client, gather.AlpacaBarConfig{
			Symbols:         cfg.Gather.Symbols,
			Range:           rng,
			Timeframe:       cfg.Gather.Timeframe,
			Feed:            cfg.Alpaca.Feed,
			MaxWorkers:      cfg.Gather.MaxWorkers,
			RateLimitPerMin: cfg.Gather.RateLimitPerMin,
			MaxRetries:      cfg.Gather.MaxRetries,
		}, stores...)
		if err != nil {
			log.Fatalf("alpaca gatherer: %v", err)
		}
		run(ctx, g)

	case "symbols":
		syms, err := pstore.ListSymbols(ctx)
		if err != nil {
			log.Fatalf("listing symbols: %v", err)
		}
		for _, s := range syms {
			fmt.Println(s)
		}

	case "export":
		if flag.NArg() < 2 {
			log.Fatalf("export needs a symbol")
		}
		bars, err := pstore.ReadBars(ctx, flag.Arg(1), time.Time{}, time.Now())
		if err != nil {
			log.Fatalf("reading bars: %v", err)
		}
		if err := feed.WriteCSV(os.Stdout, bars); err != nil {
			log.Fatalf("writing csv: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}
}

func run(ctx context.Context, g gather.Gatherer) {
	slog.Info("starting gatherer", "name", g.Name())
	start := time.Now()
	if err := g.Run(ctx); err != nil {
		log.Fatalf("%s: %v", g.Name(), err)
	}
	slog.Info("gatherer finished", "name", g.Name(), "elapsed", time.Since(start).Round(time.Millisecond))
}
