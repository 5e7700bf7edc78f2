package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"barsim/internal/api"
	"barsim/internal/app"
	"barsim/internal/config"
	"barsim/internal/util"
)

func main() {
	cfgFlag := flag.String("config", "", "config file (default $BARSIM_CONFIG or "+config.DefaultPath+")")
	exitAfterReplay := flag.Bool("exit-after-replay", false, "stop serving once every bar has been replayed")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	deps, cleanup, err := app.Wire(cfg, logger)
	defer cleanup()
	if err != nil {
		log.Fatalf("wiring: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := deps.NewSession(ctx)
	if err != nil {
		log.Fatalf("creating session: %v", err)
	}
	if err := sess.Open(ctx); err != nil {
		log.Fatalf("opening streams: %v", err)
	}

	hub := api.NewHub(logger)
	sess.Broker.Subscribe(hub)

	var opts []api.Option
	opts = append(opts, api.WithLogger(logger))
	if deps.SQLite != nil {
		opts = append(opts, api.WithJournal(deps.SQLite))
	}
	srv := api.NewServer(cfg.Server, sess.Broker, hub, opts...)

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error {
		if err := sess.Replay(gctx); err != nil {
			return err
		}
		slog.Info("replay complete", "session", sess.ID)
		if *exitAfterReplay {
			stop()
		}
		return nil
	})

	slog.Info("barsim-server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "session", sess.ID)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("server error: %v", err)
	}
}
