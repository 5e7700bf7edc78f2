package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"barsim/internal/broker"
	"barsim/internal/domain"
	"barsim/internal/engine"
	"barsim/internal/store"
	"barsim/internal/strategy"
)

// Session is one shared simulator account driven by a bar replay, with
// orders arriving from outside (the HTTP API) rather than a strategy.
type Session struct {
	ID      string
	Broker  *broker.SimulatorBroker
	deps    *Deps
	journal *store.RunJournal
	streams []*broker.BarStream
}

// NewSession builds the engine and broker for an interactive replay. When
// SQLite is configured every order and execution is journaled under the
// session id.
func (d *Deps) NewSession(ctx context.Context) (*Session, error) {
	ec, err := EngineConfig(d.Config.Backtest)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	log := d.Logger.With("session", id)

	var engOpts []engine.Option
	engOpts = append(engOpts, engine.WithLogger(log))
	if r := d.Config.Risk; r.MaxPositionPct > 0 || r.MaxDailyLossPct > 0 {
		engOpts = append(engOpts, engine.WithRiskManager(engine.NewRiskManager(r.MaxPositionPct, r.MaxDailyLossPct)))
	}
	brk := broker.NewSimulatorBroker(engine.New(ec, d.Catalog, engOpts...), d.Catalog, d.Source,
		broker.WithCalendar(d.Calendar), broker.WithLogger(log))

	s := &Session{ID: id, Broker: brk, deps: d}
	if d.SQLite != nil {
		s.journal = store.NewRunJournal(ctx, d.SQLite, id, d.Catalog, log)
		brk.Subscribe(s.journal)
	}
	return s, nil
}

// Open requests a historical stream per configured symbol, applying each
// preload window. Orders placed after Open match from the first replayed
// bar.
func (s *Session) Open(ctx context.Context) error {
	runs, err := s.deps.RunConfigs()
	if err != nil {
		return err
	}
	streams := make([]*broker.BarStream, 0, len(runs))
	for _, rc := range runs {
		req := rc.Request
		req.KeepUpToDate = true
		st, err := s.Broker.RequestHistoricalBars(ctx, req)
		if err != nil {
			return err
		}
		streams = append(streams, st)
	}
	s.streams = streams
	return nil
}

// Step applies the earliest pending bar across all open streams, ties going
// to the stream opened first, and reports false once every stream is
// exhausted. Bars therefore reach the shared account in timestamp order.
func (s *Session) Step(ctx context.Context) (domain.Bar, bool, error) {
	var next *broker.BarStream
	var at time.Time
	for _, st := range s.streams {
		bar, ok := st.Peek()
		if ok && (next == nil || bar.Timestamp.Before(at)) {
			next, at = st, bar.Timestamp
		}
	}
	if next == nil {
		return domain.Bar{}, false, nil
	}
	bar, _, err := next.Next(ctx)
	if err != nil {
		return domain.Bar{}, false, fmt.Errorf("replaying %s: %w", next.Symbol(), err)
	}
	return bar, true, nil
}

// Replay steps the open streams to the end, paced by the pacing section,
// and opens them first if needed.
func (s *Session) Replay(ctx context.Context) error {
	if s.streams == nil {
		if err := s.Open(ctx); err != nil {
			return err
		}
	}
	startedAt := time.Now().UTC()

	pacing := s.deps.Config.Pacing
	pacer := strategy.NewPacer(pacing.BarsPerSecond, pacing.Burst)
	bars := 0
	for {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		_, ok, err := s.Step(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		bars++
	}

	s.deps.Logger.Info("replay finished", "session", s.ID, "symbols", len(s.streams), "bars", bars)
	return s.save(ctx, bars, startedAt)
}

func (s *Session) save(ctx context.Context, bars int, startedAt time.Time) error {
	if s.deps.SQLite == nil {
		return nil
	}
	if n := s.journal.Errors(); n > 0 {
		s.deps.Logger.Warn("journal writes failed", "session", s.ID, "errors", n)
	}
	acct, err := s.Broker.GetAccount(ctx)
	if err != nil {
		return err
	}
	rec := store.RunRecord{
		ID:          s.ID,
		Strategy:    "interactive",
		InitialCash: acct.InitialCash,
		Equity:      acct.Equity,
		Bars:        bars,
		StartedAt:   startedAt,
		FinishedAt:  time.Now().UTC(),
	}
	if !acct.InitialCash.IsZero() {
		rec.TotalReturn = acct.Equity.Sub(acct.InitialCash).Div(acct.InitialCash).InexactFloat64()
	}
	return s.deps.SQLite.SaveRun(ctx, rec)
}
