package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ BarStore = (*SQLiteStore)(nil)
var _ Journal = (*SQLiteStore)(nil)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS bars (
	ticker   TEXT    NOT NULL,
	datetime INTEGER NOT NULL,
	open     REAL    NOT NULL,
	high     REAL    NOT NULL,
	low      REAL    NOT NULL,
	close    REAL    NOT NULL,
	volume   INTEGER NOT NULL,
	count    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (ticker, datetime)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	strategy     TEXT    NOT NULL,
	symbol       TEXT    NOT NULL,
	initial_cash TEXT    NOT NULL,
	equity       TEXT    NOT NULL,
	total_return REAL    NOT NULL,
	trades       INTEGER NOT NULL,
	bars         INTEGER NOT NULL,
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	run_id      TEXT    NOT NULL,
	id          INTEGER NOT NULL,
	symbol      TEXT    NOT NULL,
	side        TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	qty         INTEGER NOT NULL,
	limit_price TEXT    NOT NULL,
	stop_price  TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	fill_price  TEXT    NOT NULL,
	filled_at   INTEGER NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS executions (
	run_id       TEXT    NOT NULL,
	id           INTEGER NOT NULL,
	order_id     INTEGER NOT NULL,
	datetime     INTEGER NOT NULL,
	ticker       TEXT    NOT NULL,
	side         TEXT    NOT NULL,
	quantity     INTEGER NOT NULL,
	price        TEXT    NOT NULL,
	multiplier   TEXT    NOT NULL,
	commission   TEXT    NOT NULL,
	realized_pnl TEXT    NOT NULL,
	marketvalue  TEXT    NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS signals (
	run_id      TEXT    NOT NULL,
	id          INTEGER NOT NULL,
	strategy_id TEXT    NOT NULL,
	symbol      TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	qty         INTEGER NOT NULL,
	order_type  TEXT    NOT NULL,
	limit_price TEXT    NOT NULL,
	stop_price  TEXT    NOT NULL,
	metadata    TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (run_id, id)
);
`

// SQLiteStore implements BarStore and Journal backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates
// any missing tables, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; parallel runs share the journal.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema in %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars upserts bars in a single transaction.
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO bars
		(ticker, datetime, open, high, low, close, volume, count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		r := toBarRecord(b)
		if _, err := stmt.ExecContext(ctx, r.Symbol, r.Timestamp,
			r.Open, r.High, r.Low, r.Close, r.Volume, r.Count); err != nil {
			return fmt.Errorf("inserting bar %s@%s: %w", r.Symbol, b.Timestamp.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// ReadBars returns bars for symbol within [start, end], oldest first.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, datetime, open, high, low, close, volume, count
		FROM bars WHERE ticker = ? AND datetime BETWEEN ? AND ?
		ORDER BY datetime`,
		strings.ToUpper(symbol), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var r BarRecord
		if err := rows.Scan(&r.Symbol, &r.Timestamp, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.Count); err != nil {
			return nil, err
		}
		bars = append(bars, r.toBar())
	}
	return bars, rows.Err()
}

// ListSymbols returns the distinct tickers in the bars table.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT ticker FROM bars ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// ---------------------------------------------------------------------------
// Journal: runs
// ---------------------------------------------------------------------------

// SaveRun inserts or replaces a run header.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, strategy, symbol, initial_cash, equity, total_return, trades, bars, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Symbol, run.InitialCash.String(), run.Equity.String(),
		run.TotalReturn, run.Trades, run.Bars, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns one run header or ErrRunNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, strategy, symbol, initial_cash, equity,
		total_return, trades, bars, started_at, finished_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns the most recently started runs, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, strategy, symbol, initial_cash, equity,
		total_return, trades, bars, started_at, finished_at FROM runs
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		run             RunRecord
		started, finish int64
	)
	if err := sc.Scan(&run.ID, &run.Strategy, &run.Symbol, &run.InitialCash, &run.Equity,
		&run.TotalReturn, &run.Trades, &run.Bars, &started, &finish); err != nil {
		return RunRecord{}, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finish).UTC()
	return run, nil
}

// ---------------------------------------------------------------------------
// Journal: orders
// ---------------------------------------------------------------------------

// SaveOrder upserts an order; later status changes overwrite earlier ones.
func (s *SQLiteStore) SaveOrder(ctx context.Context, runID string, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO orders
		(run_id, id, symbol, side, type, qty, limit_price, stop_price, status,
		 created_at, updated_at, fill_price, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, o.ID, o.Symbol, string(o.Side), string(o.Type), o.Qty,
		o.LimitPrice.String(), o.StopPrice.String(), string(o.Status),
		o.CreatedAt.UnixMilli(), o.UpdatedAt.UnixMilli(), o.FillPrice.String(), o.FilledAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving order %d of run %s: %w", o.ID, runID, err)
	}
	return nil
}

// ListOrders returns the orders of a run in id order.
func (s *SQLiteStore) ListOrders(ctx context.Context, runID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, side, type, qty, limit_price, stop_price,
		status, created_at, updated_at, fill_price, filled_at
		FROM orders WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o                         domain.Order
			created, updated, filled int64
		)
		if err := rows.Scan(&o.ID, &o.Symbol, &o.Side, &o.Type, &o.Qty, &o.LimitPrice, &o.StopPrice,
			&o.Status, &created, &updated, &o.FillPrice, &filled); err != nil {
			return nil, err
		}
		o.CreatedAt = time.UnixMilli(created).UTC()
		o.UpdatedAt = time.UnixMilli(updated).UTC()
		o.FilledAt = time.UnixMilli(filled).UTC()
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ---------------------------------------------------------------------------
// Journal: executions
// ---------------------------------------------------------------------------

// SaveExecution records one fill with its commission and market value.
func (s *SQLiteStore) SaveExecution(ctx context.Context, rec ExecutionRecord) error {
	e := rec.Execution
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO executions
		(run_id, id, order_id, datetime, ticker, side, quantity, price, multiplier,
		 commission, realized_pnl, marketvalue)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, e.ID, e.OrderID, e.Time.UnixMilli(), e.Symbol, string(e.Side), e.Qty,
		e.Price.String(), rec.Multiplier.String(), rec.Commission.String(),
		rec.RealizedPnL.String(), rec.MarketValue.String())
	if err != nil {
		return fmt.Errorf("saving execution %d of run %s: %w", e.ID, rec.RunID, err)
	}
	return nil
}

// ListExecutions returns the executions of a run in id order.
func (s *SQLiteStore) ListExecutions(ctx context.Context, runID string) ([]ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, order_id, datetime, ticker, side, quantity, price,
		multiplier, commission, realized_pnl, marketvalue
		FROM executions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var (
			rec ExecutionRecord
			at  int64
		)
		e := &rec.Execution
		if err := rows.Scan(&e.ID, &e.OrderID, &at, &e.Symbol, &e.Side, &e.Qty, &e.Price,
			&rec.Multiplier, &rec.Commission, &rec.RealizedPnL, &rec.MarketValue); err != nil {
			return nil, err
		}
		e.Time = time.UnixMilli(at).UTC()
		rec.RunID = runID
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Journal: signals
// ---------------------------------------------------------------------------

// SaveSignal records a strategy signal.
func (s *SQLiteStore) SaveSignal(ctx context.Context, runID string, sig domain.Signal) error {
	meta, err := json.Marshal(sig.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO signals
		(run_id, id, strategy_id, symbol, type, qty, order_type, limit_price, stop_price, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, sig.ID, sig.StrategyID, sig.Symbol, string(sig.Type), sig.Qty, string(sig.OrderType),
		sig.LimitPrice.String(), sig.StopPrice.String(), string(meta), sig.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving signal %d of run %s: %w", sig.ID, runID, err)
	}
	return nil
}

// ListSignals returns the most recent signals of a run, up to limit,
// newest first.
func (s *SQLiteStore) ListSignals(ctx context.Context, runID string, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, strategy_id, symbol, type, qty, order_type,
		limit_price, stop_price, metadata, created_at
		FROM signals WHERE run_id = ? ORDER BY id DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var (
			sig     domain.Signal
			meta    string
			created int64
		)
		if err := rows.Scan(&sig.ID, &sig.StrategyID, &sig.Symbol, &sig.Type, &sig.Qty, &sig.OrderType,
			&sig.LimitPrice, &sig.StopPrice, &meta, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &sig.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of signal %d: %w", sig.ID, err)
		}
		sig.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, sig)
	}
	return out, rows.Err()
}

// MarketValue is the notional an execution moves: qty * price * multiplier.
func MarketValue(e domain.Execution, multiplier decimal.Decimal) decimal.Decimal {
	return e.Price.Mul(decimal.NewFromInt(e.Qty)).Mul(multiplier)
}
