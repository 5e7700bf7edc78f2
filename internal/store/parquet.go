package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ TradeLedgerStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and TradeLedgerStore using Parquet files
// on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for intraday bars.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
	Count     int64   `parquet:"count"`
}

// TradeLedgerRecord is the Parquet schema for one closed trade.
type TradeLedgerRecord struct {
	Ticker     string  `parquet:"ticker"`
	Direction  string  `parquet:"direction"`
	Qty        int64   `parquet:"qty"`
	EntryTime  int64   `parquet:"entry_time,timestamp(millisecond)"`
	EntryPrice float64 `parquet:"entry_price"`
	ExitTime   int64   `parquet:"exit_time,timestamp(millisecond)"`
	ExitPrice  float64 `parquet:"exit_price"`
	BarsHeld   int64   `parquet:"bars_held"`
	Profit     float64 `parquet:"profit"`
}

func toBarRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:    strings.ToUpper(b.Symbol),
		Timestamp: b.Timestamp.UnixMilli(),
		Open:      b.Open.InexactFloat64(),
		High:      b.High.InexactFloat64(),
		Low:       b.Low.InexactFloat64(),
		Close:     b.Close.InexactFloat64(),
		Volume:    b.Volume,
		Count:     b.Count,
	}
}

func (r BarRecord) toBar() domain.Bar {
	return domain.Bar{
		Symbol:    r.Symbol,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Open:      decimal.NewFromFloat(r.Open),
		High:      decimal.NewFromFloat(r.High),
		Low:       decimal.NewFromFloat(r.Low),
		Close:     decimal.NewFromFloat(r.Close),
		Volume:    r.Volume,
		Count:     r.Count,
	}
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/bars/<SYMBOL>/<YYYY>.parquet
//
// Existing files are merged; incoming bars win on equal timestamps.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], toBarRecord(b))
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars for the given symbol and time range, oldest first.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	from, to := start.UnixMilli(), end.UnixMilli()

	years, err := s.years(symbol)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, year := range years {
		if year < start.UTC().Year() || year > end.UTC().Year() {
			continue
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			if r.Timestamp >= from && r.Timestamp <= to {
				bars = append(bars, r.toBar())
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar files.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "bars"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// years returns the years that have a bar file for symbol, ascending.
func (s *ParquetStore) years(symbol string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "bars", symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		var y int
		if _, err := fmt.Sscanf(e.Name(), "%d.parquet", &y); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// TradeLedgerStore implementation
// ---------------------------------------------------------------------------

// WriteTrades replaces the trade ledger of a run.
func (s *ParquetStore) WriteTrades(_ context.Context, runID string, trades []domain.TradeRecord) error {
	records := make([]TradeLedgerRecord, len(trades))
	for i, t := range trades {
		records[i] = TradeLedgerRecord{
			Ticker:     t.Ticker,
			Direction:  string(t.Direction),
			Qty:        t.Qty,
			EntryTime:  t.EntryTime.UnixMilli(),
			EntryPrice: t.EntryPrice.InexactFloat64(),
			ExitTime:   t.ExitTime.UnixMilli(),
			ExitPrice:  t.ExitPrice.InexactFloat64(),
			BarsHeld:   int64(t.BarsHeld),
			Profit:     t.Profit.InexactFloat64(),
		}
	}
	if err := writeParquetFile(s.tradesPath(runID), records); err != nil {
		return fmt.Errorf("writing trades for run %s: %w", runID, err)
	}
	return nil
}

// ReadTrades reads the trade ledger of a run.
func (s *ParquetStore) ReadTrades(_ context.Context, runID string) ([]domain.TradeRecord, error) {
	records, err := readParquetFile[TradeLedgerRecord](s.tradesPath(runID))
	if err != nil {
		return nil, fmt.Errorf("reading trades for run %s: %w", runID, err)
	}
	trades := make([]domain.TradeRecord, len(records))
	for i, r := range records {
		trades[i] = domain.TradeRecord{
			Ticker:     r.Ticker,
			Direction:  domain.Direction(r.Direction),
			Qty:        r.Qty,
			EntryTime:  time.UnixMilli(r.EntryTime).UTC(),
			EntryPrice: decimal.NewFromFloat(r.EntryPrice),
			ExitTime:   time.UnixMilli(r.ExitTime).UTC(),
			ExitPrice:  decimal.NewFromFloat(r.ExitPrice),
			BarsHeld:   int(r.BarsHeld),
			Profit:     decimal.NewFromFloat(r.Profit),
		}
	}
	return trades, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/bars/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "bars", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// tradesPath returns the trade ledger file of a run.
// Layout: <dataDir>/runs/<runID>/trades.parquet
func (s *ParquetStore) tradesPath(runID string) string {
	return filepath.Join(s.DataDir, "runs", runID, "trades.parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
