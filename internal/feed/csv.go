package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// Vendor CSV exports carry a header row followed by
//
//	date,time,open,high,low,close,volume
//
// with the date and time in separate columns. Extra trailing columns are
// ignored.
var (
	dateLayouts = []string{"2006-01-02", "01/02/2006", "2006/01/02", "20060102"}
	timeLayouts = []string{"15:04:05", "15:04", "150405"}
)

// LoadCSV reads every bar from a vendor CSV file. Timestamps are interpreted
// in loc (UTC when nil).
func LoadCSV(path, symbol string, loc *time.Location) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	bars, err := ReadCSV(f, symbol, loc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV parses vendor CSV bars from r. Count is the zero-based row index.
func ReadCSV(r io.Reader, symbol string, loc *time.Location) ([]domain.Bar, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return bars, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 7 {
			return nil, fmt.Errorf("line %d: expected 7 columns, got %d", line, len(rec))
		}
		b, err := parseRecord(rec, symbol, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b.Count = int64(len(bars))
		bars = append(bars, b)
	}
}

func parseRecord(rec []string, symbol string, loc *time.Location) (domain.Bar, error) {
	ts, err := parseDateTime(strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1]), loc)
	if err != nil {
		return domain.Bar{}, err
	}
	var prices [4]decimal.Decimal
	for i := range prices {
		p, err := decimal.NewFromString(strings.TrimSpace(rec[2+i]))
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column %d: %w", 3+i, err)
		}
		prices[i] = p
	}
	vol, err := parseVolume(strings.TrimSpace(rec[6]))
	if err != nil {
		return domain.Bar{}, err
	}
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    vol,
	}, nil
}

func parseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	for _, dl := range dateLayouts {
		for _, tl := range timeLayouts {
			if t, err := time.ParseInLocation(dl+" "+tl, date+" "+clock, loc); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q %q", date, clock)
}

// Volumes are sometimes exported as floats ("1234.0").
func parseVolume(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("volume %q: %w", s, err)
	}
	return int64(f), nil
}

// WriteCSV writes bars in the vendor layout, readable by ReadCSV.
func WriteCSV(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Timestamp.Format("2006-01-02"),
			b.Timestamp.Format("15:04:05"),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			strconv.FormatInt(b.Volume, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
