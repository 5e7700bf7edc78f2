package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barsim/internal/domain"
)

const esCSV = `Date,Time,Open,High,Low,Close,Volume
2024-01-02,09:30:00,4745.25,4746.00,4744.50,4745.75,1520
2024-01-02,09:31:00,4745.75,4747.25,4745.50,4747.00,980
01/02/2024,09:32,4747.00,4747.50,4746.25,4746.50,1100.0
`

func TestReadCSV(t *testing.T) {
	bars, err := ReadCSV(strings.NewReader(esCSV), "ES", nil)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, "ES", bars[0].Symbol)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), bars[0].Timestamp)
	assert.True(t, bars[0].Open.Equal(decimal.RequireFromString("4745.25")))
	assert.True(t, bars[1].High.Equal(decimal.RequireFromString("4747.25")))
	assert.Equal(t, int64(980), bars[1].Volume)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 32, 0, 0, time.UTC), bars[2].Timestamp)
	assert.Equal(t, int64(1100), bars[2].Volume)
	assert.Equal(t, int64(2), bars[2].Count)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("h\n2024-01-02,09:30:00,1,2,3\n"), "ES", nil)
	assert.Error(t, err, "short row")

	_, err = ReadCSV(strings.NewReader("h\nyesterday,09:30:00,1,2,3,4,5\n"), "ES", nil)
	assert.Error(t, err, "bad date")

	bars, err := ReadCSV(strings.NewReader(""), "ES", nil)
	assert.NoError(t, err)
	assert.Empty(t, bars)
}

func TestCSVRoundTripThroughFile(t *testing.T) {
	bars, err := ReadCSV(strings.NewReader(esCSV), "ES", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, bars))
	path := filepath.Join(t.TempDir(), "ES_cc.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := LoadCSV(path, "ES", nil)
	require.NoError(t, err)
	require.Len(t, got, len(bars))
	for i := range bars {
		assert.True(t, bars[i].Timestamp.Equal(got[i].Timestamp))
		assert.True(t, bars[i].Close.Equal(got[i].Close))
	}
}

func TestSliceFeed(t *testing.T) {
	bars, err := ReadCSV(strings.NewReader(esCSV), "ES", nil)
	require.NoError(t, err)
	ctx := context.Background()

	f := NewSliceFeed(bars)
	assert.Equal(t, 3, f.Remaining())
	peeked, ok := f.Peek()
	require.True(t, ok)
	assert.True(t, peeked.Timestamp.Equal(bars[0].Timestamp))
	assert.Equal(t, 3, f.Remaining(), "peek does not consume")
	got, err := Collect(ctx, Filter(f, func(b domain.Bar) bool { return b.Volume > 1000 }))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.Next(ctx)
	assert.True(t, errors.Is(err, io.EOF))
	_, ok = f.Peek()
	assert.False(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSliceFeed(bars).Next(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"30 D":   30 * 24 * time.Hour,
		"3600 S": time.Hour,
		"2 W":    14 * 24 * time.Hour,
		"1 M":    30 * 24 * time.Hour,
		"1 Y":    365 * 24 * time.Hour,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "30", "D 30", "-1 D", "3 Q"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseBarSize(t *testing.T) {
	tests := map[string]time.Duration{
		"30 secs": 30 * time.Second,
		"1 min":   time.Minute,
		"5 mins":  5 * time.Minute,
		"1 hour":  time.Hour,
		"4 hours": 4 * time.Hour,
		"1 day":   24 * time.Hour,
	}
	for in, want := range tests {
		got, err := ParseBarSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBarSize("5 fortnights")
	assert.Error(t, err)
}

func TestSplitWindowAndResample(t *testing.T) {
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	var bars []domain.Bar
	for i := 0; i < 10; i++ {
		p := decimal.NewFromInt(int64(100 + i))
		bars = append(bars, domain.Bar{
			Symbol:    "ES",
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      p, High: p.Add(decimal.NewFromInt(1)), Low: p.Sub(decimal.NewFromInt(1)), Close: p,
			Volume: 10,
		})
	}

	pre, rest := SplitWindow(bars, 4*time.Minute)
	assert.Len(t, pre, 4)
	assert.Len(t, rest, 6)
	assert.True(t, rest[0].Timestamp.Equal(start.Add(4*time.Minute)))

	five := Resample(bars, 5*time.Minute, nil)
	require.Len(t, five, 2)
	assert.True(t, five[0].Open.Equal(decimal.NewFromInt(100)))
	assert.True(t, five[0].Close.Equal(decimal.NewFromInt(104)))
	assert.True(t, five[0].High.Equal(decimal.NewFromInt(105)))
	assert.True(t, five[0].Low.Equal(decimal.NewFromInt(99)))
	assert.Equal(t, int64(50), five[0].Volume)
	assert.Equal(t, int64(1), five[1].Count)

	assert.Len(t, Resample(bars, time.Minute, time.UTC), 10)
}

func flatBar(ts time.Time, p int64) domain.Bar {
	d := decimal.NewFromInt(p)
	return domain.Bar{Symbol: "ES", Timestamp: ts, Open: d, High: d, Low: d, Close: d, Volume: 1}
}

func TestResampleDailyUsesLocalDate(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	bars := []domain.Bar{
		flatBar(time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC), 1), // Jan 2 17:00 CT
		flatBar(time.Date(2024, 1, 3, 5, 0, 0, 0, time.UTC), 2),  // Jan 2 23:00 CT
		flatBar(time.Date(2024, 1, 3, 7, 0, 0, 0, time.UTC), 3),  // Jan 3 01:00 CT
	}

	daily := Resample(bars, 24*time.Hour, chicago)
	require.Len(t, daily, 2)
	assert.True(t, daily[0].Timestamp.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, chicago)), "got %s", daily[0].Timestamp)
	assert.True(t, daily[0].Close.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int64(2), daily[0].Volume)
	assert.True(t, daily[1].Timestamp.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, chicago)))

	utc := Resample(bars, 24*time.Hour, time.UTC)
	require.Len(t, utc, 2)
	assert.Equal(t, int64(1), utc[0].Volume)

	// 2024-01-02 is an even civil day, so it opens a two-day bucket
	assert.Len(t, Resample(bars, 48*time.Hour, chicago), 1)
}

func TestResampleIntradayAlignsToLocalClock(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	// 04:45 UTC is 10:15 IST
	bars := []domain.Bar{
		flatBar(time.Date(2024, 1, 2, 4, 45, 0, 0, time.UTC), 1),
		flatBar(time.Date(2024, 1, 2, 5, 20, 0, 0, time.UTC), 2),
	}
	hourly := Resample(bars, time.Hour, kolkata)
	require.Len(t, hourly, 1)
	assert.True(t, hourly[0].Timestamp.Equal(time.Date(2024, 1, 2, 4, 30, 0, 0, time.UTC)), "got %s", hourly[0].Timestamp)

	assert.Len(t, Resample(bars, time.Hour, time.UTC), 2)
}

func TestCheckOrder(t *testing.T) {
	ts := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	assert.NoError(t, CheckOrder([]domain.Bar{flatBar(ts, 1), flatBar(ts.Add(time.Second), 1)}))
	assert.NoError(t, CheckOrder(nil))

	err := CheckOrder([]domain.Bar{flatBar(ts, 1), flatBar(ts, 2)})
	assert.ErrorIs(t, err, domain.ErrFeedOrder)
	err = CheckOrder([]domain.Bar{flatBar(ts, 1), flatBar(ts.Add(time.Minute), 2), flatBar(ts.Add(30*time.Second), 3)})
	assert.ErrorIs(t, err, domain.ErrFeedOrder)
}
