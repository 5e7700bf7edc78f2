package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// HistoricalRequest describes a historical bar subscription: a preload
// window of Duration ending before live replay begins, at BarSize
// resolution.
type HistoricalRequest struct {
	Symbol       string `json:"symbol"`
	Duration     string `json:"duration"` // "30 D"
	BarSize      string `json:"bar_size"` // "5 mins"
	UseRTH       bool   `json:"use_rth"`
	KeepUpToDate bool   `json:"keep_up_to_date"`
}

// ParseDuration parses "N S|D|W|M|Y". Months are 30 days and years 365.
func ParseDuration(s string) (time.Duration, error) {
	n, unit, err := splitSetting(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	switch strings.ToUpper(unit) {
	case "S":
		return time.Duration(n) * time.Second, nil
	case "D":
		return time.Duration(n) * day, nil
	case "W":
		return time.Duration(n) * 7 * day, nil
	case "M":
		return time.Duration(n) * 30 * day, nil
	case "Y":
		return time.Duration(n) * 365 * day, nil
	}
	return 0, fmt.Errorf("duration %q: unknown unit %q", s, unit)
}

// ParseBarSize parses "N secs|min|mins|hour|hours|day|days".
func ParseBarSize(s string) (time.Duration, error) {
	n, unit, err := splitSetting(s)
	if err != nil {
		return 0, fmt.Errorf("bar size %q: %w", s, err)
	}
	switch strings.ToLower(unit) {
	case "sec", "secs":
		return time.Duration(n) * time.Second, nil
	case "min", "mins":
		return time.Duration(n) * time.Minute, nil
	case "hour", "hours":
		return time.Duration(n) * time.Hour, nil
	case "day", "days":
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("bar size %q: unknown unit %q", s, unit)
}

func splitSetting(s string) (int, string, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("want \"<count> <unit>\"")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, "", fmt.Errorf("count must be a positive integer")
	}
	return n, fields[1], nil
}

// SplitWindow divides bars into those strictly within window of the first
// bar and the remainder.
func SplitWindow(bars []domain.Bar, window time.Duration) (preload, rest []domain.Bar) {
	if len(bars) == 0 {
		return nil, nil
	}
	end := bars[0].Timestamp.Add(window)
	i := 0
	for i < len(bars) && bars[i].Timestamp.Before(end) {
		i++
	}
	return bars[:i], bars[i:]
}

// CheckOrder returns domain.ErrFeedOrder for the first bar whose timestamp
// does not strictly follow the bar before it.
func CheckOrder(bars []domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: %s bar at %s does not follow %s", domain.ErrFeedOrder, bars[i].Symbol,
				bars[i].Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Resample aggregates bars into buckets of size aligned to wall-clock time
// in loc. Sizes under a day align to local midnight; a day or longer
// buckets by local calendar date, grouping N-day sizes by civil day number.
// A nil loc means UTC. Count is renumbered from zero. The input must
// already satisfy CheckOrder.
func Resample(bars []domain.Bar, size time.Duration, loc *time.Location) []domain.Bar {
	if size <= 0 || len(bars) == 0 {
		return bars
	}
	if loc == nil {
		loc = time.UTC
	}
	var out []domain.Bar
	for _, b := range bars {
		start := BucketStart(b.Timestamp, size, loc).In(b.Timestamp.Location())
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(start) && out[n-1].Symbol == b.Symbol {
			cur := &out[n-1]
			cur.High = decimal.Max(cur.High, b.High)
			cur.Low = decimal.Min(cur.Low, b.Low)
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		b.Timestamp = start
		b.Count = int64(len(out))
		out = append(out, b)
	}
	return out
}

const day = 24 * time.Hour

// BucketStart returns the start of the size bucket holding t, in loc.
func BucketStart(t time.Time, size time.Duration, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	if size >= day {
		n := int64(size / day)
		civil := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / int64(day/time.Second)
		civil -= ((civil % n) + n) % n
		return time.Date(1970, 1, 1+int(civil), 0, 0, 0, 0, loc)
	}
	wall := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return time.Date(y, m, d, 0, 0, 0, int(wall.Truncate(size)), loc)
}
