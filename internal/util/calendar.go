package util

import (
	"fmt"
	"time"
	_ "time/tzdata" // session zones must resolve on hosts without zoneinfo
)

// TradingCalendar knows the regular session hours of one exchange. Sessions
// run Monday to Friday; exchange holidays are not modelled.
type TradingCalendar struct {
	loc   *time.Location
	open  time.Duration // offset from local midnight
	close time.Duration
}

// NewTradingCalendar creates a calendar for the IANA zone tz with a regular
// session from open to close, both given as offsets from local midnight.
func NewTradingCalendar(tz string, open, close time.Duration) (*TradingCalendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", tz, err)
	}
	if close <= open {
		return nil, fmt.Errorf("session close %s must follow open %s", close, open)
	}
	return &TradingCalendar{loc: loc, open: open, close: close}, nil
}

// USRegularHours is the NYSE/CME equity-index regular session, 09:30 to
// 16:00 America/New_York.
func USRegularHours() (*TradingCalendar, error) {
	return NewTradingCalendar("America/New_York", 9*time.Hour+30*time.Minute, 16*time.Hour)
}

// Location returns the exchange time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// IsMarketOpen reports whether t falls inside a regular session. The close
// instant itself is outside.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	local := t.In(tc.loc)
	if !tradingDay(local) {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tc.loc)
	offset := local.Sub(midnight)
	return offset >= tc.open && offset < tc.close
}

// NextOpen returns the next session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	local := t.In(tc.loc)
	for i := 0; i < 8; i++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+i, 0, 0, 0, 0, tc.loc)
		if !tradingDay(day) {
			continue
		}
		if open := day.Add(tc.open); !open.Before(t) {
			return open
		}
	}
	return time.Time{}
}

// NextClose returns the next session close at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	local := t.In(tc.loc)
	for i := 0; i < 8; i++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+i, 0, 0, 0, 0, tc.loc)
		if !tradingDay(day) {
			continue
		}
		if cl := day.Add(tc.close); !cl.Before(t) {
			return cl
		}
	}
	return time.Time{}
}

func tradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
