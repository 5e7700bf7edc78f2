package util

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	bad := errors.New("bad request")
	attempts := 0
	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(bad)
	})
	if !errors.Is(err, bad) {
		t.Fatalf("Retry error = %v, want %v", err, bad)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "debug", "text").Debug("hello", "symbol", "ES")
	if got := buf.String(); !strings.Contains(got, "symbol=ES") {
		t.Errorf("text output = %q, want symbol=ES", got)
	}

	buf.Reset()
	NewLoggerTo(&buf, "warn", "json").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line logged at warn level: %q", buf.String())
	}
	NewLoggerTo(&buf, "info", "").Info("kept", "order_id", 7)
	if got := buf.String(); !strings.Contains(got, `"order_id":7`) {
		t.Errorf("json output = %q, want order_id field", got)
	}
}

func TestTradingCalendar(t *testing.T) {
	cal, err := USRegularHours()
	if err != nil {
		t.Fatalf("USRegularHours() returned error: %v", err)
	}
	ny := cal.loc

	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2024, 1, 2, 9, 29, 0, 0, ny), false},
		{time.Date(2024, 1, 2, 9, 30, 0, 0, ny), true},
		{time.Date(2024, 1, 2, 15, 59, 0, 0, ny), true},
		{time.Date(2024, 1, 2, 16, 0, 0, 0, ny), false},
		{time.Date(2024, 1, 6, 11, 0, 0, 0, ny), false}, // Saturday
	}
	for _, tt := range tests {
		if got := cal.IsMarketOpen(tt.at); got != tt.want {
			t.Errorf("IsMarketOpen(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}

	fri := time.Date(2024, 1, 5, 17, 0, 0, 0, ny)
	if got, want := cal.NextOpen(fri), time.Date(2024, 1, 8, 9, 30, 0, 0, ny); !got.Equal(want) {
		t.Errorf("NextOpen(%s) = %s, want %s", fri, got, want)
	}
	if got, want := cal.NextClose(fri), time.Date(2024, 1, 8, 16, 0, 0, 0, ny); !got.Equal(want) {
		t.Errorf("NextClose(%s) = %s, want %s", fri, got, want)
	}
}

func TestNewTradingCalendarRejectsBadSession(t *testing.T) {
	if _, err := NewTradingCalendar("UTC", 16*time.Hour, 9*time.Hour); err == nil {
		t.Fatal("expected error for close before open")
	}
	if _, err := NewTradingCalendar("Mars/Olympus", 0, time.Hour); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
