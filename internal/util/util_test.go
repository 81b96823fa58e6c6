package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"tickerdesk/internal/domain"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWriterLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown", "code", "TSM")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "code=TSM") {
		t.Errorf("text handler output missing attr: %s", out)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should not block: %v", err)
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("second Wait within the burst should not block: %v", err)
	}
}

func TestRateLimiterWeightedCost(t *testing.T) {
	clock := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(60, 3) // one token per second
	rl.now = func() time.Time { return clock }
	rl.last = clock
	ctx := context.Background()

	if err := rl.WaitN(ctx, 2); err != nil {
		t.Fatalf("WaitN(2): %v", err)
	}
	if got := rl.Available(); got != 1 {
		t.Fatalf("Available = %v, want 1", got)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := rl.WaitN(short, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitN(2) with 1 token = %v, want deadline exceeded", err)
	}

	clock = clock.Add(time.Second)
	if err := rl.WaitN(ctx, 2); err != nil {
		t.Fatalf("WaitN(2) after refill: %v", err)
	}

	clock = clock.Add(time.Hour)
	if got := rl.Available(); got != 3 {
		t.Errorf("Available after long idle = %v, want burst 3", got)
	}
	// Costs above the burst are charged as the burst.
	if err := rl.WaitN(ctx, 10); err != nil {
		t.Fatalf("WaitN(10): %v", err)
	}
	if got := rl.Available(); got != 0 {
		t.Errorf("Available = %v, want 0", got)
	}
	if err := rl.WaitN(ctx, 0); err != nil {
		t.Errorf("zero cost should never wait: %v", err)
	}
}

func TestRateLimiterCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	_ = rl.Wait(context.Background()) // consume the initial token

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("Wait should fail once the context expires")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	for i := 0; i < 5; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("disabled limiter returned %v", err)
		}
	}
}

func TestTradingCalendarSessionsBack(t *testing.T) {
	cal := NewTradingCalendar(domain.MarketUS)
	if cal.Market() != domain.MarketUS {
		t.Errorf("Market() = %q, want %q", cal.Market(), domain.MarketUS)
	}
	// Wednesday noon ET.
	now := time.Date(2024, 6, 12, 16, 0, 0, 0, time.UTC)
	dates := cal.SessionsBack(now, 7)
	want := []string{"2024-06-12", "2024-06-11", "2024-06-10", "2024-06-07", "2024-06-06"}
	if len(dates) != len(want) {
		t.Fatalf("SessionsBack returned %v, want %v", dates, want)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d] = %s, want %s", i, dates[i], want[i])
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return errors.New("still down")
	})
	if err == nil || err.Error() != "still down" {
		t.Errorf("err = %v, want still down", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryPermanent(t *testing.T) {
	notFound := errors.New("status 404")
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(notFound)
	})
	if err != notFound {
		t.Errorf("err = %v, want the unwrapped permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Hour, func() error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
