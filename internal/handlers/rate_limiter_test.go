package handlers

import (
	"testing"
	"time"
)

func TestWindowLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := newWindowLimiter(2, time.Minute, clock)

	if !limiter.Allow("SO-2024-000042") || !limiter.Allow("SO-2024-000042") {
		t.Fatal("expected the first two hits to pass")
	}
	if limiter.Allow("SO-2024-000042") {
		t.Fatal("expected the third hit inside the window to be rejected")
	}
	if !limiter.Allow("SO-2024-000043") {
		t.Fatal("expected an unrelated key to have its own budget")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("SO-2024-000042") {
		t.Fatal("expected the budget to reset after the window elapsed")
	}
}

func TestWindowLimiterDisabledWhenUnconfigured(t *testing.T) {
	if limiter := newWindowLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatal("expected nil limiter for a zero limit")
	}
	if limiter := newWindowLimiter(5, 0, nil); limiter != nil {
		t.Fatal("expected nil limiter for a zero window")
	}
}
