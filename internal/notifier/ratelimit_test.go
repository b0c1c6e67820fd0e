package notifier

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{MaxPerWindow: 3, Window: time.Minute, Enabled: true})

	for i := 0; i < 3; i++ {
		if !r.Allow() {
			t.Fatalf("delivery %d denied below limit", i+1)
		}
	}
	if r.Allow() {
		t.Fatal("delivery allowed above limit")
	}

	stats := r.Stats()
	if stats.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", stats.Dropped)
	}
	if stats.CurrentCount != 3 {
		t.Errorf("current = %d, want 3", stats.CurrentCount)
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	now := time.Now()
	r := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true})
	r.now = func() time.Time { return now }

	if !r.Allow() {
		t.Fatal("first delivery denied")
	}
	if r.Allow() {
		t.Fatal("second delivery allowed within window")
	}

	now = now.Add(61 * time.Second)
	if !r.Allow() {
		t.Fatal("delivery denied after window expired")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: false})
	for i := 0; i < 10; i++ {
		if !r.Allow() {
			t.Fatal("disabled limiter denied a delivery")
		}
	}
}

func TestRateLimiterRelease(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true})

	if !r.Allow() {
		t.Fatal("first delivery denied")
	}
	r.Release()
	if !r.Allow() {
		t.Fatal("delivery denied after slot was released")
	}
}

func TestRateLimiterReset(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true})
	r.Allow()
	r.Allow() // dropped
	r.Reset()

	stats := r.Stats()
	if stats.Dropped != 0 || stats.CurrentCount != 0 {
		t.Errorf("after reset: %+v", stats)
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{Enabled: true})
	stats := r.Stats()
	if stats.MaxPerWindow != 10 || stats.Window != time.Minute {
		t.Errorf("defaults = %+v", stats)
	}
}
