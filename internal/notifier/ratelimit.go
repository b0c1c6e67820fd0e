package notifier

import (
	"sync"
	"time"
)

// RateLimitConfig holds delivery rate limit settings.
type RateLimitConfig struct {
	MaxPerWindow int           // maximum deliveries per window
	Window       time.Duration // sliding window duration
	Enabled      bool
}

// DefaultRateLimitConfig returns the default delivery rate limit:
// 10 notifications per minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// RateLimiter bounds outbound deliveries with a sliding window, so a
// misbehaving trap cannot flood external channels.
type RateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	sent    []time.Time
	dropped int64
	enabled bool

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates a rate limiter from the configuration, applying
// defaults for zero values.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &RateLimiter{
		max:     config.MaxPerWindow,
		window:  config.Window,
		sent:    make([]time.Time, 0, config.MaxPerWindow),
		enabled: config.Enabled,
		now:     time.Now,
	}
}

// Allow reports whether a delivery may proceed, consuming a slot when it
// does. Deliveries denied here count as dropped.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evict(now.Add(-r.window))

	if len(r.sent) >= r.max {
		r.dropped++
		return false
	}
	r.sent = append(r.sent, now)
	return true
}

// Release refunds the most recent slot, for callers whose delivery failed
// before reaching the network.
func (r *RateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.sent); n > 0 {
		r.sent = r.sent[:n-1]
	}
}

// evict drops timestamps that have aged out of the window. Caller holds
// the mutex.
func (r *RateLimiter) evict(cutoff time.Time) {
	keep := 0
	for keep < len(r.sent) && r.sent[keep].Before(cutoff) {
		keep++
	}
	if keep > 0 {
		copy(r.sent, r.sent[keep:])
		r.sent = r.sent[:len(r.sent)-keep]
	}
}

// RateLimitStats describes the limiter's current state.
type RateLimitStats struct {
	Dropped      int64
	CurrentCount int
	MaxPerWindow int
	Window       time.Duration
	Enabled      bool
}

// Stats returns a snapshot of the limiter state.
func (r *RateLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimitStats{
		Dropped:      r.dropped,
		CurrentCount: len(r.sent),
		MaxPerWindow: r.max,
		Window:       r.window,
		Enabled:      r.enabled,
	}
}

// Reset clears all limiter state.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = r.sent[:0]
	r.dropped = 0
}
