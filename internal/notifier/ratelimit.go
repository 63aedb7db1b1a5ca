package notifier

import (
	"strings"
	"sync"
	"time"
)

// RecipientLimiter implements a sliding window limit of emails per recipient.
type RecipientLimiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	timestamps   map[string][]time.Time
	dropped      int64
	enabled      bool
	now          func() time.Time
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum emails per recipient per window (default: 20)
	Window       time.Duration // Time window (default: 1 hour)
	Enabled      bool          // Whether rate limiting is enabled
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 20,
		Window:       time.Hour,
		Enabled:      true,
	}
}

// NewRecipientLimiter creates a new limiter with the given configuration.
func NewRecipientLimiter(config RateLimitConfig) *RecipientLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 20
	}
	if config.Window <= 0 {
		config.Window = time.Hour
	}

	return &RecipientLimiter{
		maxPerWindow: config.MaxPerWindow,
		window:       config.Window,
		timestamps:   make(map[string][]time.Time),
		enabled:      config.Enabled,
		now:          time.Now,
	}
}

// Allow reports whether every recipient is under the limit and, if so,
// consumes one slot for each of them.
func (r *RecipientLimiter) Allow(recipients ...string) bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	keys := make([]string, 0, len(recipients))
	for _, rcpt := range recipients {
		key := strings.ToLower(strings.TrimSpace(rcpt))
		if key == "" {
			continue
		}
		r.cleanup(key, cutoff)
		if len(r.timestamps[key]) >= r.maxPerWindow {
			r.dropped++
			return false
		}
		keys = append(keys, key)
	}

	for _, key := range keys {
		r.timestamps[key] = append(r.timestamps[key], now)
	}
	return true
}

// Release refunds the most recently consumed slot of each recipient.
// Call this when a send fails after Allow returned true.
func (r *RecipientLimiter) Release(recipients ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rcpt := range recipients {
		key := strings.ToLower(strings.TrimSpace(rcpt))
		if ts := r.timestamps[key]; len(ts) > 0 {
			r.timestamps[key] = ts[:len(ts)-1]
		}
	}
}

// cleanup removes timestamps older than the cutoff time.
// Must be called with mutex held.
func (r *RecipientLimiter) cleanup(key string, cutoff time.Time) {
	ts := r.timestamps[key]
	idx := 0
	for idx < len(ts) && ts[idx].Before(cutoff) {
		idx++
	}
	if idx == len(ts) {
		delete(r.timestamps, key)
		return
	}
	if idx > 0 {
		r.timestamps[key] = append(ts[:0], ts[idx:]...)
	}
}

// Stats returns rate limiter statistics.
func (r *RecipientLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimitStats{
		Dropped:      r.dropped,
		Recipients:   len(r.timestamps),
		MaxPerWindow: r.maxPerWindow,
		Window:       r.window,
		Enabled:      r.enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped      int64         // Total emails dropped
	Recipients   int           // Recipients with sends in the current window
	MaxPerWindow int           // Maximum allowed per recipient per window
	Window       time.Duration // Window duration
	Enabled      bool          // Whether rate limiting is enabled
}
