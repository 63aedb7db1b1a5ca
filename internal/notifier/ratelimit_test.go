package notifier

import (
	"testing"
	"time"
)

func newTestLimiter(max int, window time.Duration, now *time.Time) *RecipientLimiter {
	rl := NewRecipientLimiter(RateLimitConfig{MaxPerWindow: max, Window: window, Enabled: true})
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRecipientLimiterBasic(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(3, time.Hour, &now)

	for i := 0; i < 3; i++ {
		if !rl.Allow("pm@acme.test") {
			t.Errorf("email %d should be allowed", i+1)
		}
	}
	if rl.Allow("PM@acme.test ") {
		t.Error("4th email should be denied regardless of address case")
	}
	if !rl.Allow("dev@acme.test") {
		t.Error("other recipients are limited separately")
	}
	if stats := rl.Stats(); stats.Dropped != 1 || stats.Recipients != 2 {
		t.Errorf("stats = %+v, want 1 dropped and 2 recipients", stats)
	}
}

func TestRecipientLimiterAllOrNothing(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(1, time.Hour, &now)

	rl.Allow("pm@acme.test")
	if rl.Allow("dev@acme.test", "pm@acme.test") {
		t.Fatal("a message with one limited recipient should be denied")
	}
	if !rl.Allow("dev@acme.test") {
		t.Error("a denied message must not consume the other recipients' slots")
	}
}

func TestRecipientLimiterWindowExpiry(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(2, time.Hour, &now)

	rl.Allow("pm@acme.test")
	rl.Allow("pm@acme.test")
	if rl.Allow("pm@acme.test") {
		t.Error("should be denied before window expires")
	}

	now = now.Add(61 * time.Minute)
	if !rl.Allow("pm@acme.test") {
		t.Error("should be allowed after window expires")
	}
}

func TestRecipientLimiterRelease(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	rl := newTestLimiter(1, time.Hour, &now)

	rl.Allow("pm@acme.test")
	rl.Release("pm@acme.test")
	if !rl.Allow("pm@acme.test") {
		t.Error("released slot should be reusable")
	}
}

func TestRecipientLimiterDisabled(t *testing.T) {
	rl := NewRecipientLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Second, Enabled: false})

	for i := 0; i < 100; i++ {
		if !rl.Allow("pm@acme.test") {
			t.Errorf("email %d should be allowed when disabled", i+1)
		}
	}
	if dropped := rl.Stats().Dropped; dropped != 0 {
		t.Errorf("dropped = %d, want 0 when disabled", dropped)
	}
}
