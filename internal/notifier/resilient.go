package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ResilientConfig configures a ResilientMailer.
type ResilientConfig struct {
	// RatePerSecond caps the overall send rate. Zero disables throttling.
	RatePerSecond float64
	Burst         int
	// PerRecipient caps emails per recipient within a sliding window.
	PerRecipient RateLimitConfig
	// BreakerFailures consecutive failures open the circuit for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultResilientConfig returns conservative defaults for a shared SMTP relay.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		RatePerSecond:   5,
		Burst:           5,
		PerRecipient:    DefaultRateLimitConfig(),
		BreakerFailures: 5,
		BreakerTimeout:  time.Minute,
	}
}

// ResilientMailer wraps a Mailer with throttling, a per-recipient cap and a
// circuit breaker so an unavailable relay fails fast.
type ResilientMailer struct {
	next      Mailer
	limiter   *rate.Limiter
	recipient *RecipientLimiter
	breaker   *gobreaker.CircuitBreaker
	log       *slog.Logger
}

// NewResilientMailer wraps next.
func NewResilientMailer(next Mailer, cfg ResilientConfig, log *slog.Logger) *ResilientMailer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	m := &ResilientMailer{
		next:      next,
		limiter:   limiter,
		recipient: NewRecipientLimiter(cfg.PerRecipient),
		log:       log.With(slog.String("component", "mailer"), slog.String("transport", next.Name())),
	}
	failures := cfg.BreakerFailures
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mailer-" + next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoRecipients)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn("mail circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return m
}

// Name returns the wrapped mailer's name.
func (m *ResilientMailer) Name() string {
	return m.next.Name()
}

// SendEmail implements Mailer.
func (m *ResilientMailer) SendEmail(ctx context.Context, email Email) (Delivery, error) {
	if err := validateEmail(email); err != nil {
		return Delivery{}, err
	}
	if !m.recipient.Allow(email.To...) {
		return Delivery{}, ErrRateLimited
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			m.recipient.Release(email.To...)
			return Delivery{}, fmt.Errorf("wait for send slot: %w", err)
		}
	}

	res, err := m.breaker.Execute(func() (interface{}, error) {
		return m.next.SendEmail(ctx, email)
	})
	if err != nil {
		m.recipient.Release(email.To...)
		return Delivery{}, err
	}
	return res.(Delivery), nil
}

// State returns the circuit breaker state.
func (m *ResilientMailer) State() gobreaker.State {
	return m.breaker.State()
}

// RateLimitStats returns per-recipient limiter statistics.
func (m *ResilientMailer) RateLimitStats() RateLimitStats {
	return m.recipient.Stats()
}

// Close closes the wrapped mailer.
func (m *ResilientMailer) Close() error {
	return m.next.Close()
}
