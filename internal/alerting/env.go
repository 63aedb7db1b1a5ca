package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/metrics"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/recipients"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// ResolveFunc looks up the recipients of a notification.
type ResolveFunc func(ctx context.Context) ([]recipients.Recipient, error)

// Fixed returns a ResolveFunc yielding rcpts.
func Fixed(rcpts ...recipients.Recipient) ResolveFunc {
	return func(context.Context) ([]recipients.Recipient, error) {
		return rcpts, nil
	}
}

// Outcome describes what Env.Notify did.
type Outcome struct {
	Suppressed   bool
	NoRecipients bool
	Created      []*models.Notification
}

// Delivered reports whether at least one notification was created.
func (o Outcome) Delivered() bool {
	return len(o.Created) > 0
}

// Env is everything a rule needs while evaluating one tenant.
type Env struct {
	Rule     string
	Tenant   *models.Tenant
	Store    storage.Storage
	Resolver *recipients.Resolver
	Gate     *dedup.Gate
	Log      *slog.Logger
	// Now is the run's clock in the configured time zone.
	Now time.Time

	baseURL   string
	publisher *Publisher
	report    *Report
}

// Today returns the civil date of Now.
func (e *Env) Today() time.Time {
	return calc.Day(e.Now)
}

// Publisher returns the run's publisher.
func (e *Env) Publisher() *Publisher {
	return e.publisher
}

// Link builds an absolute front-end URL from a route.
func (e *Env) Link(format string, args ...interface{}) string {
	return strings.TrimRight(e.baseURL, "/") + fmt.Sprintf(format, args...)
}

// Each evaluates one entity. Errors and panics are logged with entity
// context and counted without stopping the caller's loop. Each returns an
// error only for fatal failures or a cancelled context.
func (e *Env) Each(ctx context.Context, entityType, entityID string, fn func(log *slog.Logger) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	log := e.Log.With(slog.String(entityType, entityID))
	e.report.processed.Add(1)
	metrics.EntitiesProcessedTotal.WithLabelValues(e.Rule).Inc()

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "entity evaluation panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			e.entityError()
			err = nil
		}
	}()

	if ferr := fn(log); ferr != nil {
		if apperrors.IsFatal(ferr) {
			return ferr
		}
		log.ErrorContext(ctx, "entity evaluation failed", slog.Any("error", ferr))
		e.entityError()
	}
	return nil
}

func (e *Env) entityError() {
	e.report.entityErrors.Add(1)
	metrics.EntityErrorsTotal.WithLabelValues(e.Rule).Inc()
}

// Mutated records a state change made by the rule.
func (e *Env) Mutated(mutation string) {
	e.report.mutations.Add(1)
	metrics.StateMutationsTotal.WithLabelValues(e.Rule, mutation).Inc()
}

// Suppressed runs the dedup check for msg without creating anything.
func (e *Env) Suppressed(ctx context.Context, msg Message) (bool, error) {
	return e.Gate.Suppressed(ctx, msg.check(e.Tenant.ID), e.Now)
}

// Notify creates msg for every recipient returned by resolve unless the
// dedup policy suppresses it. The check and the inserts run under the
// per-family lock. Recipients are only resolved once the check passed.
func (e *Env) Notify(ctx context.Context, msg Message, resolve ResolveFunc) (Outcome, error) {
	check := msg.check(e.Tenant.ID)
	unlock, err := e.Gate.Lock(ctx, check)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock %s: %w", e.Gate.LockKey(check), err)
	}
	defer unlock()

	suppressed, err := e.Gate.Suppressed(ctx, check, e.Now)
	if err != nil {
		return Outcome{}, fmt.Errorf("dedup check: %w", err)
	}
	if suppressed {
		e.publisher.suppressed(msg.Type, msg.Policy.String())
		e.Log.DebugContext(ctx, "notification suppressed",
			slog.String("type", string(msg.Type)),
			slog.String("entity", msg.EntityID),
			slog.String("policy", msg.Policy.String()))
		return Outcome{Suppressed: true}, nil
	}

	rcpts, err := resolve(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve recipients: %w", err)
	}
	rcpts = recipients.Union(rcpts)
	if len(rcpts) == 0 {
		e.publisher.suppressed(msg.Type, "no_recipients")
		e.Log.WarnContext(ctx, "no recipients resolved, notification skipped",
			slog.String("type", string(msg.Type)),
			slog.String("entity", msg.EntityID))
		return Outcome{NoRecipients: true}, nil
	}

	created, err := e.publisher.Deliver(ctx, e.Tenant.ID, msg, rcpts, e.Now)
	out := Outcome{Created: created}
	if err != nil {
		return out, err
	}
	if len(created) == 0 {
		out.Suppressed = true
	}
	e.Log.InfoContext(ctx, "notification sent",
		slog.String("type", string(msg.Type)),
		slog.String("entity", msg.EntityID),
		slog.Int("recipients", len(created)))
	return out, nil
}

// Deliver creates msg for rcpts without any dedup check.
func (e *Env) Deliver(ctx context.Context, msg Message, rcpts []recipients.Recipient) ([]*models.Notification, error) {
	msg.Policy = dedup.PolicyNone
	return e.publisher.Deliver(ctx, e.Tenant.ID, msg, recipients.Union(rcpts), e.Now)
}
