// Package dedup decides whether a rule may create a notification or send an
// email for an entity, and serializes the check-then-create sequence per key.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// Policy selects how repeat notifications are suppressed.
type Policy int

const (
	// PolicyNone never suppresses.
	PolicyNone Policy = iota
	// PolicyDaily suppresses when the same type was created for the entity
	// since local start of day.
	PolicyDaily
	// PolicyOpen suppresses while a notification of the same type for the
	// entity is OPEN or APPEALED.
	PolicyOpen
)

func (p Policy) String() string {
	switch p {
	case PolicyDaily:
		return "daily"
	case PolicyOpen:
		return "open"
	default:
		return "none"
	}
}

// Check identifies the notification family a rule is about to create.
type Check struct {
	TenantID string
	Type     models.NotificationType
	EntityID string
	Policy   Policy
}

// Gate applies dedup and cooldown policies.
type Gate struct {
	repo   storage.NotificationRepository
	locker Locker
	loc    *time.Location
	force  bool
}

// NewGate creates a gate. loc is the zone that defines "start of day".
func NewGate(repo storage.NotificationRepository, locker Locker, loc *time.Location) *Gate {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Gate{repo: repo, locker: locker, loc: loc}
}

// WithForce returns a copy of the gate that bypasses every policy when force is set.
func (g *Gate) WithForce(force bool) *Gate {
	cp := *g
	cp.force = force
	return &cp
}

// Forced reports whether policies are bypassed.
func (g *Gate) Forced() bool {
	return g.force
}

// Location returns the zone used for day boundaries.
func (g *Gate) Location() *time.Location {
	return g.loc
}

// Suppressed reports whether c must not produce a new notification at now.
func (g *Gate) Suppressed(ctx context.Context, c Check, now time.Time) (bool, error) {
	if g.force {
		return false, nil
	}

	filter := storage.NotificationFilter{
		TenantID: c.TenantID,
		Types:    []models.NotificationType{c.Type},
		EntityID: c.EntityID,
	}
	switch c.Policy {
	case PolicyDaily:
		since := calc.StartOfDay(now.In(g.loc))
		filter.CreatedSince = &since
	case PolicyOpen:
		filter.Statuses = models.OpenStatuses
	default:
		return false, nil
	}

	return g.repo.Exists(ctx, filter)
}

// Key returns the dedup key stored on a notification for recipient, or nil
// when the notification must not carry one.
func (g *Gate) Key(c Check, recipient string, now time.Time) *string {
	if g.force {
		return nil
	}
	var suffix string
	switch c.Policy {
	case PolicyDaily:
		suffix = now.In(g.loc).Format("2006-01-02")
	case PolicyOpen:
		suffix = "open"
	default:
		return nil
	}
	key := strings.Join([]string{string(c.Type), c.EntityID, strings.ToLower(recipient), suffix}, "|")
	return &key
}

// LockKey is the key under which the check-then-create sequence for c runs.
func (g *Gate) LockKey(c Check) string {
	return strings.Join([]string{c.TenantID, string(c.Type), c.EntityID}, "|")
}

// Lock acquires the per-family lock for c.
func (g *Gate) Lock(ctx context.Context, c Check) (func(), error) {
	return g.locker.Lock(ctx, g.LockKey(c))
}

// EmailDue reports whether an email for an existing notification may be sent
// again: never emailed, forced, or the last email is older than cooldown.
func (g *Gate) EmailDue(n *models.Notification, cooldown time.Duration, now time.Time) bool {
	if g.force || n.LastEmailSent == nil {
		return true
	}
	return now.Sub(*n.LastEmailSent) > cooldown
}
