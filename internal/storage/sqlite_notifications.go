package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/models"
)

var notificationColumns = []string{
	"id", "tenant_id", "recipient_email", "user_id", "type", "category", "status",
	"entity_type", "entity_id", "project_id", "title", "message", "is_read",
	"acknowledged", "reminder_sent", "escalated_to_admin", "last_email_sent",
	"link", "metadata", "dedup_key", "created_at", "updated_at",
}

type sqliteNotificationRepo struct {
	repo
}

func (r *sqliteNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	const op = "storage.notifications.Create"

	now := time.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	if n.Status == "" {
		n.Status = models.StatusOpen
	}

	_, err := r.exec(ctx, op, r.sq.Insert("notifications").
		Columns(notificationColumns...).
		Values(n.ID, n.TenantID, n.RecipientEmail, n.UserID, string(n.Type), string(n.Category),
			string(n.Status), n.EntityType, n.EntityID, n.ProjectID, n.Title, n.Message, n.Read,
			n.Acknowledged, n.ReminderSent, n.EscalatedToAdmin, utcPtr(n.LastEmailSent),
			n.Link, n.Metadata, n.DedupKey, n.CreatedAt.UTC(), n.UpdatedAt.UTC()))
	if err != nil && isUniqueViolation(err) {
		key := ""
		if n.DedupKey != nil {
			key = *n.DedupKey
		}
		return &apperrors.DuplicateNotificationError{Key: key}
	}
	return err
}

func (r *sqliteNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	const op = "storage.notifications.GetByID"

	var n models.Notification
	err := r.selectOne(ctx, op, &n, r.sq.Select(notificationColumns...).From("notifications").Where(sq.Eq{"id": id}))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: notification %q: %w", op, id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &n, nil
}

func (r *sqliteNotificationRepo) Find(ctx context.Context, f NotificationFilter) ([]*models.Notification, error) {
	const op = "storage.notifications.Find"

	b := r.filter(r.sq.Select(notificationColumns...).From("notifications"), f).
		OrderBy("created_at DESC", "id")
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}

	var out []*models.Notification
	err := r.selectAll(ctx, op, &out, b)
	return out, err
}

func (r *sqliteNotificationRepo) Exists(ctx context.Context, f NotificationFilter) (bool, error) {
	const op = "storage.notifications.Exists"

	var one int
	err := r.selectOne(ctx, op, &one, r.filter(r.sq.Select("1").From("notifications"), f).Limit(1))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (r *sqliteNotificationRepo) filter(b sq.SelectBuilder, f NotificationFilter) sq.SelectBuilder {
	b = where(b,
		eqIfSet("tenant_id", f.TenantID),
		eqIfSet("entity_id", f.EntityID),
		eqIfSet("project_id", f.ProjectID),
		eqIfSet("lower(recipient_email)", strings.ToLower(f.RecipientEmail)))
	if len(f.Types) > 0 {
		b = b.Where(sq.Eq{"type": strs(f.Types)})
	}
	if len(f.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": strs(f.Statuses)})
	}
	if f.CreatedSince != nil {
		b = b.Where(sq.GtOrEq{"created_at": f.CreatedSince.UTC()})
	}
	if f.Acknowledged != nil {
		b = b.Where(sq.Eq{"acknowledged": *f.Acknowledged})
	}
	if f.ReminderSent != nil {
		b = b.Where(sq.Eq{"reminder_sent": *f.ReminderSent})
	}
	if f.EscalatedToAdmin != nil {
		b = b.Where(sq.Eq{"escalated_to_admin": *f.EscalatedToAdmin})
	}
	return b
}

func (r *sqliteNotificationRepo) Refresh(ctx context.Context, n *models.Notification) error {
	const op = "storage.notifications.Refresh"

	n.UpdatedAt = time.Now()
	n.Read = false
	return r.mustUpdate(ctx, op, n.ID, r.sq.Update("notifications").
		Set("title", n.Title).
		Set("message", n.Message).
		Set("link", n.Link).
		Set("metadata", n.Metadata).
		Set("project_id", n.ProjectID).
		Set("is_read", false).
		Set("updated_at", n.UpdatedAt.UTC()).
		Where(sq.Eq{"id": n.ID}))
}

func (r *sqliteNotificationRepo) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	return r.mustUpdate(ctx, "storage.notifications.MarkEmailSent", id, r.sq.Update("notifications").
		Set("last_email_sent", at.UTC()).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}))
}

func (r *sqliteNotificationRepo) ClaimReminder(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.claim(ctx, "storage.notifications.ClaimReminder", id, "reminder_sent", at)
}

func (r *sqliteNotificationRepo) ClaimEscalation(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.claim(ctx, "storage.notifications.ClaimEscalation", id, "escalated_to_admin", at)
}

func (r *sqliteNotificationRepo) claim(ctx context.Context, op, id, column string, at time.Time) (bool, error) {
	n, err := r.exec(ctx, op, r.sq.Update("notifications").
		Set(column, true).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id, column: false}))
	return n == 1, err
}

func (r *sqliteNotificationRepo) ReleaseReminder(ctx context.Context, id string, at time.Time) error {
	return r.release(ctx, "storage.notifications.ReleaseReminder", id, "reminder_sent", at)
}

func (r *sqliteNotificationRepo) ReleaseEscalation(ctx context.Context, id string, at time.Time) error {
	return r.release(ctx, "storage.notifications.ReleaseEscalation", id, "escalated_to_admin", at)
}

func (r *sqliteNotificationRepo) release(ctx context.Context, op, id, column string, at time.Time) error {
	return r.mustUpdate(ctx, op, id, r.sq.Update("notifications").
		Set(column, false).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}))
}

func (r *sqliteNotificationRepo) Acknowledge(ctx context.Context, id string, at time.Time) error {
	return r.mustUpdate(ctx, "storage.notifications.Acknowledge", id, r.sq.Update("notifications").
		Set("acknowledged", true).
		Set("is_read", true).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}))
}

func (r *sqliteNotificationRepo) Resolve(ctx context.Context, id string, at time.Time) error {
	return r.mustUpdate(ctx, "storage.notifications.Resolve", id, r.sq.Update("notifications").
		Set("status", string(models.StatusResolved)).
		Set("dedup_key", nil).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}))
}

func (r *sqliteNotificationRepo) mustUpdate(ctx context.Context, op, id string, b sq.UpdateBuilder) error {
	n, err := r.exec(ctx, op, b)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: notification %q: %w", op, id, apperrors.ErrNotFound)
	}
	return nil
}
