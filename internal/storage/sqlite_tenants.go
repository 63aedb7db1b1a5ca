package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/models"
)

var tenantColumns = []string{
	"id", "name", "status", "subscription_status", "trial_ends_at",
	"subscription_ends_at", "owner_email", "features_enabled", "created_at",
}

type sqliteTenantRepo struct {
	repo
}

func (r *sqliteTenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	const op = "storage.tenants.Create"

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.exec(ctx, op, r.sq.Insert("tenants").
		Columns(tenantColumns...).
		Values(t.ID, t.Name, string(t.Status), t.SubscriptionStatus, utcPtr(t.TrialEndsAt),
			utcPtr(t.SubscriptionEndsAt), t.OwnerEmail, t.FeaturesEnabled, t.CreatedAt.UTC()))
	return err
}

func (r *sqliteTenantRepo) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	const op = "storage.tenants.GetByID"

	var t models.Tenant
	err := r.selectOne(ctx, op, &t, r.sq.Select(tenantColumns...).From("tenants").Where(sq.Eq{"id": id}))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: tenant %q: %w", op, id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

func (r *sqliteTenantRepo) List(ctx context.Context) ([]*models.Tenant, error) {
	const op = "storage.tenants.List"

	var tenants []*models.Tenant
	err := r.selectAll(ctx, op, &tenants, r.sq.Select(tenantColumns...).From("tenants").OrderBy("created_at", "id"))
	return tenants, err
}

func (r *sqliteTenantRepo) SetStatus(ctx context.Context, id string, status models.TenantStatus, subscriptionStatus string) (bool, error) {
	const op = "storage.tenants.SetStatus"

	n, err := r.exec(ctx, op, r.sq.Update("tenants").
		Set("status", string(status)).
		Set("subscription_status", subscriptionStatus).
		Where(sq.Eq{"id": id}).
		Where(sq.Or{
			sq.NotEq{"status": string(status)},
			sq.NotEq{"subscription_status": subscriptionStatus},
		}))
	return n > 0, err
}

func (r *sqliteTenantRepo) SetFeature(ctx context.Context, id, feature string, enabled bool) error {
	const op = "storage.tenants.SetFeature"

	value := "false"
	if enabled {
		value = "true"
	}
	n, err := r.exec(ctx, op, r.sq.Update("tenants").
		Set("features_enabled", sq.Expr("json_set(COALESCE(features_enabled, '{}'), ?, json(?))",
			fmt.Sprintf("$.%q", feature), value)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: tenant %q: %w", op, id, apperrors.ErrNotFound)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
