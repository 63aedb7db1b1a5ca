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

var userColumns = []string{
	"id", "tenant_id", "email", "full_name", "role", "custom_role", "status",
	"working_hours_per_day", "working_days", "is_overdue_blocked", "is_overloaded",
	"is_timesheet_locked", "created_at", "updated_at",
}

type sqliteUserRepo struct {
	repo
}

func (r *sqliteUserRepo) Create(ctx context.Context, u *models.User) error {
	const op = "storage.users.Create"

	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	if u.Status == "" {
		u.Status = models.UserActive
	}
	_, err := r.exec(ctx, op, r.sq.Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.TenantID, u.Email, u.FullName, u.Role, u.CustomRole, u.Status,
			u.WorkingHoursPerDay, u.WorkingDays, u.IsOverdueBlocked, u.IsOverloaded,
			u.IsTimesheetLocked, u.CreatedAt.UTC(), u.UpdatedAt.UTC()))
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: user %q: %w", op, u.Email, apperrors.ErrDuplicate)
	}
	return err
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "storage.users.GetByID", sq.Eq{"id": id}, id)
}

func (r *sqliteUserRepo) GetByEmail(ctx context.Context, tenantID, email string) (*models.User, error) {
	return r.getOne(ctx, "storage.users.GetByEmail",
		sq.Eq{"tenant_id": tenantID, "lower(email)": strings.ToLower(email)}, email)
}

func (r *sqliteUserRepo) getOne(ctx context.Context, op string, pred sq.Sqlizer, key string) (*models.User, error) {
	var u models.User
	err := r.selectOne(ctx, op, &u, r.sq.Select(userColumns...).From("users").Where(pred))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: user %q: %w", op, key, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

func (r *sqliteUserRepo) Find(ctx context.Context, f UserFilter) ([]*models.User, error) {
	const op = "storage.users.Find"

	b := where(r.sq.Select(userColumns...).From("users").OrderBy("email"),
		eqIfSet("tenant_id", f.TenantID))
	if len(f.Emails) > 0 {
		lowered := make([]string, len(f.Emails))
		for i, e := range f.Emails {
			lowered[i] = strings.ToLower(e)
		}
		b = b.Where(sq.Eq{"lower(email)": lowered})
	}
	if len(f.Roles) > 0 {
		b = b.Where(sq.Eq{"role": f.Roles})
	}
	if f.ActiveOnly {
		b = b.Where(sq.Eq{"status": models.UserActive})
	}

	var users []*models.User
	err := r.selectAll(ctx, op, &users, b)
	return users, err
}

func (r *sqliteUserRepo) SetFlag(ctx context.Context, id string, flag models.UserFlag, value bool) (bool, error) {
	const op = "storage.users.SetFlag"

	if !flag.Valid() {
		return false, fmt.Errorf("%s: unknown flag %q", op, flag)
	}
	column := string(flag)
	n, err := r.exec(ctx, op, r.sq.Update("users").
		Set(column, value).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{column: value}))
	return n > 0, err
}
