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

var projectColumns = []string{
	"id", "tenant_id", "name", "status", "deadline", "team_members",
	"scope_locked", "risk_level", "created_at", "updated_at",
}

type sqliteProjectRepo struct {
	repo
}

func (r *sqliteProjectRepo) Create(ctx context.Context, p *models.Project) error {
	const op = "storage.projects.Create"

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err := r.exec(ctx, op, r.sq.Insert("projects").
		Columns(projectColumns...).
		Values(p.ID, p.TenantID, p.Name, string(p.Status), utcPtr(p.Deadline), p.TeamMembers,
			p.ScopeLocked, p.RiskLevel, p.CreatedAt.UTC(), p.UpdatedAt.UTC()))
	return err
}

func (r *sqliteProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	const op = "storage.projects.GetByID"

	var p models.Project
	err := r.selectOne(ctx, op, &p, r.sq.Select(projectColumns...).From("projects").Where(sq.Eq{"id": id}))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: project %q: %w", op, id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

func (r *sqliteProjectRepo) ListByTenant(ctx context.Context, tenantID string, statuses ...models.ProjectStatus) ([]*models.Project, error) {
	const op = "storage.projects.ListByTenant"

	b := r.sq.Select(projectColumns...).From("projects").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("name", "id")
	if len(statuses) > 0 {
		b = b.Where(sq.Eq{"status": strs(statuses)})
	}

	var projects []*models.Project
	err := r.selectAll(ctx, op, &projects, b)
	return projects, err
}

func (r *sqliteProjectRepo) SetStatus(ctx context.Context, id string, status models.ProjectStatus) (bool, error) {
	return r.setIfChanged(ctx, "storage.projects.SetStatus", id, "status", string(status))
}

func (r *sqliteProjectRepo) SetScopeLocked(ctx context.Context, id string, locked bool) (bool, error) {
	return r.setIfChanged(ctx, "storage.projects.SetScopeLocked", id, "scope_locked", locked)
}

func (r *sqliteProjectRepo) SetRiskLevel(ctx context.Context, id, level string) (bool, error) {
	return r.setIfChanged(ctx, "storage.projects.SetRiskLevel", id, "risk_level", level)
}

func (r *sqliteProjectRepo) setIfChanged(ctx context.Context, op, id, column string, value interface{}) (bool, error) {
	n, err := r.exec(ctx, op, r.sq.Update("projects").
		Set(column, value).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{column: value}))
	return n > 0, err
}

// strs converts a slice of string-kinded enums for use as query arguments.
func strs[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
