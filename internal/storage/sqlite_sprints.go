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

var sprintColumns = []string{
	"id", "tenant_id", "project_id", "name", "goal", "start_date",
	"end_date", "status", "auto_created", "created_at",
}

type sqliteSprintRepo struct {
	repo
}

func (r *sqliteSprintRepo) Create(ctx context.Context, s *models.Sprint) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := r.exec(ctx, "storage.sprints.Create", r.sq.Insert("sprints").
		Columns(sprintColumns...).
		Values(s.ID, s.TenantID, s.ProjectID, s.Name, s.Goal, s.StartDate.UTC(),
			s.EndDate.UTC(), s.Status, s.AutoCreated, s.CreatedAt.UTC()))
	return err
}

func (r *sqliteSprintRepo) ListEnded(ctx context.Context, projectID string, today time.Time, limit uint64) ([]*models.Sprint, error) {
	const op = "storage.sprints.ListEnded"

	b := r.sq.Select(sprintColumns...).From("sprints").
		Where(sq.Eq{"project_id": projectID}).
		Where(sq.Lt{"end_date": today.UTC()}).
		OrderBy("end_date DESC", "start_date DESC")
	if limit > 0 {
		b = b.Limit(limit)
	}

	var sprints []*models.Sprint
	err := r.selectAll(ctx, op, &sprints, b)
	return sprints, err
}

func (r *sqliteSprintRepo) FindCurrentByName(ctx context.Context, projectID, name string, today time.Time) (*models.Sprint, error) {
	const op = "storage.sprints.FindCurrentByName"

	var s models.Sprint
	err := r.selectOne(ctx, op, &s, r.sq.Select(sprintColumns...).From("sprints").
		Where(sq.Eq{"project_id": projectID, "name": name}).
		Where(sq.GtOrEq{"end_date": today.UTC()}).
		OrderBy("start_date DESC").
		Limit(1))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: sprint %q: %w", op, name, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}

var velocityColumns = []string{
	"id", "tenant_id", "project_id", "sprint_id", "name", "start_date",
	"end_date", "committed_points", "completed_points", "accuracy",
}

type sqliteVelocityRepo struct {
	repo
}

func (r *sqliteVelocityRepo) Create(ctx context.Context, v *models.SprintVelocity) error {
	_, err := r.exec(ctx, "storage.velocities.Create", r.sq.Insert("sprint_velocities").
		Columns(velocityColumns...).
		Values(v.ID, v.TenantID, v.ProjectID, v.SprintID, v.Name, v.StartDate.UTC(),
			v.EndDate.UTC(), v.CommittedPoints, v.CompletedPoints, v.Accuracy))
	return err
}

func (r *sqliteVelocityRepo) ListRecent(ctx context.Context, projectID string, limit uint64) ([]*models.SprintVelocity, error) {
	const op = "storage.velocities.ListRecent"

	b := r.sq.Select(velocityColumns...).From("sprint_velocities").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("end_date DESC", "start_date DESC")
	if limit > 0 {
		b = b.Limit(limit)
	}

	var out []*models.SprintVelocity
	err := r.selectAll(ctx, op, &out, b)
	return out, err
}
