package storage

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/good-yellow-bee/riskline/internal/models"
)

var taskColumns = []string{
	"id", "tenant_id", "project_id", "title", "assigned_to", "status",
	"due_date", "estimated_hours", "story_points", "created_at",
}

type sqliteTaskRepo struct {
	repo
}

func (r *sqliteTaskRepo) Create(ctx context.Context, t *models.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.exec(ctx, "storage.tasks.Create", r.sq.Insert("tasks").
		Columns(taskColumns...).
		Values(t.ID, t.TenantID, t.ProjectID, t.Title, t.AssignedTo, string(t.Status),
			utcPtr(t.DueDate), t.EstimatedHours, t.StoryPoints, t.CreatedAt.UTC()))
	return err
}

func (r *sqliteTaskRepo) Find(ctx context.Context, f TaskFilter) ([]*models.Task, error) {
	const op = "storage.tasks.Find"

	b := where(r.sq.Select(taskColumns...).From("tasks"),
		eqIfSet("tenant_id", f.TenantID),
		eqIfSet("lower(assigned_to)", strings.ToLower(f.AssignedTo)))
	if len(f.ProjectIDs) > 0 {
		b = b.Where(sq.Eq{"project_id": f.ProjectIDs})
	}
	if f.Unassigned {
		b = b.Where(sq.Eq{"assigned_to": ""})
	}
	if len(f.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": strs(f.Statuses)})
	}
	if len(f.ExcludeStatuses) > 0 {
		b = b.Where(sq.NotEq{"status": strs(f.ExcludeStatuses)})
	}
	if f.DueBefore != nil {
		b = b.Where(sq.Lt{"due_date": f.DueBefore.UTC()})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	b = b.OrderBy("due_date IS NULL", "due_date", "created_at", "id")

	var tasks []*models.Task
	err := r.selectAll(ctx, op, &tasks, b)
	return tasks, err
}
