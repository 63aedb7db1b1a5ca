package storage

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/good-yellow-bee/riskline/internal/models"
)

var timesheetColumns = []string{
	"id", "tenant_id", "project_id", "user_email", "work_date",
	"total_minutes", "rework_minutes", "status",
}

type sqliteTimesheetRepo struct {
	repo
}

func (r *sqliteTimesheetRepo) Create(ctx context.Context, e *models.TimesheetEntry) error {
	_, err := r.exec(ctx, "storage.timesheets.Create", r.sq.Insert("timesheets").
		Columns(timesheetColumns...).
		Values(e.ID, e.TenantID, e.ProjectID, e.UserEmail, e.WorkDate.UTC(),
			e.TotalMinutes, e.ReworkMinutes, e.Status))
	return err
}

func (r *sqliteTimesheetRepo) Find(ctx context.Context, f TimesheetFilter) ([]*models.TimesheetEntry, error) {
	const op = "storage.timesheets.Find"

	b := where(r.sq.Select(timesheetColumns...).From("timesheets").OrderBy("work_date", "user_email"),
		eqIfSet("tenant_id", f.TenantID),
		eqIfSet("project_id", f.ProjectID))
	if len(f.UserEmails) > 0 {
		lowered := make([]string, len(f.UserEmails))
		for i, e := range f.UserEmails {
			lowered[i] = strings.ToLower(e)
		}
		b = b.Where(sq.Eq{"lower(user_email)": lowered})
	}
	if !f.From.IsZero() {
		b = b.Where(sq.GtOrEq{"work_date": f.From.UTC()})
	}
	if !f.To.IsZero() {
		b = b.Where(sq.LtOrEq{"work_date": f.To.UTC()})
	}
	if len(f.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": f.Statuses})
	}

	var entries []*models.TimesheetEntry
	err := r.selectAll(ctx, op, &entries, b)
	return entries, err
}
