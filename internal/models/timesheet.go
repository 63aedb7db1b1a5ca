package models

import "time"

// Timesheet entry statuses.
const (
	TimesheetDraft     = "draft"
	TimesheetSubmitted = "submitted"
	TimesheetApproved  = "approved"
	TimesheetRejected  = "rejected"
)

// CountedTimesheetStatuses are the statuses that count as logged work.
var CountedTimesheetStatuses = []string{TimesheetSubmitted, TimesheetApproved}

// TimesheetEntry is one day of logged work for one user on one project.
type TimesheetEntry struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	ProjectID     string    `db:"project_id" json:"project_id"`
	UserEmail     string    `db:"user_email" json:"user_email"`
	WorkDate      time.Time `db:"work_date" json:"work_date"`
	TotalMinutes  int       `db:"total_minutes" json:"total_minutes"`
	ReworkMinutes int       `db:"rework_minutes" json:"rework_minutes"`
	Status        string    `db:"status" json:"status"`
}
