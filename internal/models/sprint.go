package models

import "time"

// Sprint statuses.
const (
	SprintPlanned   = "planned"
	SprintActive    = "active"
	SprintCompleted = "completed"
)

// Sprint is a time-boxed iteration of a project.
type Sprint struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	ProjectID   string    `db:"project_id" json:"project_id"`
	Name        string    `db:"name" json:"name"`
	Goal        string    `db:"goal" json:"goal"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	Status      string    `db:"status" json:"status"`
	AutoCreated bool      `db:"auto_created" json:"auto_created"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SprintVelocity is the delivery record of a finished sprint.
type SprintVelocity struct {
	ID              string    `db:"id" json:"id"`
	TenantID        string    `db:"tenant_id" json:"tenant_id"`
	ProjectID       string    `db:"project_id" json:"project_id"`
	SprintID        string    `db:"sprint_id" json:"sprint_id"`
	Name            string    `db:"name" json:"name"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	CommittedPoints float64   `db:"committed_points" json:"committed_points"`
	CompletedPoints float64   `db:"completed_points" json:"completed_points"`
	Accuracy        float64   `db:"accuracy" json:"accuracy"`
}

// EffectiveAccuracy returns the stored accuracy or derives it from points.
func (v *SprintVelocity) EffectiveAccuracy() float64 {
	if v.Accuracy > 0 {
		return v.Accuracy
	}
	if v.CommittedPoints <= 0 {
		return 0
	}
	return v.CompletedPoints / v.CommittedPoints * 100
}
