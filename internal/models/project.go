package models

import (
	"database/sql/driver"
	"strings"
	"time"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
)

// Risk levels a rule may assign to a project.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// TeamMember is an explicit project membership with a project-level role.
type TeamMember struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TeamMembers is persisted as a JSON array on the project row.
type TeamMembers []TeamMember

// Value implements driver.Valuer.
func (m TeamMembers) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	return marshalJSON(m)
}

// Scan implements sql.Scanner.
func (m *TeamMembers) Scan(src interface{}) error {
	return unmarshalJSON(src, m)
}

// WithRole returns the emails of members holding any of the given roles.
func (m TeamMembers) WithRole(roles ...string) []string {
	var emails []string
	for _, member := range m {
		for _, role := range roles {
			if strings.EqualFold(member.Role, role) {
				emails = append(emails, member.Email)
				break
			}
		}
	}
	return emails
}

// Emails returns every member email.
func (m TeamMembers) Emails() []string {
	emails := make([]string, 0, len(m))
	for _, member := range m {
		emails = append(emails, member.Email)
	}
	return emails
}

// Project is a unit of delivery owned by a tenant.
type Project struct {
	ID          string        `db:"id" json:"id"`
	TenantID    string        `db:"tenant_id" json:"tenant_id"`
	Name        string        `db:"name" json:"name"`
	Status      ProjectStatus `db:"status" json:"status"`
	Deadline    *time.Time    `db:"deadline" json:"deadline,omitempty"`
	TeamMembers TeamMembers   `db:"team_members" json:"team_members"`
	ScopeLocked bool          `db:"scope_locked" json:"scope_locked"`
	RiskLevel   string        `db:"risk_level" json:"risk_level"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether rule jobs should evaluate the project.
func (p *Project) IsActive() bool {
	return p.Status == ProjectActive
}

// ProjectUserRole is an entry of the role-assignment table.
type ProjectUserRole struct {
	ID         string `db:"id" json:"id"`
	TenantID   string `db:"tenant_id" json:"tenant_id"`
	ProjectID  string `db:"project_id" json:"project_id"`
	UserEmail  string `db:"user_email" json:"user_email"`
	Role       string `db:"role" json:"role"`
	CustomRole string `db:"custom_role" json:"custom_role"`
}
