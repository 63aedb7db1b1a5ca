// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/good-yellow-bee/riskline/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Repository accessors
	Tenants() TenantRepository
	Projects() ProjectRepository
	Users() UserRepository
	Roles() RoleRepository
	Tasks() TaskRepository
	Sprints() SprintRepository
	Velocities() VelocityRepository
	Timesheets() TimesheetRepository
	Notifications() NotificationRepository
}

// TenantRepository defines operations on tenants.
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	// SetStatus writes status and subscription status; changed is false when
	// both already had the target values.
	SetStatus(ctx context.Context, id string, status models.TenantStatus, subscriptionStatus string) (changed bool, err error)
	SetFeature(ctx context.Context, id, feature string, enabled bool) error
}

// ProjectRepository defines operations on projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ListByTenant(ctx context.Context, tenantID string, statuses ...models.ProjectStatus) ([]*models.Project, error)
	// The setters below only write when the stored value differs and report
	// whether a write happened.
	SetStatus(ctx context.Context, id string, status models.ProjectStatus) (bool, error)
	SetScopeLocked(ctx context.Context, id string, locked bool) (bool, error)
	SetRiskLevel(ctx context.Context, id, level string) (bool, error)
}

// UserFilter selects users. Zero-valued fields are ignored.
type UserFilter struct {
	TenantID   string
	Emails     []string
	Roles      []string
	ActiveOnly bool
}

// UserRepository defines operations on users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*models.User, error)
	Find(ctx context.Context, filter UserFilter) ([]*models.User, error)
	// SetFlag writes a lock/state flag only when it differs from value.
	SetFlag(ctx context.Context, id string, flag models.UserFlag, value bool) (bool, error)
}

// RoleRepository defines operations on the project role-assignment table.
type RoleRepository interface {
	Create(ctx context.Context, role *models.ProjectUserRole) error
	ListByProject(ctx context.Context, projectID string, roles ...string) ([]*models.ProjectUserRole, error)
	ListByUser(ctx context.Context, tenantID, email string) ([]*models.ProjectUserRole, error)
}

// TaskFilter selects tasks. Zero-valued fields are ignored.
type TaskFilter struct {
	TenantID        string
	ProjectIDs      []string
	AssignedTo      string
	Unassigned      bool
	Statuses        []models.TaskStatus
	ExcludeStatuses []models.TaskStatus
	DueBefore       *time.Time
	Limit           uint64
}

// TaskRepository defines operations on tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	Find(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
}

// SprintRepository defines operations on sprints.
type SprintRepository interface {
	Create(ctx context.Context, sprint *models.Sprint) error
	// ListEnded returns sprints that ended before today, most recent first.
	ListEnded(ctx context.Context, projectID string, today time.Time, limit uint64) ([]*models.Sprint, error)
	// FindCurrentByName returns a sprint with the given name that has not ended yet.
	FindCurrentByName(ctx context.Context, projectID, name string, today time.Time) (*models.Sprint, error)
}

// VelocityRepository defines operations on sprint velocity records.
type VelocityRepository interface {
	Create(ctx context.Context, v *models.SprintVelocity) error
	// ListRecent returns the latest records by end date, most recent first.
	ListRecent(ctx context.Context, projectID string, limit uint64) ([]*models.SprintVelocity, error)
}

// TimesheetFilter selects timesheet entries with work dates in [From, To].
type TimesheetFilter struct {
	TenantID   string
	ProjectID  string
	UserEmails []string
	From       time.Time
	To         time.Time
	Statuses   []string
}

// TimesheetRepository defines operations on timesheet entries.
type TimesheetRepository interface {
	Create(ctx context.Context, entry *models.TimesheetEntry) error
	Find(ctx context.Context, filter TimesheetFilter) ([]*models.TimesheetEntry, error)
}

// NotificationFilter selects notifications. Zero-valued fields are ignored.
type NotificationFilter struct {
	TenantID         string
	Types            []models.NotificationType
	EntityID         string
	ProjectID        string
	RecipientEmail   string
	Statuses         []models.NotificationStatus
	CreatedSince     *time.Time
	Acknowledged     *bool
	ReminderSent     *bool
	EscalatedToAdmin *bool
	Limit            uint64
}

// NotificationRepository defines operations on notifications.
type NotificationRepository interface {
	// Create inserts n. A dedup key collision returns an error matching
	// apperrors.ErrDuplicate.
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	Find(ctx context.Context, filter NotificationFilter) ([]*models.Notification, error)
	Exists(ctx context.Context, filter NotificationFilter) (bool, error)
	// Refresh rewrites the display fields of an existing notification in place.
	Refresh(ctx context.Context, n *models.Notification) error
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	// ClaimReminder and ClaimEscalation flip their flag from false to true and
	// report whether this caller performed the flip.
	ClaimReminder(ctx context.Context, id string, at time.Time) (bool, error)
	ClaimEscalation(ctx context.Context, id string, at time.Time) (bool, error)
	// ReleaseReminder and ReleaseEscalation undo a claim whose follow-up
	// could not be created.
	ReleaseReminder(ctx context.Context, id string, at time.Time) error
	ReleaseEscalation(ctx context.Context, id string, at time.Time) error
	Acknowledge(ctx context.Context, id string, at time.Time) error
	// Resolve closes the notification and releases its dedup key.
	Resolve(ctx context.Context, id string, at time.Time) error
}
