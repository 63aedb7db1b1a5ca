// Package storagetest provides a migrated temporary SQLite store and seed
// helpers for package tests.
package storagetest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// New opens and migrates a store in a temporary directory removed at test end.
func New(t testing.TB) *storage.SQLiteStorage {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "riskline.db"), log)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

// Fixture seeds rows into a store, failing the test on any error.
type Fixture struct {
	T     testing.TB
	Store storage.Storage
}

// NewFixture opens a fresh store and wraps it.
func NewFixture(t testing.TB) *Fixture {
	return &Fixture{T: t, Store: New(t)}
}

func (f *Fixture) ctx() context.Context { return context.Background() }

// Tenant creates an active tenant owned by ownerEmail.
func (f *Fixture) Tenant(ownerEmail string, opts ...func(*models.Tenant)) *models.Tenant {
	f.T.Helper()
	t := &models.Tenant{
		ID:                 uuid.NewString(),
		Name:               "Acme",
		Status:             models.TenantActive,
		SubscriptionStatus: models.SubscriptionActive,
		OwnerEmail:         ownerEmail,
		FeaturesEnabled:    models.Flags{},
	}
	for _, opt := range opts {
		opt(t)
	}
	require.NoError(f.T, f.Store.Tenants().Create(f.ctx(), t))
	return t
}

// User creates an active user in tenant with the given role.
func (f *Fixture) User(tenantID, email, role string, opts ...func(*models.User)) *models.User {
	f.T.Helper()
	u := &models.User{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		Email:              email,
		FullName:           email,
		Role:               role,
		Status:             models.UserActive,
		WorkingHoursPerDay: models.DefaultWorkingHoursPerDay,
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(f.T, f.Store.Users().Create(f.ctx(), u))
	return u
}

// Project creates an active project with the given team.
func (f *Fixture) Project(tenantID, name string, team models.TeamMembers, opts ...func(*models.Project)) *models.Project {
	f.T.Helper()
	p := &models.Project{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        name,
		Status:      models.ProjectActive,
		TeamMembers: team,
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(f.T, f.Store.Projects().Create(f.ctx(), p))
	return p
}

// Role assigns email a role on project.
func (f *Fixture) Role(p *models.Project, email, role, customRole string) *models.ProjectUserRole {
	f.T.Helper()
	r := &models.ProjectUserRole{
		ID:         uuid.NewString(),
		TenantID:   p.TenantID,
		ProjectID:  p.ID,
		UserEmail:  email,
		Role:       role,
		CustomRole: customRole,
	}
	require.NoError(f.T, f.Store.Roles().Create(f.ctx(), r))
	return r
}

// Task creates a task on project.
func (f *Fixture) Task(p *models.Project, title, assignee string, status models.TaskStatus, opts ...func(*models.Task)) *models.Task {
	f.T.Helper()
	t := &models.Task{
		ID:         uuid.NewString(),
		TenantID:   p.TenantID,
		ProjectID:  p.ID,
		Title:      title,
		AssignedTo: assignee,
		Status:     status,
	}
	for _, opt := range opts {
		opt(t)
	}
	require.NoError(f.T, f.Store.Tasks().Create(f.ctx(), t))
	return t
}

// Sprint creates a sprint on project spanning [start, end].
func (f *Fixture) Sprint(p *models.Project, name string, start, end time.Time) *models.Sprint {
	f.T.Helper()
	s := &models.Sprint{
		ID:        uuid.NewString(),
		TenantID:  p.TenantID,
		ProjectID: p.ID,
		Name:      name,
		StartDate: start,
		EndDate:   end,
		Status:    models.SprintCompleted,
	}
	require.NoError(f.T, f.Store.Sprints().Create(f.ctx(), s))
	return s
}

// Velocity records a finished sprint's points.
func (f *Fixture) Velocity(p *models.Project, name string, end time.Time, committed, completed float64) *models.SprintVelocity {
	f.T.Helper()
	v := &models.SprintVelocity{
		ID:              uuid.NewString(),
		TenantID:        p.TenantID,
		ProjectID:       p.ID,
		Name:            name,
		StartDate:       end.AddDate(0, 0, -13),
		EndDate:         end,
		CommittedPoints: committed,
		CompletedPoints: completed,
	}
	require.NoError(f.T, f.Store.Velocities().Create(f.ctx(), v))
	return v
}

// Timesheet logs minutes for email on day.
func (f *Fixture) Timesheet(tenantID, projectID, email string, day time.Time, total, rework int, status string) *models.TimesheetEntry {
	f.T.Helper()
	e := &models.TimesheetEntry{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		ProjectID:     projectID,
		UserEmail:     email,
		WorkDate:      day,
		TotalMinutes:  total,
		ReworkMinutes: rework,
		Status:        status,
	}
	require.NoError(f.T, f.Store.Timesheets().Create(f.ctx(), e))
	return e
}

// Notifications returns every stored notification matching filter.
func (f *Fixture) Notifications(filter storage.NotificationFilter) []*models.Notification {
	f.T.Helper()
	out, err := f.Store.Notifications().Find(f.ctx(), filter)
	require.NoError(f.T, err)
	return out
}

// ReloadUser reads the user back from the store.
func (f *Fixture) ReloadUser(id string) *models.User {
	f.T.Helper()
	u, err := f.Store.Users().GetByID(f.ctx(), id)
	require.NoError(f.T, err)
	return u
}

// ReloadProject reads the project back from the store.
func (f *Fixture) ReloadProject(id string) *models.Project {
	f.T.Helper()
	p, err := f.Store.Projects().GetByID(f.ctx(), id)
	require.NoError(f.T, err)
	return p
}

// ReloadTenant reads the tenant back from the store.
func (f *Fixture) ReloadTenant(id string) *models.Tenant {
	f.T.Helper()
	t, err := f.Store.Tenants().GetByID(f.ctx(), id)
	require.NoError(f.T, err)
	return t
}
