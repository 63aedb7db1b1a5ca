// Package recipients resolves who should receive a notification.
package recipients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// Recipient is a resolved notification target.
type Recipient struct {
	Email  string
	UserID string
	Name   string
}

// DisplayName returns the name, falling back to the email.
func (r Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Email
}

// Resolver looks recipients up through storage.
type Resolver struct {
	store storage.Storage
}

// NewResolver creates a resolver.
func NewResolver(store storage.Storage) *Resolver {
	return &Resolver{store: store}
}

// ForProject walks the fallback chain and stops at the first non-empty step:
// team members holding a wanted role, then role assignments (an admin with
// the project_manager custom role counts as a PM), then tenant owner and admins.
func (r *Resolver) ForProject(ctx context.Context, tenant *models.Tenant, project *models.Project, wanted ...string) ([]Recipient, error) {
	managers, err := r.projectManagers(ctx, project, wanted)
	if err != nil {
		return nil, err
	}
	if len(managers) > 0 {
		return managers, nil
	}
	return r.Admins(ctx, tenant)
}

// ProjectManagers is ForProject without the tenant admin fallback.
func (r *Resolver) ProjectManagers(ctx context.Context, project *models.Project, wanted ...string) ([]Recipient, error) {
	return r.projectManagers(ctx, project, wanted)
}

func (r *Resolver) projectManagers(ctx context.Context, project *models.Project, wanted []string) ([]Recipient, error) {
	if len(wanted) == 0 {
		wanted = []string{models.RoleProjectManager}
	}

	if emails := project.TeamMembers.WithRole(wanted...); len(emails) > 0 {
		found, err := r.activeUsers(ctx, project.TenantID, emails)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return found, nil
		}
	}

	roles, err := r.store.Roles().ListByProject(ctx, project.ID, wanted...)
	if err != nil {
		return nil, fmt.Errorf("list project roles: %w", err)
	}
	if len(roles) == 0 {
		return nil, nil
	}
	emails := make([]string, 0, len(roles))
	for _, role := range roles {
		emails = append(emails, role.UserEmail)
	}
	return r.activeUsers(ctx, project.TenantID, emails)
}

// Admins returns the tenant owner together with every active tenant admin.
func (r *Resolver) Admins(ctx context.Context, tenant *models.Tenant) ([]Recipient, error) {
	admins, err := r.store.Users().Find(ctx, storage.UserFilter{
		TenantID:   tenant.ID,
		Roles:      []string{models.RoleAdmin},
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list tenant admins: %w", err)
	}

	var out []Recipient
	if tenant.OwnerEmail != "" {
		owner := Recipient{Email: tenant.OwnerEmail}
		u, err := r.store.Users().GetByEmail(ctx, tenant.ID, tenant.OwnerEmail)
		switch {
		case err == nil && u.IsActive():
			owner = fromUser(u)
		case err == nil:
			owner = Recipient{}
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, fmt.Errorf("load tenant owner: %w", err)
		}
		if owner.Email != "" {
			out = append(out, owner)
		}
	}
	for _, u := range admins {
		out = append(out, fromUser(u))
	}
	return Union(out), nil
}

// ForUser unions the managers of every active project the user belongs to,
// falling back to tenant admins when none resolve.
func (r *Resolver) ForUser(ctx context.Context, tenant *models.Tenant, user *models.User) ([]Recipient, error) {
	projects, err := r.ProjectsOf(ctx, user)
	if err != nil {
		return nil, err
	}

	var all []Recipient
	for _, p := range projects {
		managers, err := r.projectManagers(ctx, p, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, managers...)
	}
	all = Union(all)
	if len(all) > 0 {
		return all, nil
	}
	return r.Admins(ctx, tenant)
}

// ProjectsOf returns the active projects the user is a team member of or
// holds a role assignment on.
func (r *Resolver) ProjectsOf(ctx context.Context, user *models.User) ([]*models.Project, error) {
	projects, err := r.store.Projects().ListByTenant(ctx, user.TenantID, models.ProjectActive)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	assignments, err := r.store.Roles().ListByUser(ctx, user.TenantID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	assigned := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		assigned[a.ProjectID] = true
	}

	var out []*models.Project
	for _, p := range projects {
		if assigned[p.ID] || containsFold(p.TeamMembers.Emails(), user.Email) {
			out = append(out, p)
		}
	}
	return out, nil
}

// User wraps a single user as a recipient.
func User(u *models.User) Recipient {
	return fromUser(u)
}

func (r *Resolver) activeUsers(ctx context.Context, tenantID string, emails []string) ([]Recipient, error) {
	users, err := r.store.Users().Find(ctx, storage.UserFilter{
		TenantID:   tenantID,
		Emails:     emails,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	out := make([]Recipient, 0, len(users))
	for _, u := range users {
		out = append(out, fromUser(u))
	}
	return Union(out), nil
}

func fromUser(u *models.User) Recipient {
	return Recipient{Email: u.Email, UserID: u.ID, Name: u.FullName}
}

// Union merges recipient lists, dropping repeats by case-insensitive email.
// The first occurrence wins.
func Union(lists ...[]Recipient) []Recipient {
	seen := make(map[string]bool)
	var out []Recipient
	for _, list := range lists {
		for _, rcpt := range list {
			key := strings.ToLower(strings.TrimSpace(rcpt.Email))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, rcpt)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
