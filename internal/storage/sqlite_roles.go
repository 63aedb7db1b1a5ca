package storage

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/good-yellow-bee/riskline/internal/models"
)

var roleColumns = []string{"id", "tenant_id", "project_id", "user_email", "role", "custom_role"}

type sqliteRoleRepo struct {
	repo
}

func (r *sqliteRoleRepo) Create(ctx context.Context, role *models.ProjectUserRole) error {
	_, err := r.exec(ctx, "storage.roles.Create", r.sq.Insert("project_user_roles").
		Columns(roleColumns...).
		Values(role.ID, role.TenantID, role.ProjectID, role.UserEmail, role.Role, role.CustomRole))
	return err
}

// ListByProject returns assignments of the project. With roles given, an entry
// matches when either its role or its custom role is one of them.
func (r *sqliteRoleRepo) ListByProject(ctx context.Context, projectID string, roles ...string) ([]*models.ProjectUserRole, error) {
	const op = "storage.roles.ListByProject"

	b := r.sq.Select(roleColumns...).From("project_user_roles").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("user_email")
	if len(roles) > 0 {
		b = b.Where(sq.Or{sq.Eq{"role": roles}, sq.Eq{"custom_role": roles}})
	}

	var out []*models.ProjectUserRole
	err := r.selectAll(ctx, op, &out, b)
	return out, err
}

func (r *sqliteRoleRepo) ListByUser(ctx context.Context, tenantID, email string) ([]*models.ProjectUserRole, error) {
	const op = "storage.roles.ListByUser"

	var out []*models.ProjectUserRole
	err := r.selectAll(ctx, op, &out, r.sq.Select(roleColumns...).From("project_user_roles").
		Where(sq.Eq{"tenant_id": tenantID, "lower(user_email)": strings.ToLower(email)}).
		OrderBy("project_id"))
	return out, err
}
