package storage

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS tenants (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'trial',
				subscription_status TEXT NOT NULL DEFAULT '',
				trial_ends_at DATETIME,
				subscription_ends_at DATETIME,
				owner_email TEXT NOT NULL DEFAULT '',
				features_enabled TEXT NOT NULL DEFAULT '{}',
				created_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'planning',
				deadline DATETIME,
				team_members TEXT NOT NULL DEFAULT '[]',
				scope_locked INTEGER NOT NULL DEFAULT 0,
				risk_level TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				email TEXT NOT NULL,
				full_name TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'member',
				custom_role TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'active',
				working_hours_per_day REAL NOT NULL DEFAULT 0,
				working_days TEXT NOT NULL DEFAULT '[]',
				is_overdue_blocked INTEGER NOT NULL DEFAULT 0,
				is_overloaded INTEGER NOT NULL DEFAULT 0,
				is_timesheet_locked INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (tenant_id, email),
				FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS project_user_roles (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				user_email TEXT NOT NULL,
				role TEXT NOT NULL,
				custom_role TEXT NOT NULL DEFAULT '',
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				title TEXT NOT NULL,
				assigned_to TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'backlog',
				due_date DATETIME,
				estimated_hours REAL NOT NULL DEFAULT 0,
				story_points REAL NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS sprints (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				name TEXT NOT NULL,
				goal TEXT NOT NULL DEFAULT '',
				start_date DATETIME NOT NULL,
				end_date DATETIME NOT NULL,
				status TEXT NOT NULL DEFAULT 'planned',
				auto_created INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS sprint_velocities (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				sprint_id TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				start_date DATETIME NOT NULL,
				end_date DATETIME NOT NULL,
				committed_points REAL NOT NULL DEFAULT 0,
				completed_points REAL NOT NULL DEFAULT 0,
				accuracy REAL NOT NULL DEFAULT 0,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS timesheets (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				project_id TEXT NOT NULL DEFAULT '',
				user_email TEXT NOT NULL,
				work_date DATETIME NOT NULL,
				total_minutes INTEGER NOT NULL DEFAULT 0,
				rework_minutes INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'draft'
			);

			CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				recipient_email TEXT NOT NULL,
				user_id TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL,
				category TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'OPEN',
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				project_id TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				is_read INTEGER NOT NULL DEFAULT 0,
				acknowledged INTEGER NOT NULL DEFAULT 0,
				reminder_sent INTEGER NOT NULL DEFAULT 0,
				escalated_to_admin INTEGER NOT NULL DEFAULT 0,
				last_email_sent DATETIME,
				link TEXT NOT NULL DEFAULT '',
				metadata TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_projects_tenant ON projects(tenant_id, status);
			CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id, status);
			CREATE INDEX IF NOT EXISTS idx_roles_project ON project_user_roles(project_id);
			CREATE INDEX IF NOT EXISTS idx_roles_user ON project_user_roles(tenant_id, user_email);
			CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(tenant_id, assigned_to, status);
			CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, status);
			CREATE INDEX IF NOT EXISTS idx_sprints_project ON sprints(project_id, end_date);
			CREATE INDEX IF NOT EXISTS idx_velocities_project ON sprint_velocities(project_id, end_date);
			CREATE INDEX IF NOT EXISTS idx_timesheets_user ON timesheets(tenant_id, user_email, work_date);
			CREATE INDEX IF NOT EXISTS idx_timesheets_project ON timesheets(project_id, work_date);
			CREATE INDEX IF NOT EXISTS idx_notifications_entity ON notifications(tenant_id, type, entity_id);
			CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_email, created_at);
			CREATE INDEX IF NOT EXISTS idx_notifications_sweep ON notifications(status, acknowledged, created_at);
		`,
	},
	{
		Version: 2,
		Name:    "notification_dedup_key",
		Up: `
			ALTER TABLE notifications ADD COLUMN dedup_key TEXT;
			CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_dedup_key
				ON notifications(dedup_key) WHERE dedup_key IS NOT NULL;
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database not open")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err = tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
