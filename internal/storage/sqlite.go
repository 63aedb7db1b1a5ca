package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	log  *slog.Logger
	db   *sqlx.DB

	tenants       *sqliteTenantRepo
	projects      *sqliteProjectRepo
	users         *sqliteUserRepo
	roles         *sqliteRoleRepo
	tasks         *sqliteTaskRepo
	sprints       *sqliteSprintRepo
	velocities    *sqliteVelocityRepo
	timesheets    *sqliteTimesheetRepo
	notifications *sqliteNotificationRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string, log *slog.Logger) *SQLiteStorage {
	if log == nil {
		log = slog.Default()
	}
	return &SQLiteStorage{
		path: path,
		log:  log,
	}
}

// NewSQLiteStorageWithDB wraps an already opened connection. Open must not be
// called on the result.
func NewSQLiteStorageWithDB(db *sqlx.DB, log *slog.Logger) *SQLiteStorage {
	s := NewSQLiteStorage("", log)
	s.attach(db)
	return s
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	if s.path == "" {
		return fmt.Errorf("database path is required")
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_time_format", "sqlite")
	dsn := fmt.Sprintf("file:%s?%s", s.path, q.Encode())

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.attach(db)
	s.log.Debug("database opened", slog.String("path", s.path))

	return nil
}

func (s *SQLiteStorage) attach(db *sqlx.DB) {
	s.db = db
	b := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	base := repo{db: db, sq: b, log: s.log}

	s.tenants = &sqliteTenantRepo{repo: base}
	s.projects = &sqliteProjectRepo{repo: base}
	s.users = &sqliteUserRepo{repo: base}
	s.roles = &sqliteRoleRepo{repo: base}
	s.tasks = &sqliteTaskRepo{repo: base}
	s.sprints = &sqliteSprintRepo{repo: base}
	s.velocities = &sqliteVelocityRepo{repo: base}
	s.timesheets = &sqliteTimesheetRepo{repo: base}
	s.notifications = &sqliteNotificationRepo{repo: base}
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sqlx.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not open")
	}
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Tenants returns the tenant repository.
func (s *SQLiteStorage) Tenants() TenantRepository { return s.tenants }

// Projects returns the project repository.
func (s *SQLiteStorage) Projects() ProjectRepository { return s.projects }

// Users returns the user repository.
func (s *SQLiteStorage) Users() UserRepository { return s.users }

// Roles returns the project role repository.
func (s *SQLiteStorage) Roles() RoleRepository { return s.roles }

// Tasks returns the task repository.
func (s *SQLiteStorage) Tasks() TaskRepository { return s.tasks }

// Sprints returns the sprint repository.
func (s *SQLiteStorage) Sprints() SprintRepository { return s.sprints }

// Velocities returns the sprint velocity repository.
func (s *SQLiteStorage) Velocities() VelocityRepository { return s.velocities }

// Timesheets returns the timesheet repository.
func (s *SQLiteStorage) Timesheets() TimesheetRepository { return s.timesheets }

// Notifications returns the notification repository.
func (s *SQLiteStorage) Notifications() NotificationRepository { return s.notifications }

// repo carries what every table repository needs.
type repo struct {
	db  *sqlx.DB
	sq  sq.StatementBuilderType
	log *slog.Logger
}

func (r repo) selectAll(ctx context.Context, op string, dst interface{}, b sq.SelectBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	if err := r.db.SelectContext(ctx, dst, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r repo) selectOne(ctx context.Context, op string, dst interface{}, b sq.SelectBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	return r.db.GetContext(ctx, dst, query, args...)
}

// exec runs a write and returns the number of affected rows.
func (r repo) exec(ctx context.Context, op string, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: build query: %w", op, err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
}

func eqIfSet(column, value string) sq.Sqlizer {
	if value == "" {
		return nil
	}
	return sq.Eq{column: value}
}

// where applies every non-nil predicate.
func where(b sq.SelectBuilder, preds ...sq.Sqlizer) sq.SelectBuilder {
	for _, p := range preds {
		if p != nil {
			b = b.Where(p)
		}
	}
	return b
}
