package models

import (
	"strings"
	"time"
)

// Well-known role names.
const (
	RoleAdmin          = "admin"
	RoleOwner          = "owner"
	RoleProjectManager = "project_manager"
	RoleMember         = "member"
)

// User statuses.
const (
	UserActive   = "active"
	UserInactive = "inactive"
)

// DefaultWorkingHoursPerDay is used when a user has no configured hours.
const DefaultWorkingHoursPerDay = 8.0

// User is a tenant member whose workload and timesheets are monitored.
type User struct {
	ID                 string     `db:"id" json:"id"`
	TenantID           string     `db:"tenant_id" json:"tenant_id"`
	Email              string     `db:"email" json:"email"`
	FullName           string     `db:"full_name" json:"full_name"`
	Role               string     `db:"role" json:"role"`
	CustomRole         string     `db:"custom_role" json:"custom_role"`
	Status             string     `db:"status" json:"status"`
	WorkingHoursPerDay float64    `db:"working_hours_per_day" json:"working_hours_per_day"`
	WorkingDays        StringList `db:"working_days" json:"working_days"`
	IsOverdueBlocked   bool       `db:"is_overdue_blocked" json:"is_overdue_blocked"`
	IsOverloaded       bool       `db:"is_overloaded" json:"is_overloaded"`
	IsTimesheetLocked  bool       `db:"is_timesheet_locked" json:"is_timesheet_locked"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// IsActive returns true if the user account is active.
func (u *User) IsActive() bool {
	return u.Status == UserActive
}

// IsAdmin returns true if user has admin role.
func (u *User) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}

// IsProjectManager treats an admin with the project_manager custom role as a PM.
func (u *User) IsProjectManager() bool {
	return strings.EqualFold(u.Role, RoleProjectManager) ||
		(u.IsAdmin() && strings.EqualFold(u.CustomRole, RoleProjectManager))
}

// DailyMinutes returns the user's daily availability in minutes.
func (u *User) DailyMinutes() float64 {
	hours := u.WorkingHoursPerDay
	if hours <= 0 {
		hours = DefaultWorkingHoursPerDay
	}
	return hours * 60
}

// DisplayName returns the full name, falling back to the email.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// UserFlag names one of the lock/state booleans rule jobs toggle.
type UserFlag string

const (
	FlagOverdueBlocked  UserFlag = "is_overdue_blocked"
	FlagOverloaded      UserFlag = "is_overloaded"
	FlagTimesheetLocked UserFlag = "is_timesheet_locked"
)

// Get returns the current value of the flag on u.
func (f UserFlag) Get(u *User) bool {
	switch f {
	case FlagOverdueBlocked:
		return u.IsOverdueBlocked
	case FlagOverloaded:
		return u.IsOverloaded
	case FlagTimesheetLocked:
		return u.IsTimesheetLocked
	}
	return false
}

// Set updates the flag on the in-memory user.
func (f UserFlag) Set(u *User, v bool) {
	switch f {
	case FlagOverdueBlocked:
		u.IsOverdueBlocked = v
	case FlagOverloaded:
		u.IsOverloaded = v
	case FlagTimesheetLocked:
		u.IsTimesheetLocked = v
	}
}

// Valid reports whether f is a known flag column.
func (f UserFlag) Valid() bool {
	switch f {
	case FlagOverdueBlocked, FlagOverloaded, FlagTimesheetLocked:
		return true
	}
	return false
}
