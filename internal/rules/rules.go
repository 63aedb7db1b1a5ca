// Package rules implements the risk-detection rule jobs. Each rule is an
// alerting.Rule evaluated per tenant by alerting.Runner.
package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/recipients"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// Rule command names.
const (
	NameReworkTrend      = "rework-trend"
	NameDeadlineRisk     = "deadline-risk"
	NameLowVelocity      = "low-velocity"
	NameTeamUtilization  = "team-utilization"
	NameOverwork         = "overwork"
	NameMissingTimesheet = "missing-timesheets"
	NameOverdueTasks     = "overdue-tasks"
	NameIdleTime         = "idle-time"
	NameUnderUtilization = "under-utilization"
	NameSubscription     = "subscription"
)

// Config holds the injected rule settings. Every other threshold is a
// product constant defined next to its rule.
type Config struct {
	// OverworkWeeklyHours is the planned weekly workload above which a user
	// is overloaded.
	OverworkWeeklyHours float64
	// OverdueEmailCooldown is the minimum gap between overdue alarm emails.
	OverdueEmailCooldown time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		OverworkWeeklyHours:  66,
		OverdueEmailCooldown: 4 * time.Hour,
	}
}

// Names returns every rule name in run-all order.
func Names() []string {
	return []string{
		NameSubscription,
		NameReworkTrend,
		NameDeadlineRisk,
		NameLowVelocity,
		NameTeamUtilization,
		NameOverwork,
		NameMissingTimesheet,
		NameOverdueTasks,
		NameIdleTime,
		NameUnderUtilization,
	}
}

// New returns the rule registered under name.
func New(name string, cfg Config) (alerting.Rule, error) {
	switch name {
	case NameReworkTrend:
		return &ReworkTrend{}, nil
	case NameDeadlineRisk:
		return &DeadlineRisk{}, nil
	case NameLowVelocity:
		return &LowVelocity{}, nil
	case NameTeamUtilization:
		return &TeamUtilization{}, nil
	case NameOverwork:
		return &Overwork{WeeklyHoursLimit: cfg.OverworkWeeklyHours}, nil
	case NameMissingTimesheet:
		return &MissingTimesheets{}, nil
	case NameOverdueTasks:
		return &OverdueTasks{EmailCooldown: cfg.OverdueEmailCooldown}, nil
	case NameIdleTime:
		return &IdleTime{}, nil
	case NameUnderUtilization:
		return &UnderUtilization{}, nil
	case NameSubscription:
		return &Subscription{}, nil
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownRule, name)
}

// All returns every rule in run-all order.
func All(cfg Config) []alerting.Rule {
	names := Names()
	out := make([]alerting.Rule, 0, len(names))
	for _, name := range names {
		r, _ := New(name, cfg)
		out = append(out, r)
	}
	return out
}

func activeProjects(ctx context.Context, env *alerting.Env) ([]*models.Project, error) {
	projects, err := env.Store.Projects().ListByTenant(ctx, env.Tenant.ID, models.ProjectActive)
	if err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}
	return projects, nil
}

func activeUsers(ctx context.Context, env *alerting.Env) ([]*models.User, error) {
	users, err := env.Store.Users().Find(ctx, storage.UserFilter{TenantID: env.Tenant.ID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

// managersAndAdmins is the escalated audience of an alarm: the project's
// managers together with every tenant admin and the owner.
func managersAndAdmins(env *alerting.Env, p *models.Project) alerting.ResolveFunc {
	return func(ctx context.Context) ([]recipients.Recipient, error) {
		managers, err := env.Resolver.ProjectManagers(ctx, p)
		if err != nil {
			return nil, err
		}
		admins, err := env.Resolver.Admins(ctx, env.Tenant)
		if err != nil {
			return nil, err
		}
		return recipients.Union(managers, admins), nil
	}
}

func projectManagers(env *alerting.Env, p *models.Project) alerting.ResolveFunc {
	return func(ctx context.Context) ([]recipients.Recipient, error) {
		return env.Resolver.ForProject(ctx, env.Tenant, p)
	}
}

func userManagers(env *alerting.Env, u *models.User) alerting.ResolveFunc {
	return func(ctx context.Context) ([]recipients.Recipient, error) {
		return env.Resolver.ForUser(ctx, env.Tenant, u)
	}
}

// dayKey identifies a civil date.
func dayKey(t time.Time) string {
	return calc.Day(t).Format("2006-01-02")
}

// loggedOn sums counted minutes over the entries whose work date is one of days.
func loggedOn(entries []*models.TimesheetEntry, days []time.Time) float64 {
	keep := make(map[string]bool, len(days))
	for _, d := range days {
		keep[dayKey(d)] = true
	}
	var total float64
	for _, e := range entries {
		if keep[dayKey(e.WorkDate)] {
			total += float64(e.TotalMinutes)
		}
	}
	return total
}

// span returns the oldest and newest of days.
func span(days []time.Time) (from, to time.Time) {
	sorted := make([]time.Time, len(days))
	copy(sorted, days)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted[0], sorted[len(sorted)-1]
}

// userTimesheets loads counted entries of emails over days.
func userTimesheets(ctx context.Context, env *alerting.Env, emails []string, days []time.Time) ([]*models.TimesheetEntry, error) {
	from, to := span(days)
	entries, err := env.Store.Timesheets().Find(ctx, storage.TimesheetFilter{
		TenantID:   env.Tenant.ID,
		UserEmails: emails,
		From:       from,
		To:         to,
		Statuses:   models.CountedTimesheetStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("load timesheets: %w", err)
	}
	return entries, nil
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", calc.Round1(v))
}
