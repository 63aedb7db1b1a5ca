package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// Overwork tracks planned weekly workload. The managers are told once when a
// user becomes overloaded; the flag clears silently when the load drops.
type Overwork struct {
	WeeklyHoursLimit float64
}

func (r *Overwork) Name() string { return NameOverwork }

func (r *Overwork) Run(ctx context.Context, env *alerting.Env) error {
	users, err := activeUsers(ctx, env)
	if err != nil {
		return err
	}
	for _, u := range users {
		u := u
		if err := env.Each(ctx, models.EntityUser, u.ID, func(log *slog.Logger) error {
			return r.evaluate(ctx, env, log, u)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Overwork) evaluate(ctx context.Context, env *alerting.Env, log *slog.Logger, u *models.User) error {
	tasks, err := env.Store.Tasks().Find(ctx, storage.TaskFilter{
		TenantID:        env.Tenant.ID,
		AssignedTo:      u.Email,
		ExcludeStatuses: models.TerminalTaskStatuses,
	})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	counted := calc.WorkloadTasks(tasks, env.Today())
	var hours float64
	ids := make([]string, len(counted))
	for i, t := range counted {
		hours += t.EffortHours()
		ids[i] = t.ID
	}
	over := hours > r.WeeklyHoursLimit

	switch {
	case over && !u.IsOverloaded:
		out, err := env.Notify(ctx, alerting.Message{
			Type:       models.TypeOverwork,
			Category:   models.CategoryAlarm,
			EntityType: models.EntityUser,
			EntityID:   u.ID,
			Title:      fmt.Sprintf("%s is overloaded this week", u.DisplayName()),
			Body: fmt.Sprintf("%s has %.1f hours of planned work this week, above the %.0f hour limit. Consider reassigning tasks.",
				u.DisplayName(), calc.Round1(hours), r.WeeklyHoursLimit),
			Link:   env.Link("/tasks?assignee=%s", u.Email),
			Policy: dedup.PolicyDaily,
			Metadata: &models.OverworkMetadata{
				WeeklyHours: calc.Round1(hours),
				LimitHours:  r.WeeklyHoursLimit,
				TaskIDs:     ids,
			},
		}, userManagers(env, u))
		if err != nil {
			return err
		}
		if out.NoRecipients {
			return nil
		}
		return r.setFlag(ctx, env, log, u, true)

	case !over && u.IsOverloaded:
		return r.setFlag(ctx, env, log, u, false)
	}
	return nil
}

func (r *Overwork) setFlag(ctx context.Context, env *alerting.Env, log *slog.Logger, u *models.User, value bool) error {
	changed, err := env.Store.Users().SetFlag(ctx, u.ID, models.FlagOverloaded, value)
	if err != nil {
		return fmt.Errorf("set overloaded=%t: %w", value, err)
	}
	if changed {
		mutation := "overloaded"
		if !value {
			mutation = "overload_cleared"
		}
		env.Mutated(mutation)
		log.InfoContext(ctx, "overload flag updated", slog.Bool("overloaded", value))
	}
	return nil
}
