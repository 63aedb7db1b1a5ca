package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/recipients"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

const overdueBlockCount = 3

// OverdueTasks blocks users with three or more overdue tasks and keeps one
// open alarm per user. The alarm is refreshed in place on later runs and
// re-emailed only after EmailCooldown. When the backlog clears, the block is
// lifted and open alarms are resolved.
type OverdueTasks struct {
	EmailCooldown time.Duration
}

func (r *OverdueTasks) Name() string { return NameOverdueTasks }

func (r *OverdueTasks) Run(ctx context.Context, env *alerting.Env) error {
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

func (r *OverdueTasks) evaluate(ctx context.Context, env *alerting.Env, log *slog.Logger, u *models.User) error {
	now := calc.Wall(env.Now)
	overdue, err := env.Store.Tasks().Find(ctx, storage.TaskFilter{
		TenantID:        env.Tenant.ID,
		AssignedTo:      u.Email,
		ExcludeStatuses: models.TerminalTaskStatuses,
		DueBefore:       &now,
	})
	if err != nil {
		return fmt.Errorf("list overdue tasks: %w", err)
	}

	blocked := len(overdue) >= overdueBlockCount
	changed, err := env.Store.Users().SetFlag(ctx, u.ID, models.FlagOverdueBlocked, blocked)
	if err != nil {
		return fmt.Errorf("set overdue block=%t: %w", blocked, err)
	}
	if changed {
		mutation := "overdue_blocked"
		if !blocked {
			mutation = "overdue_unblocked"
		}
		env.Mutated(mutation)
		log.InfoContext(ctx, "overdue block updated", slog.Bool("blocked", blocked), slog.Int("overdue", len(overdue)))
	}

	open, err := env.Store.Notifications().Find(ctx, storage.NotificationFilter{
		TenantID: env.Tenant.ID,
		Types:    []models.NotificationType{models.TypeMultipleOverdue},
		EntityID: u.ID,
		Statuses: models.OpenStatuses,
	})
	if err != nil {
		return fmt.Errorf("list open overdue alarms: %w", err)
	}

	if !blocked {
		for _, n := range open {
			if err := env.Store.Notifications().Resolve(ctx, n.ID, env.Now); err != nil {
				return fmt.Errorf("resolve alarm %s: %w", n.ID, err)
			}
			env.Mutated("alarm_resolved")
		}
		return nil
	}

	msg, project, err := r.message(ctx, env, u, overdue)
	if err != nil {
		return err
	}

	if len(open) > 0 && !env.Gate.Forced() {
		return r.refresh(ctx, env, open, msg)
	}

	_, err = env.Notify(ctx, msg, func(ctx context.Context) ([]recipients.Recipient, error) {
		managers, err := env.Resolver.ForProject(ctx, env.Tenant, project)
		if err != nil {
			return nil, err
		}
		return recipients.Union([]recipients.Recipient{recipients.User(u)}, managers), nil
	})
	return err
}

// message describes the overdue backlog and returns the project of the most
// overdue task, whose managers are escalated to.
func (r *OverdueTasks) message(ctx context.Context, env *alerting.Env, u *models.User, overdue []*models.Task) (alerting.Message, *models.Project, error) {
	most := overdue[0]
	ids := make([]string, len(overdue))
	for i, t := range overdue {
		ids[i] = t.ID
		if t.DueDate.Before(*most.DueDate) {
			most = t
		}
	}
	days := calc.DaysBetween(*most.DueDate, env.Today())

	project, err := env.Store.Projects().GetByID(ctx, most.ProjectID)
	if err != nil {
		return alerting.Message{}, nil, fmt.Errorf("load project of task %s: %w", most.ID, err)
	}

	return alerting.Message{
		Type:       models.TypeMultipleOverdue,
		Category:   models.CategoryAlarm,
		EntityType: models.EntityUser,
		EntityID:   u.ID,
		ProjectID:  project.ID,
		Title:      fmt.Sprintf("%s has %d overdue tasks", u.DisplayName(), len(overdue)),
		Body: fmt.Sprintf("%s has %d overdue tasks. The oldest, %q on %s, is %d days late. New task assignment is blocked until the backlog is cleared.",
			u.DisplayName(), len(overdue), most.Title, project.Name, days),
		Link:   env.Link("/tasks?assignee=%s", u.Email),
		Policy: dedup.PolicyOpen,
		Metadata: &models.OverdueMetadata{
			OverdueCount:     len(overdue),
			TaskIDs:          ids,
			MostOverdueTask:  most.ID,
			MostOverdueDays:  days,
			EscalatedProject: project.ID,
		},
	}, project, nil
}

func (r *OverdueTasks) refresh(ctx context.Context, env *alerting.Env, open []*models.Notification, msg alerting.Message) error {
	pub := env.Publisher()
	for _, n := range open {
		if err := pub.Refresh(ctx, n, msg, env.Now); err != nil {
			return err
		}
		if env.Gate.EmailDue(n, r.EmailCooldown, env.Now) {
			pub.Email(ctx, n, n.RecipientEmail, env.Now)
		}
	}
	return nil
}
