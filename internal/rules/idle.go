package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/recipients"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

const (
	idleMaxPercent     = 25.0
	idleSuggestedTasks = 3
)

// IdleTime nudges users who left more than a quarter of their previous
// working day unlogged, suggesting unassigned backlog tasks.
type IdleTime struct{}

func (r *IdleTime) Name() string { return NameIdleTime }

func (r *IdleTime) Run(ctx context.Context, env *alerting.Env) error {
	users, err := activeUsers(ctx, env)
	if err != nil {
		return err
	}
	for _, u := range users {
		u := u
		if err := env.Each(ctx, models.EntityUser, u.ID, func(log *slog.Logger) error {
			return r.evaluate(ctx, env, u)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *IdleTime) evaluate(ctx context.Context, env *alerting.Env, u *models.User) error {
	days := calc.WorkingDays(env.Today(), u.WorkingDays, 1, calc.ShortLookbackDays)
	if len(days) == 0 {
		return nil
	}
	day := days[0]

	entries, err := userTimesheets(ctx, env, []string{u.Email}, days)
	if err != nil {
		return err
	}
	logged := loggedOn(entries, days)
	available := u.DailyMinutes()
	idle := 100 - calc.Percent(logged, available)
	if idle <= idleMaxPercent {
		return nil
	}

	suggestions, err := r.suggest(ctx, env, u)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("You logged %.1f of %.1f hours on %s (%s idle).",
		logged/60, available/60, day.Format("Monday 2006-01-02"), pct(idle))
	if len(suggestions) > 0 {
		titles := make([]string, len(suggestions))
		for i, s := range suggestions {
			titles[i] = s.Title
		}
		body += " Backlog tasks you could pick up: " + strings.Join(titles, ", ") + "."
	}

	_, err = env.Notify(ctx, alerting.Message{
		Type:       models.TypeIdleTime,
		Category:   models.CategoryInfo,
		EntityType: models.EntityUser,
		EntityID:   u.ID,
		Title:      "Unlogged time on your last working day",
		Body:       body,
		Link:       env.Link("/timesheets"),
		Policy:     dedup.PolicyDaily,
		Metadata: &models.IdleMetadata{
			Day:              day,
			LoggedMinutes:    logged,
			AvailableMinutes: available,
			IdlePercent:      calc.Round1(idle),
			SuggestedTasks:   suggestions,
		},
	}, alerting.Fixed(recipients.User(u)))
	return err
}

// suggest returns up to three unassigned backlog tasks from the user's projects.
func (r *IdleTime) suggest(ctx context.Context, env *alerting.Env, u *models.User) ([]models.SuggestedTask, error) {
	projects, err := env.Resolver.ProjectsOf(ctx, u)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, nil
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}

	tasks, err := env.Store.Tasks().Find(ctx, storage.TaskFilter{
		TenantID:   env.Tenant.ID,
		ProjectIDs: ids,
		Unassigned: true,
		Statuses:   []models.TaskStatus{models.TaskBacklog, models.TaskTodo},
		Limit:      idleSuggestedTasks,
	})
	if err != nil {
		return nil, fmt.Errorf("list backlog tasks: %w", err)
	}
	out := make([]models.SuggestedTask, len(tasks))
	for i, t := range tasks {
		out[i] = models.SuggestedTask{ID: t.ID, Title: t.Title, ProjectID: t.ProjectID}
	}
	return out, nil
}
