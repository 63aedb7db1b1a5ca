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

const (
	teamLongWindow       = 30
	teamShortWindow      = 7
	teamAlarmUtilization = 65.0
	teamAlertUtilization = 75.0
)

// TeamUtilization compares what a project team logged against its capacity.
// The 30-day alarm is checked first and excludes the 7-day alert.
type TeamUtilization struct{}

func (r *TeamUtilization) Name() string { return NameTeamUtilization }

func (r *TeamUtilization) Run(ctx context.Context, env *alerting.Env) error {
	projects, err := activeProjects(ctx, env)
	if err != nil {
		return err
	}
	for _, p := range projects {
		p := p
		if err := env.Each(ctx, models.EntityProject, p.ID, func(log *slog.Logger) error {
			return r.evaluate(ctx, env, log, p)
		}); err != nil {
			return err
		}
	}
	return nil
}

type teamWindow struct {
	days     int
	logged   float64
	capacity float64
}

func (w teamWindow) utilization() float64 {
	return calc.Percent(w.logged, w.capacity)
}

func (r *TeamUtilization) evaluate(ctx context.Context, env *alerting.Env, log *slog.Logger, p *models.Project) error {
	emails := p.TeamMembers.Emails()
	if len(emails) == 0 {
		return nil
	}
	members, err := env.Store.Users().Find(ctx, storage.UserFilter{
		TenantID:   env.Tenant.ID,
		Emails:     emails,
		ActiveOnly: true,
	})
	if err != nil {
		return fmt.Errorf("load team: %w", err)
	}
	if len(members) == 0 {
		return nil
	}

	long, err := r.window(ctx, env, members, teamLongWindow, calc.LongLookbackDays)
	if err != nil {
		return err
	}
	if long.capacity <= 0 {
		return nil
	}

	var short teamWindow
	tripped := long.utilization() < teamAlarmUtilization
	if !tripped {
		short, err = r.window(ctx, env, members, teamShortWindow, calc.ShortLookbackDays)
		if err != nil {
			return err
		}
	}

	tier, ok := alerting.Highest(
		alerting.Tier{Type: models.TypeTeamUtilizationCrit, Category: models.CategoryAlarm, Tripped: tripped},
		alerting.Tier{Type: models.TypeTeamUtilizationWarn, Category: models.CategoryAlert,
			Tripped: short.capacity > 0 && short.utilization() < teamAlertUtilization},
	)
	if !ok {
		return nil
	}

	w, threshold, resolve := long, teamAlarmUtilization, managersAndAdmins(env, p)
	if tier.Type == models.TypeTeamUtilizationWarn {
		w, threshold, resolve = short, teamAlertUtilization, projectManagers(env, p)
	}
	util := w.utilization()
	log.DebugContext(ctx, "team utilization tier tripped",
		slog.String("type", string(tier.Type)),
		slog.Float64("utilization", calc.Round1(util)))

	memberEmails := make([]string, len(members))
	for i, m := range members {
		memberEmails[i] = m.Email
	}

	_, err = env.Notify(ctx, alerting.Message{
		Type:       tier.Type,
		Category:   tier.Category,
		EntityType: models.EntityProject,
		EntityID:   p.ID,
		ProjectID:  p.ID,
		Title:      fmt.Sprintf("Team utilization on %s is %s", p.Name, pct(util)),
		Body: fmt.Sprintf("Over the last %d working days the team logged %.0f of %.0f available hours (%s, target %.0f%%).",
			w.days, w.logged/60, w.capacity/60, pct(util), threshold),
		Link:   env.Link("/projects/%s", p.ID),
		Policy: dedup.PolicyDaily,
		Metadata: &models.UtilizationMetadata{
			WindowDays:      w.days,
			LoggedMinutes:   w.logged,
			CapacityMinutes: w.capacity,
			Utilization:     calc.Round1(util),
			Threshold:       threshold,
			Members:         memberEmails,
		},
	}, resolve)
	return err
}

// window sums logged minutes and capacity over each member's own last count
// working days.
func (r *TeamUtilization) window(ctx context.Context, env *alerting.Env, members []*models.User, count, lookback int) (teamWindow, error) {
	w := teamWindow{days: count}
	for _, m := range members {
		days := calc.WorkingDays(env.Today(), m.WorkingDays, count, lookback)
		if len(days) == 0 {
			continue
		}
		entries, err := userTimesheets(ctx, env, []string{m.Email}, days)
		if err != nil {
			return w, err
		}
		w.logged += loggedOn(entries, days)
		w.capacity += float64(len(days)) * m.DailyMinutes()
	}
	return w, nil
}
