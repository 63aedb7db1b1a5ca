package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
)

const (
	underUtilizationWindow = 30
	underUtilizationMin    = 60.0
)

// UnderUtilization tells managers about users who logged less than 60% of
// their availability over their last 30 working days.
type UnderUtilization struct{}

func (r *UnderUtilization) Name() string { return NameUnderUtilization }

func (r *UnderUtilization) Run(ctx context.Context, env *alerting.Env) error {
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

func (r *UnderUtilization) evaluate(ctx context.Context, env *alerting.Env, u *models.User) error {
	days := calc.WorkingDays(env.Today(), u.WorkingDays, underUtilizationWindow, calc.LongLookbackDays)
	if len(days) == 0 {
		return nil
	}
	entries, err := userTimesheets(ctx, env, []string{u.Email}, days)
	if err != nil {
		return err
	}
	logged := loggedOn(entries, days)
	capacity := float64(len(days)) * u.DailyMinutes()
	util := calc.Utilization(logged, len(days), u.DailyMinutes())
	if util >= underUtilizationMin {
		return nil
	}

	_, err = env.Notify(ctx, alerting.Message{
		Type:       models.TypeUnderUtilization,
		Category:   models.CategoryAlert,
		EntityType: models.EntityUser,
		EntityID:   u.ID,
		Title:      fmt.Sprintf("%s is under-utilized (%s)", u.DisplayName(), pct(util)),
		Body: fmt.Sprintf("%s logged %.0f of %.0f available hours over the last %d working days (%s, target %.0f%%).",
			u.DisplayName(), logged/60, capacity/60, len(days), pct(util), underUtilizationMin),
		Link:   env.Link("/users/%s", u.ID),
		Policy: dedup.PolicyDaily,
		Metadata: &models.UtilizationMetadata{
			WindowDays:      len(days),
			LoggedMinutes:   logged,
			CapacityMinutes: capacity,
			Utilization:     calc.Round1(util),
			Threshold:       underUtilizationMin,
		},
	}, userManagers(env, u))
	return err
}
