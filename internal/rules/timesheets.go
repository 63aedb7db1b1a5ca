package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/recipients"
)

const (
	timesheetCheckedDays = 7
	timesheetMaxMissing  = 3
)

// MissingTimesheets locks the timesheets of users who skipped more than three
// of the last seven working days (Sundays excluded).
type MissingTimesheets struct{}

func (r *MissingTimesheets) Name() string { return NameMissingTimesheet }

func (r *MissingTimesheets) Run(ctx context.Context, env *alerting.Env) error {
	users, err := activeUsers(ctx, env)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.IsTimesheetLocked {
			continue
		}
		u := u
		if err := env.Each(ctx, models.EntityUser, u.ID, func(log *slog.Logger) error {
			return r.evaluate(ctx, env, log, u)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *MissingTimesheets) evaluate(ctx context.Context, env *alerting.Env, log *slog.Logger, u *models.User) error {
	days := calc.DaysExcludingSunday(env.Today(), timesheetCheckedDays)
	entries, err := userTimesheets(ctx, env, []string{u.Email}, days)
	if err != nil {
		return err
	}
	submitted := make(map[string]bool, len(entries))
	for _, e := range entries {
		submitted[dayKey(e.WorkDate)] = true
	}

	var missing []time.Time
	for i := len(days) - 1; i >= 0; i-- {
		if !submitted[dayKey(days[i])] {
			missing = append(missing, days[i])
		}
	}
	if len(missing) <= timesheetMaxMissing {
		return nil
	}

	// The lock applies even when nobody can be notified.
	changed, err := env.Store.Users().SetFlag(ctx, u.ID, models.FlagTimesheetLocked, true)
	if err != nil {
		return fmt.Errorf("lock timesheets: %w", err)
	}
	if changed {
		env.Mutated("timesheet_locked")
		log.InfoContext(ctx, "timesheets locked", slog.Int("missing", len(missing)))
	}

	dates := make([]string, len(missing))
	for i, d := range missing {
		dates[i] = d.Format("Mon 2006-01-02")
	}

	_, err = env.Notify(ctx, alerting.Message{
		Type:       models.TypeMissingTimesheets,
		Category:   models.CategoryAlarm,
		EntityType: models.EntityUser,
		EntityID:   u.ID,
		Title:      fmt.Sprintf("Timesheets locked for %s", u.DisplayName()),
		Body: fmt.Sprintf("%d of the last %d working days have no submitted timesheet (%s). Timesheet entry is locked until a manager unlocks it.",
			len(missing), len(days), strings.Join(dates, ", ")),
		Link:   env.Link("/timesheets"),
		Policy: dedup.PolicyDaily,
		Metadata: &models.TimesheetMetadata{
			MissingDates: missing,
			CheckedDays:  len(days),
			Locked:       true,
		},
	}, func(ctx context.Context) ([]recipients.Recipient, error) {
		managers, err := env.Resolver.ForUser(ctx, env.Tenant, u)
		if err != nil {
			return nil, err
		}
		return recipients.Union([]recipients.Recipient{recipients.User(u)}, managers), nil
	})
	return err
}
