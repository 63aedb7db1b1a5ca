package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/calc"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

const (
	reworkSprints          = 3
	reworkAlertThreshold   = 15.0
	reworkAlertStreak      = 2
	reworkAlarmThreshold   = 25.0
	reworkAlarmStreak      = 3
	techDebtSprintName     = "Tech-Debt Sprint (Auto)"
	techDebtSprintSpanDays = 14
)

// ReworkTrend watches the rework share of the last ended sprints. A sustained
// high share alerts the PMs; a runaway share puts the project on hold and
// schedules a tech-debt sprint.
type ReworkTrend struct{}

func (r *ReworkTrend) Name() string { return NameReworkTrend }

func (r *ReworkTrend) Run(ctx context.Context, env *alerting.Env) error {
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

func (r *ReworkTrend) evaluate(ctx context.Context, env *alerting.Env, log *slog.Logger, p *models.Project) error {
	sprints, err := env.Store.Sprints().ListEnded(ctx, p.ID, env.Today(), reworkSprints)
	if err != nil {
		return fmt.Errorf("list sprints: %w", err)
	}
	if len(sprints) == 0 {
		return nil
	}

	names := make([]string, len(sprints))
	percents := make([]float64, len(sprints))
	for i, s := range sprints {
		entries, err := env.Store.Timesheets().Find(ctx, storage.TimesheetFilter{
			TenantID:  env.Tenant.ID,
			ProjectID: p.ID,
			From:      s.StartDate,
			To:        s.EndDate,
			Statuses:  models.CountedTimesheetStatuses,
		})
		if err != nil {
			return fmt.Errorf("load sprint %s timesheets: %w", s.ID, err)
		}
		var total, rework int
		for _, e := range entries {
			total += e.TotalMinutes
			rework += e.ReworkMinutes
		}
		names[i] = s.Name
		percents[i] = calc.ReworkRatio(total, rework)
	}

	alarmStreak := calc.MaxStreak(percents, reworkAlarmThreshold, calc.Above)
	alertStreak := calc.MaxStreak(percents, reworkAlertThreshold, calc.Above)
	tier, ok := alerting.Highest(
		alerting.Tier{Type: models.TypeRunawayRework, Category: models.CategoryAlarm, Tripped: alarmStreak >= reworkAlarmStreak},
		alerting.Tier{Type: models.TypeHighRework, Category: models.CategoryAlert, Tripped: alertStreak >= reworkAlertStreak},
	)
	if !ok {
		return nil
	}
	log.DebugContext(ctx, "rework tier tripped",
		slog.String("type", string(tier.Type)),
		slog.Any("percents", percents))

	summary := make([]string, len(names))
	for i := range names {
		summary[i] = fmt.Sprintf("%s: %s", names[i], pct(percents[i]))
		percents[i] = calc.Round1(percents[i])
	}

	if tier.Type == models.TypeRunawayRework {
		return r.runaway(ctx, env, log, p, names, percents, alarmStreak, strings.Join(summary, ", "))
	}

	_, err = env.Notify(ctx, alerting.Message{
		Type:       tier.Type,
		Category:   tier.Category,
		EntityType: models.EntityProject,
		EntityID:   p.ID,
		ProjectID:  p.ID,
		Title:      fmt.Sprintf("High rework on %s", p.Name),
		Body: fmt.Sprintf("Rework stayed above %.0f%% for %d consecutive sprints (%s). Review code quality and requirement clarity.",
			reworkAlertThreshold, alertStreak, strings.Join(summary, ", ")),
		Link:   env.Link("/projects/%s", p.ID),
		Policy: dedup.PolicyDaily,
		Metadata: &models.ReworkMetadata{
			SprintNames:    names,
			ReworkPercents: percents,
			Threshold:      reworkAlertThreshold,
			Streak:         alertStreak,
		},
	}, projectManagers(env, p))
	return err
}

func (r *ReworkTrend) runaway(ctx context.Context, env *alerting.Env, log *slog.Logger, p *models.Project, names []string, percents []float64, streak int, summary string) error {
	out, err := env.Notify(ctx, alerting.Message{
		Type:       models.TypeRunawayRework,
		Category:   models.CategoryAlarm,
		EntityType: models.EntityProject,
		EntityID:   p.ID,
		ProjectID:  p.ID,
		Title:      fmt.Sprintf("Runaway rework on %s: project on hold", p.Name),
		Body: fmt.Sprintf("Rework stayed above %.0f%% for %d consecutive sprints (%s). The project is on hold and a %d-day %q was scheduled.",
			reworkAlarmThreshold, streak, summary, techDebtSprintSpanDays, techDebtSprintName),
		Link:   env.Link("/projects/%s", p.ID),
		Policy: dedup.PolicyOpen,
		Metadata: &models.ReworkMetadata{
			SprintNames:    names,
			ReworkPercents: percents,
			Threshold:      reworkAlarmThreshold,
			Streak:         streak,
			ProjectOnHold:  true,
		},
	}, managersAndAdmins(env, p))
	if err != nil || !out.Delivered() {
		return err
	}

	changed, err := env.Store.Projects().SetStatus(ctx, p.ID, models.ProjectOnHold)
	if err != nil {
		return fmt.Errorf("put project on hold: %w", err)
	}
	if changed {
		env.Mutated("project_on_hold")
		log.InfoContext(ctx, "project put on hold")
	}
	return r.ensureTechDebtSprint(ctx, env, log, p)
}

func (r *ReworkTrend) ensureTechDebtSprint(ctx context.Context, env *alerting.Env, log *slog.Logger, p *models.Project) error {
	today := env.Today()
	_, err := env.Store.Sprints().FindCurrentByName(ctx, p.ID, techDebtSprintName, today)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("look up tech-debt sprint: %w", err)
	}

	s := &models.Sprint{
		ID:          uuid.NewString(),
		TenantID:    p.TenantID,
		ProjectID:   p.ID,
		Name:        techDebtSprintName,
		Goal:        "Pay down the technical debt behind sustained rework",
		StartDate:   today,
		EndDate:     today.AddDate(0, 0, techDebtSprintSpanDays),
		Status:      models.SprintPlanned,
		AutoCreated: true,
		CreatedAt:   env.Now,
	}
	if err := env.Store.Sprints().Create(ctx, s); err != nil {
		return fmt.Errorf("create tech-debt sprint: %w", err)
	}
	env.Mutated("tech_debt_sprint")
	log.InfoContext(ctx, "tech-debt sprint scheduled", slog.String("sprint", s.ID))
	return nil
}
