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
	deadlineVelocitySprints = 3
	deadlineMaxDeviation    = 21
)

// DeadlineRisk forecasts completion of the open scope from recent velocity
// and locks the scope of projects that would miss their deadline by more
// than three weeks.
type DeadlineRisk struct{}

func (r *DeadlineRisk) Name() string { return NameDeadlineRisk }

func (r *DeadlineRisk) Run(ctx context.Context, env *alerting.Env) error {
	projects, err := activeProjects(ctx, env)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if p.Deadline == nil {
			continue
		}
		p := p
		if err := env.Each(ctx, models.EntityProject, p.ID, func(log *slog.Logger) error {
			return r.evaluate(ctx, env, log, p)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *DeadlineRisk) evaluate(ctx context.Context, env *alerting.Env, log *slog.Logger, p *models.Project) error {
	velocities, err := env.Store.Velocities().ListRecent(ctx, p.ID, deadlineVelocitySprints)
	if err != nil {
		return fmt.Errorf("list velocities: %w", err)
	}
	if len(velocities) == 0 {
		return nil
	}
	completed := make([]float64, len(velocities))
	for i, v := range velocities {
		completed[i] = v.CompletedPoints
	}
	avg := calc.Average(completed)

	tasks, err := env.Store.Tasks().Find(ctx, storage.TaskFilter{
		TenantID:        env.Tenant.ID,
		ProjectIDs:      []string{p.ID},
		ExcludeStatuses: models.TerminalTaskStatuses,
	})
	if err != nil {
		return fmt.Errorf("list open tasks: %w", err)
	}
	var remaining float64
	for _, t := range tasks {
		remaining += t.StoryPoints
	}

	fc, ok := calc.ForecastDeadline(remaining, avg, *p.Deadline, env.Today())
	if !ok {
		log.DebugContext(ctx, "no velocity, forecast skipped")
		return nil
	}
	if fc.DeviationDays <= deadlineMaxDeviation {
		return nil
	}

	out, err := env.Notify(ctx, alerting.Message{
		Type:       models.TypeDeadlineRisk,
		Category:   models.CategoryAlarm,
		EntityType: models.EntityProject,
		EntityID:   p.ID,
		ProjectID:  p.ID,
		Title:      fmt.Sprintf("%s will miss its deadline by %d days", p.Name, fc.DeviationDays),
		Body: fmt.Sprintf("%.0f story points remain at an average velocity of %.1f points per sprint. Forecast completion is %s against a deadline of %s. Scope is now locked.",
			remaining, avg, fc.ForecastDate.Format("2006-01-02"), p.Deadline.Format("2006-01-02")),
		Link:   env.Link("/projects/%s", p.ID),
		Policy: dedup.PolicyDaily,
		Metadata: &models.DeadlineMetadata{
			RemainingPoints: remaining,
			AverageVelocity: calc.Round1(avg),
			DaysNeeded:      fc.DaysNeeded,
			ForecastDate:    fc.ForecastDate,
			Deadline:        calc.Day(*p.Deadline),
			DeviationDays:   fc.DeviationDays,
		},
	}, projectManagers(env, p))
	if err != nil || !out.Delivered() {
		return err
	}

	locked, err := env.Store.Projects().SetScopeLocked(ctx, p.ID, true)
	if err != nil {
		return fmt.Errorf("lock scope: %w", err)
	}
	if locked {
		env.Mutated("scope_locked")
		log.InfoContext(ctx, "project scope locked", slog.Int("deviation_days", fc.DeviationDays))
	}
	raised, err := env.Store.Projects().SetRiskLevel(ctx, p.ID, models.RiskHigh)
	if err != nil {
		return fmt.Errorf("raise risk level: %w", err)
	}
	if raised {
		env.Mutated("risk_level")
	}
	return nil
}
