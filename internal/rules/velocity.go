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
)

const (
	velocitySprints     = 2
	velocityMinAccuracy = 85.0
)

// LowVelocity alerts the PMs when the average delivery accuracy of the last
// two sprints drops below 85%.
type LowVelocity struct{}

func (r *LowVelocity) Name() string { return NameLowVelocity }

func (r *LowVelocity) Run(ctx context.Context, env *alerting.Env) error {
	projects, err := activeProjects(ctx, env)
	if err != nil {
		return err
	}
	for _, p := range projects {
		p := p
		if err := env.Each(ctx, models.EntityProject, p.ID, func(log *slog.Logger) error {
			return r.evaluate(ctx, env, p)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *LowVelocity) evaluate(ctx context.Context, env *alerting.Env, p *models.Project) error {
	velocities, err := env.Store.Velocities().ListRecent(ctx, p.ID, velocitySprints)
	if err != nil {
		return fmt.Errorf("list velocities: %w", err)
	}
	if len(velocities) < velocitySprints {
		return nil
	}

	names := make([]string, len(velocities))
	accuracies := make([]float64, len(velocities))
	summary := make([]string, len(velocities))
	for i, v := range velocities {
		names[i] = v.Name
		accuracies[i] = v.EffectiveAccuracy()
		summary[i] = fmt.Sprintf("%s: %s", v.Name, pct(accuracies[i]))
	}
	avg := calc.Average(accuracies)
	if avg >= velocityMinAccuracy {
		return nil
	}

	_, err = env.Notify(ctx, alerting.Message{
		Type:       models.TypeLowVelocity,
		Category:   models.CategoryAlert,
		EntityType: models.EntityProject,
		EntityID:   p.ID,
		ProjectID:  p.ID,
		Title:      fmt.Sprintf("Low sprint accuracy on %s", p.Name),
		Body: fmt.Sprintf("Average delivery accuracy over the last %d sprints is %s, below the %.0f%% target (%s).",
			len(velocities), pct(avg), velocityMinAccuracy, strings.Join(summary, ", ")),
		Link:   env.Link("/projects/%s", p.ID),
		Policy: dedup.PolicyDaily,
		Metadata: &models.VelocityMetadata{
			SprintNames:     names,
			Accuracies:      accuracies,
			AverageAccuracy: calc.Round1(avg),
			Threshold:       velocityMinAccuracy,
			BelowStreak:     calc.MaxStreak(accuracies, velocityMinAccuracy, calc.Below),
		},
	}, projectManagers(env, p))
	return err
}
