// Package alerting runs rule jobs over every tenant and turns tripped
// conditions into deduplicated notifications and emails.
package alerting

import (
	"context"

	"github.com/good-yellow-bee/riskline/internal/models"
)

// Rule is one risk-detection policy evaluated per tenant.
type Rule interface {
	// Name is the command name of the rule (e.g., "rework-trend").
	Name() string
	// Run evaluates the rule for env.Tenant. Per-entity failures should go
	// through env.Each; a returned error fails the whole tenant, and a
	// fatal one (apperrors.Fatal) aborts the run.
	Run(ctx context.Context, env *Env) error
}

// Tier is one severity level of a rule.
type Tier struct {
	Type     models.NotificationType
	Category models.Category
	Tripped  bool
}

// Highest returns the first tripped tier. Tiers are passed most severe first,
// so at most one tier fires per entity per run.
func Highest(tiers ...Tier) (Tier, bool) {
	for _, t := range tiers {
		if t.Tripped {
			return t, true
		}
	}
	return Tier{}, false
}
