package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/recipients"
)

const trialWarningWindow = 3 * 24 * time.Hour

// Subscription warns owners about ending trials once and moves tenants whose
// trial or subscription expired to past_due.
type Subscription struct{}

func (r *Subscription) Name() string { return NameSubscription }

func (r *Subscription) Run(ctx context.Context, env *alerting.Env) error {
	return env.Each(ctx, models.EntityTenant, env.Tenant.ID, func(log *slog.Logger) error {
		return r.evaluate(ctx, env, log)
	})
}

func (r *Subscription) evaluate(ctx context.Context, env *alerting.Env, log *slog.Logger) error {
	t := env.Tenant
	switch t.Status {
	case models.TenantTrial:
		if t.TrialEndsAt == nil {
			return nil
		}
		if !env.Now.Before(*t.TrialEndsAt) {
			return r.expire(ctx, env, log, "trial_expired", *t.TrialEndsAt)
		}
		if t.TrialEndsAt.Sub(env.Now) <= trialWarningWindow && !t.FeaturesEnabled.Enabled(models.FeatureTrialWarningSent) {
			return r.warnTrial(ctx, env, log, *t.TrialEndsAt)
		}
	case models.TenantActive:
		if t.SubscriptionEndsAt != nil && !env.Now.Before(*t.SubscriptionEndsAt) {
			return r.expire(ctx, env, log, "subscription_expired", *t.SubscriptionEndsAt)
		}
	}
	return nil
}

func (r *Subscription) warnTrial(ctx context.Context, env *alerting.Env, log *slog.Logger, endsAt time.Time) error {
	daysLeft := int(math.Ceil(endsAt.Sub(env.Now).Hours() / 24))
	out, err := env.Notify(ctx, alerting.Message{
		Type:       models.TypeTrialEnding,
		Category:   models.CategoryInfo,
		EntityType: models.EntityTenant,
		EntityID:   env.Tenant.ID,
		Title:      fmt.Sprintf("Your trial ends in %d days", daysLeft),
		Body: fmt.Sprintf("The %s trial ends on %s. Choose a plan to keep your projects, timesheets and alerts running.",
			env.Tenant.Name, endsAt.In(env.Now.Location()).Format("January 2, 2006")),
		Link:   env.Link("/billing"),
		Policy: dedup.PolicyDaily,
		Metadata: &models.SubscriptionMetadata{
			Event:    "trial_ending",
			EndsAt:   endsAt,
			DaysLeft: daysLeft,
		},
	}, r.owner(env))
	if err != nil || out.NoRecipients {
		return err
	}

	if err := env.Store.Tenants().SetFeature(ctx, env.Tenant.ID, models.FeatureTrialWarningSent, true); err != nil {
		return fmt.Errorf("mark trial warning sent: %w", err)
	}
	env.Mutated("trial_warning_sent")
	log.InfoContext(ctx, "trial warning sent", slog.Int("days_left", daysLeft))
	return nil
}

func (r *Subscription) expire(ctx context.Context, env *alerting.Env, log *slog.Logger, event string, endedAt time.Time) error {
	changed, err := env.Store.Tenants().SetStatus(ctx, env.Tenant.ID, models.TenantPastDue, models.SubscriptionExpired)
	if err != nil {
		return fmt.Errorf("mark tenant past due: %w", err)
	}
	if !changed {
		return nil
	}
	env.Mutated("tenant_past_due")
	log.InfoContext(ctx, "tenant moved to past_due", slog.String("event", event))

	what := "subscription"
	if event == "trial_expired" {
		what = "trial"
	}
	_, err = env.Notify(ctx, alerting.Message{
		Type:       models.TypeSubscriptionExpired,
		Category:   models.CategoryAlarm,
		EntityType: models.EntityTenant,
		EntityID:   env.Tenant.ID,
		Title:      fmt.Sprintf("Your %s has expired", what),
		Body: fmt.Sprintf("The %s %s ended on %s and the account is now past due. Update billing to restore full access.",
			env.Tenant.Name, what, endedAt.In(env.Now.Location()).Format("January 2, 2006")),
		Link:   env.Link("/billing"),
		Policy: dedup.PolicyDaily,
		Metadata: &models.SubscriptionMetadata{
			Event:  event,
			EndsAt: endedAt,
		},
	}, r.owner(env))
	return err
}

// owner resolves the tenant owner, falling back to the admins when the
// tenant has no owner email.
func (r *Subscription) owner(env *alerting.Env) alerting.ResolveFunc {
	return func(ctx context.Context) ([]recipients.Recipient, error) {
		t := env.Tenant
		if t.OwnerEmail == "" {
			return env.Resolver.Admins(ctx, t)
		}
		u, err := env.Store.Users().GetByEmail(ctx, t.ID, t.OwnerEmail)
		if errors.Is(err, apperrors.ErrNotFound) {
			return []recipients.Recipient{{Email: t.OwnerEmail}}, nil
		}
		if err != nil {
			return nil, err
		}
		return []recipients.Recipient{recipients.User(u)}, nil
	}
}
