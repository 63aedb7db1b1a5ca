// Package escalation promotes unacknowledged notifications: first a reminder
// to the original recipient, later an escalation to the tenant admins.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/good-yellow-bee/riskline/internal/alerting"
	"github.com/good-yellow-bee/riskline/internal/metrics"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/recipients"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// Name is the sweeper's command name.
const Name = "sweep"

// Thresholds are the notification ages at which each transition fires.
type Thresholds struct {
	Reminder   time.Duration
	Escalation time.Duration
}

// Config selects thresholds by category, with optional per-type overrides.
type Config struct {
	Alert     Thresholds
	Alarm     Thresholds
	Overrides map[models.NotificationType]Thresholds
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Alert: Thresholds{Reminder: 8 * time.Hour, Escalation: 24 * time.Hour},
		Alarm: Thresholds{Reminder: 2 * time.Hour, Escalation: 12 * time.Hour},
	}
}

// EligibleTypes are the rule notification types the sweeper follows up on.
// Info notifications and the sweeper's own output are never swept.
var EligibleTypes = []models.NotificationType{
	models.TypeHighRework,
	models.TypeRunawayRework,
	models.TypeDeadlineRisk,
	models.TypeLowVelocity,
	models.TypeTeamUtilizationWarn,
	models.TypeTeamUtilizationCrit,
	models.TypeOverwork,
	models.TypeMissingTimesheets,
	models.TypeMultipleOverdue,
	models.TypeUnderUtilization,
	models.TypeSubscriptionExpired,
}

// Sweeper is an alerting.Rule that runs the reminder and escalation
// transitions. Each transition is claimed through its flag before the
// follow-up is created, so it happens at most once per notification. A claim
// whose follow-up could not be created at all is released so the next sweep
// retries it.
type Sweeper struct {
	cfg Config
}

// New creates a sweeper.
func New(cfg Config) *Sweeper {
	return &Sweeper{cfg: cfg}
}

func (s *Sweeper) Name() string { return Name }

// thresholds returns the thresholds for n, false when n is not swept.
func (s *Sweeper) thresholds(n *models.Notification) (Thresholds, bool) {
	if th, ok := s.cfg.Overrides[n.Type]; ok {
		return th, true
	}
	switch n.Category {
	case models.CategoryAlarm:
		return s.cfg.Alarm, true
	case models.CategoryAlert:
		return s.cfg.Alert, true
	}
	return Thresholds{}, false
}

func (s *Sweeper) Run(ctx context.Context, env *alerting.Env) error {
	unacked := false
	pending, err := env.Store.Notifications().Find(ctx, storage.NotificationFilter{
		TenantID:     env.Tenant.ID,
		Types:        EligibleTypes,
		Statuses:     models.OpenStatuses,
		Acknowledged: &unacked,
	})
	if err != nil {
		return fmt.Errorf("list open notifications: %w", err)
	}

	for _, n := range pending {
		if n.ReminderSent && n.EscalatedToAdmin {
			continue
		}
		th, ok := s.thresholds(n)
		if !ok {
			continue
		}
		n := n
		if err := env.Each(ctx, models.EntityNotification, n.ID, func(log *slog.Logger) error {
			return s.sweep(ctx, env, log, n, th)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sweeper) sweep(ctx context.Context, env *alerting.Env, log *slog.Logger, n *models.Notification, th Thresholds) error {
	age := env.Now.Sub(n.CreatedAt)
	if !n.ReminderSent && th.Reminder > 0 && age >= th.Reminder {
		if err := s.remind(ctx, env, log, n, age); err != nil {
			return err
		}
	}
	if !n.EscalatedToAdmin && th.Escalation > 0 && age >= th.Escalation {
		return s.escalate(ctx, env, log, n, age)
	}
	return nil
}

func (s *Sweeper) remind(ctx context.Context, env *alerting.Env, log *slog.Logger, n *models.Notification, age time.Duration) error {
	claimed, err := env.Store.Notifications().ClaimReminder(ctx, n.ID, env.Now)
	if err != nil {
		return fmt.Errorf("claim reminder: %w", err)
	}
	if !claimed {
		log.DebugContext(ctx, "reminder already claimed")
		return nil
	}
	env.Mutated("reminder_sent")

	hours := int(age.Hours())
	created, err := env.Deliver(ctx, alerting.Message{
		Type:       models.TypeEscalationReminder,
		Category:   models.CategoryAlert,
		EntityType: models.EntityNotification,
		EntityID:   n.ID,
		ProjectID:  n.ProjectID,
		Title:      "Reminder: " + n.Title,
		Body:       fmt.Sprintf("This notification has been waiting for %d hours without acknowledgement: %s", hours, n.Message),
		Link:       env.Link("/notifications/%s", n.ID),
		Metadata:   escalationMetadata(n, hours),
	}, []recipients.Recipient{{Email: n.RecipientEmail, UserID: n.UserID}})
	if err != nil {
		if len(created) == 0 {
			s.release(ctx, log, "reminder_sent", func() error {
				return env.Store.Notifications().ReleaseReminder(ctx, n.ID, env.Now)
			})
		}
		return fmt.Errorf("create reminder: %w", err)
	}
	metrics.EscalationsTotal.WithLabelValues("reminder").Inc()
	log.InfoContext(ctx, "reminder sent", slog.String("recipient", n.RecipientEmail), slog.Int("elapsed_hours", hours))
	return nil
}

func (s *Sweeper) escalate(ctx context.Context, env *alerting.Env, log *slog.Logger, n *models.Notification, age time.Duration) error {
	admins, err := env.Resolver.Admins(ctx, env.Tenant)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		log.WarnContext(ctx, "no admins to escalate to")
		return nil
	}

	claimed, err := env.Store.Notifications().ClaimEscalation(ctx, n.ID, env.Now)
	if err != nil {
		return fmt.Errorf("claim escalation: %w", err)
	}
	if !claimed {
		log.DebugContext(ctx, "escalation already claimed")
		return nil
	}
	env.Mutated("escalated_to_admin")

	hours := int(age.Hours())
	created, err := env.Deliver(ctx, alerting.Message{
		Type:       models.TypeEscalationAdmin,
		Category:   models.CategoryAlarm,
		EntityType: models.EntityNotification,
		EntityID:   n.ID,
		ProjectID:  n.ProjectID,
		Title:      fmt.Sprintf("Escalated after %dh: %s", hours, n.Title),
		Body: fmt.Sprintf("%s has not acknowledged this %s for %d hours: %s",
			n.RecipientEmail, n.Category, hours, n.Message),
		Link:     env.Link("/notifications/%s", n.ID),
		Metadata: escalationMetadata(n, hours),
	}, admins)
	if err != nil {
		// Admins already notified keep the claim; a retry would repeat them.
		if len(created) == 0 {
			s.release(ctx, log, "escalated_to_admin", func() error {
				return env.Store.Notifications().ReleaseEscalation(ctx, n.ID, env.Now)
			})
		}
		return fmt.Errorf("create escalation: %w", err)
	}
	metrics.EscalationsTotal.WithLabelValues("admin").Inc()
	log.InfoContext(ctx, "escalated to admins",
		slog.Int("admins", len(admins)),
		slog.Int("elapsed_hours", hours))
	return nil
}

func (s *Sweeper) release(ctx context.Context, log *slog.Logger, flag string, fn func() error) {
	if err := fn(); err != nil {
		log.ErrorContext(ctx, "release claim failed", slog.String("flag", flag), slog.Any("error", err))
		return
	}
	log.WarnContext(ctx, "follow-up not created, claim released", slog.String("flag", flag))
}

func escalationMetadata(n *models.Notification, hours int) *models.EscalationMetadata {
	return &models.EscalationMetadata{
		OriginalID:   n.ID,
		OriginalType: n.Type,
		Recipient:    n.RecipientEmail,
		ElapsedHours: hours,
	}
}
