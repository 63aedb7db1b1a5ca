package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/riskline/internal/apperrors"
	"github.com/good-yellow-bee/riskline/internal/dedup"
	"github.com/good-yellow-bee/riskline/internal/metrics"
	"github.com/good-yellow-bee/riskline/internal/models"
	"github.com/good-yellow-bee/riskline/internal/notifier"
	"github.com/good-yellow-bee/riskline/internal/recipients"
	"github.com/good-yellow-bee/riskline/internal/storage"
)

// Message is the content of a notification before it is addressed.
type Message struct {
	Type       models.NotificationType
	Category   models.Category
	EntityType string
	EntityID   string
	ProjectID  string
	Title      string
	Body       string
	Link       string
	Metadata   models.Metadata
	// Policy selects dedup suppression for Env.Notify.
	Policy dedup.Policy
	// SkipEmail creates the in-app record only.
	SkipEmail bool
}

func (m Message) check(tenantID string) dedup.Check {
	return dedup.Check{TenantID: tenantID, Type: m.Type, EntityID: m.EntityID, Policy: m.Policy}
}

// Publisher persists notifications and sends their emails.
type Publisher struct {
	notifications storage.NotificationRepository
	mailer        notifier.Mailer
	gate          *dedup.Gate
	report        *Report
	log           *slog.Logger
}

// NewPublisher creates a publisher recording counts into report.
func NewPublisher(notifications storage.NotificationRepository, mailer notifier.Mailer, gate *dedup.Gate, report *Report, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		notifications: notifications,
		mailer:        mailer,
		gate:          gate,
		report:        report,
		log:           log,
	}
}

// Deliver creates one notification per recipient and emails each one unless
// msg.SkipEmail is set. A dedup key collision counts as suppressed. Email
// failures are logged and counted; the in-app record stays.
func (p *Publisher) Deliver(ctx context.Context, tenantID string, msg Message, rcpts []recipients.Recipient, now time.Time) ([]*models.Notification, error) {
	check := msg.check(tenantID)
	var created []*models.Notification
	for _, rcpt := range rcpts {
		n := &models.Notification{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			RecipientEmail: rcpt.Email,
			UserID:         rcpt.UserID,
			Type:           msg.Type,
			Category:       msg.Category,
			Status:         models.StatusOpen,
			EntityType:     msg.EntityType,
			EntityID:       msg.EntityID,
			ProjectID:      msg.ProjectID,
			Title:          msg.Title,
			Message:        msg.Body,
			Link:           msg.Link,
			DedupKey:       p.gate.Key(check, rcpt.Email, now),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if msg.Metadata != nil {
			n.Metadata = models.With(msg.Metadata)
		}

		if err := p.notifications.Create(ctx, n); err != nil {
			if errors.Is(err, apperrors.ErrDuplicate) {
				p.suppressed(msg.Type, "race")
				p.log.DebugContext(ctx, "notification already exists",
					slog.String("type", string(msg.Type)),
					slog.String("recipient", rcpt.Email))
				continue
			}
			return created, fmt.Errorf("create %s notification for %s: %w", msg.Type, rcpt.Email, err)
		}

		p.report.notified.Add(1)
		metrics.NotificationsCreatedTotal.WithLabelValues(string(msg.Type)).Inc()
		created = append(created, n)

		if !msg.SkipEmail {
			p.Email(ctx, n, rcpt.DisplayName(), now)
		}
	}
	return created, nil
}

// Refresh rewrites an existing notification with msg's content.
func (p *Publisher) Refresh(ctx context.Context, n *models.Notification, msg Message, now time.Time) error {
	n.Title = msg.Title
	n.Message = msg.Body
	n.Link = msg.Link
	n.ProjectID = msg.ProjectID
	if msg.Metadata != nil {
		n.Metadata = models.With(msg.Metadata)
	}
	n.UpdatedAt = now
	if err := p.notifications.Refresh(ctx, n); err != nil {
		return fmt.Errorf("refresh notification %s: %w", n.ID, err)
	}
	return nil
}

// Email sends n to its recipient and records the send time. It reports
// whether the email was accepted.
func (p *Publisher) Email(ctx context.Context, n *models.Notification, name string, now time.Time) bool {
	log := p.log.With(
		slog.String("notification", n.ID),
		slog.String("type", string(n.Type)),
		slog.String("recipient", n.RecipientEmail),
	)

	_, err := p.mailer.SendEmail(ctx, notifier.Email{
		To:            []string{n.RecipientEmail},
		Title:         n.Title,
		Message:       n.Message,
		Category:      string(n.Category),
		Link:          n.Link,
		RecipientName: name,
	})
	if err != nil {
		p.report.emailFailures.Add(1)
		result := "failed"
		if errors.Is(err, notifier.ErrRateLimited) {
			result = "rate_limited"
		}
		metrics.EmailsTotal.WithLabelValues(string(n.Type), result).Inc()
		log.WarnContext(ctx, "email failed", slog.Any("error", err))
		return false
	}

	p.report.emails.Add(1)
	metrics.EmailsTotal.WithLabelValues(string(n.Type), "sent").Inc()
	if err := p.notifications.MarkEmailSent(ctx, n.ID, now); err != nil {
		log.WarnContext(ctx, "record email send time", slog.Any("error", err))
		return true
	}
	sent := now
	n.LastEmailSent = &sent
	return true
}

func (p *Publisher) suppressed(typ models.NotificationType, reason string) {
	p.report.suppressed.Add(1)
	metrics.NotificationsSuppressedTotal.WithLabelValues(string(typ), strings.ToLower(reason)).Inc()
}
