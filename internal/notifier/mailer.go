// Package notifier delivers notification emails.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Email is one message to one or more recipients.
type Email struct {
	To            []string
	Subject       string
	Title         string
	Message       string
	Category      string
	Link          string
	RecipientName string
}

// Delivery describes an accepted email.
type Delivery struct {
	MessageID string
	SentAt    time.Time
}

// Mailer is the interface for every email transport.
type Mailer interface {
	// Name returns the mailer name (e.g., "smtp", "log").
	Name() string
	// SendEmail sends the message. A returned error means nothing was accepted.
	SendEmail(ctx context.Context, email Email) (Delivery, error)
	// Close releases any resources.
	Close() error
}

var (
	// ErrRateLimited is returned when an email is dropped by rate limiting.
	ErrRateLimited = errors.New("email rate limited")
	// ErrNoRecipients is returned for an email with an empty To list.
	ErrNoRecipients = errors.New("email has no recipients")
)

func validateEmail(email Email) error {
	for _, to := range email.To {
		if strings.TrimSpace(to) != "" {
			return nil
		}
	}
	return ErrNoRecipients
}

// LogMailer logs emails instead of sending them. It is used when no SMTP
// server is configured.
type LogMailer struct {
	log *slog.Logger
}

// NewLogMailer creates a mailer that writes each email to log.
func NewLogMailer(log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}
	return &LogMailer{log: log.With(slog.String("component", "log-mailer"))}
}

// Name returns "log".
func (m *LogMailer) Name() string { return "log" }

// SendEmail implements Mailer.
func (m *LogMailer) SendEmail(ctx context.Context, email Email) (Delivery, error) {
	if err := validateEmail(email); err != nil {
		return Delivery{}, err
	}
	d := Delivery{MessageID: uuid.NewString(), SentAt: time.Now()}
	m.log.InfoContext(ctx, "email not sent, SMTP disabled",
		slog.String("to", strings.Join(email.To, ", ")),
		slog.String("subject", email.Subject),
		slog.String("link", email.Link),
		slog.String("message_id", d.MessageID),
	)
	return d, nil
}

// Close is a no-op.
func (m *LogMailer) Close() error { return nil }
