// Package notifiertest provides an in-memory mailer for tests.
package notifiertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/riskline/internal/notifier"
)

// Recorder is a notifier.Mailer that keeps every email in memory.
type Recorder struct {
	mu     sync.Mutex
	emails []notifier.Email
	// Err, when set, is returned by SendEmail and nothing is recorded.
	Err error
}

var _ notifier.Mailer = (*Recorder)(nil)

// Name returns "recorder".
func (r *Recorder) Name() string { return "recorder" }

// SendEmail records email.
func (r *Recorder) SendEmail(ctx context.Context, email notifier.Email) (notifier.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return notifier.Delivery{}, r.Err
	}
	r.emails = append(r.emails, email)
	return notifier.Delivery{MessageID: uuid.NewString(), SentAt: time.Now()}, nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Emails returns a copy of the recorded emails.
func (r *Recorder) Emails() []notifier.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifier.Email, len(r.emails))
	copy(out, r.emails)
	return out
}

// To returns the emails addressed to addr.
func (r *Recorder) To(addr string) []notifier.Email {
	var out []notifier.Email
	for _, e := range r.Emails() {
		for _, to := range e.To {
			if strings.EqualFold(to, addr) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Reset drops the recorded emails.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = nil
}
