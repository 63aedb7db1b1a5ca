package alerting

import (
	"sync/atomic"
	"time"
)

// Report tracks the outcome of one rule run using atomic counters so tenants
// may be processed concurrently.
type Report struct {
	Rule      string
	StartedAt time.Time

	processed     atomic.Int64
	notified      atomic.Int64
	suppressed    atomic.Int64
	emails        atomic.Int64
	emailFailures atomic.Int64
	mutations     atomic.Int64
	entityErrors  atomic.Int64
	tenants       atomic.Int64

	duration atomic.Int64
}

func newReport(rule string, startedAt time.Time) *Report {
	return &Report{Rule: rule, StartedAt: startedAt}
}

// Snapshot is a point-in-time copy of a Report.
type Snapshot struct {
	Rule          string        `json:"rule"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Tenants       int64         `json:"tenants"`
	Processed     int64         `json:"processed"`
	Notified      int64         `json:"notified"`
	Suppressed    int64         `json:"suppressed"`
	Emails        int64         `json:"emails"`
	EmailFailures int64         `json:"email_failures"`
	Mutations     int64         `json:"mutations"`
	EntityErrors  int64         `json:"entity_errors"`
}

// Snapshot returns the current counters.
func (r *Report) Snapshot() Snapshot {
	return Snapshot{
		Rule:          r.Rule,
		StartedAt:     r.StartedAt,
		Duration:      time.Duration(r.duration.Load()),
		Tenants:       r.tenants.Load(),
		Processed:     r.processed.Load(),
		Notified:      r.notified.Load(),
		Suppressed:    r.suppressed.Load(),
		Emails:        r.emails.Load(),
		EmailFailures: r.emailFailures.Load(),
		Mutations:     r.mutations.Load(),
		EntityErrors:  r.entityErrors.Load(),
	}
}

// Merge adds the counters of other into a combined snapshot.
func (s Snapshot) Merge(other Snapshot) Snapshot {
	s.Duration += other.Duration
	s.Tenants += other.Tenants
	s.Processed += other.Processed
	s.Notified += other.Notified
	s.Suppressed += other.Suppressed
	s.Emails += other.Emails
	s.EmailFailures += other.EmailFailures
	s.Mutations += other.Mutations
	s.EntityErrors += other.EntityErrors
	return s
}
