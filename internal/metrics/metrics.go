// Package metrics provides Prometheus metrics for Riskline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "riskline"
)

// Rule job metrics
var (
	// RuleRunsTotal counts rule job runs by outcome.
	RuleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "runs_total",
			Help:      "Total rule job runs",
		},
		[]string{"rule", "result"}, // ok, fatal
	)

	// RuleRunDuration tracks how long a rule job takes over all tenants.
	RuleRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "run_duration_seconds",
			Help:      "Rule job duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"rule"},
	)

	// EntitiesProcessedTotal counts projects, users or tenants evaluated.
	EntitiesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "entities_processed_total",
			Help:      "Total entities evaluated by rule jobs",
		},
		[]string{"rule"},
	)

	// EntityErrorsTotal counts entities whose evaluation failed.
	EntityErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "entity_errors_total",
			Help:      "Total entity evaluation failures",
		},
		[]string{"rule"},
	)

	// StateMutationsTotal counts entity state changes (locks, status, flags).
	StateMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "state_mutations_total",
			Help:      "Total entity state mutations made by rule jobs",
		},
		[]string{"rule", "mutation"},
	)
)

// Notification metrics
var (
	// NotificationsCreatedTotal counts created notifications.
	NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "Total notifications created",
		},
		[]string{"type"},
	)

	// NotificationsSuppressedTotal counts notifications skipped by dedup.
	NotificationsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "suppressed_total",
			Help:      "Total notifications suppressed",
		},
		[]string{"type", "reason"}, // daily, open, race, no_recipients
	)

	// EmailsTotal counts email attempts.
	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "emails_total",
			Help:      "Total notification emails by result",
		},
		[]string{"type", "result"}, // sent, failed, cooldown
	)
)

// Escalation metrics
var (
	// EscalationsTotal counts sweeper transitions.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "transitions_total",
			Help:      "Total reminder and admin escalation transitions",
		},
		[]string{"transition"}, // reminder, admin
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
