package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is the rule-specific payload attached to a notification.
// Each notification family has exactly one concrete payload type.
type Metadata interface {
	MetadataKind() string
}

// ReworkMetadata describes per-sprint rework percentages, most recent first.
type ReworkMetadata struct {
	SprintNames    []string  `json:"sprint_names"`
	ReworkPercents []float64 `json:"rework_percents"`
	Threshold      float64   `json:"threshold"`
	Streak         int       `json:"streak"`
	ProjectOnHold  bool      `json:"project_on_hold,omitempty"`
}

// DeadlineMetadata describes a deadline forecast.
type DeadlineMetadata struct {
	RemainingPoints float64   `json:"remaining_points"`
	AverageVelocity float64   `json:"average_velocity"`
	DaysNeeded      int       `json:"days_needed"`
	ForecastDate    time.Time `json:"forecast_date"`
	Deadline        time.Time `json:"deadline"`
	DeviationDays   int       `json:"deviation_days"`
}

// VelocityMetadata describes recent sprint accuracy.
type VelocityMetadata struct {
	SprintNames     []string  `json:"sprint_names"`
	Accuracies      []float64 `json:"accuracies"`
	AverageAccuracy float64   `json:"average_accuracy"`
	Threshold       float64   `json:"threshold"`
	BelowStreak     int       `json:"below_streak"`
}

// UtilizationMetadata describes a utilization window for a team or a user.
type UtilizationMetadata struct {
	WindowDays      int      `json:"window_days"`
	LoggedMinutes   float64  `json:"logged_minutes"`
	CapacityMinutes float64  `json:"capacity_minutes"`
	Utilization     float64  `json:"utilization"`
	Threshold       float64  `json:"threshold"`
	Members         []string `json:"members,omitempty"`
}

// OverworkMetadata describes planned weekly workload.
type OverworkMetadata struct {
	WeeklyHours float64  `json:"weekly_hours"`
	LimitHours  float64  `json:"limit_hours"`
	TaskIDs     []string `json:"task_ids"`
}

// TimesheetMetadata lists the working days with no submitted timesheet.
type TimesheetMetadata struct {
	MissingDates []time.Time `json:"missing_dates"`
	CheckedDays  int         `json:"checked_days"`
	Locked       bool        `json:"locked"`
}

// OverdueMetadata lists the overdue tasks of a user.
type OverdueMetadata struct {
	OverdueCount     int      `json:"overdue_count"`
	TaskIDs          []string `json:"task_ids"`
	MostOverdueTask  string   `json:"most_overdue_task_id"`
	MostOverdueDays  int      `json:"most_overdue_days"`
	EscalatedProject string   `json:"escalated_project_id,omitempty"`
}

// SuggestedTask is a backlog task offered to an idle user.
type SuggestedTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ProjectID string `json:"project_id"`
}

// IdleMetadata describes the idle share of the previous working day.
type IdleMetadata struct {
	Day              time.Time       `json:"day"`
	LoggedMinutes    float64         `json:"logged_minutes"`
	AvailableMinutes float64         `json:"available_minutes"`
	IdlePercent      float64         `json:"idle_percent"`
	SuggestedTasks   []SuggestedTask `json:"suggested_tasks,omitempty"`
}

// SubscriptionMetadata describes a trial or subscription boundary.
type SubscriptionMetadata struct {
	Event    string    `json:"event"`
	EndsAt   time.Time `json:"ends_at"`
	DaysLeft int       `json:"days_left"`
}

// EscalationMetadata links a reminder/escalation to the original notification.
type EscalationMetadata struct {
	OriginalID   string           `json:"original_id"`
	OriginalType NotificationType `json:"original_type"`
	Recipient    string           `json:"original_recipient"`
	ElapsedHours int              `json:"elapsed_hours"`
}

func (ReworkMetadata) MetadataKind() string       { return "rework" }
func (DeadlineMetadata) MetadataKind() string     { return "deadline" }
func (VelocityMetadata) MetadataKind() string     { return "velocity" }
func (UtilizationMetadata) MetadataKind() string  { return "utilization" }
func (OverworkMetadata) MetadataKind() string     { return "overwork" }
func (TimesheetMetadata) MetadataKind() string    { return "timesheet" }
func (OverdueMetadata) MetadataKind() string      { return "overdue" }
func (IdleMetadata) MetadataKind() string         { return "idle" }
func (SubscriptionMetadata) MetadataKind() string { return "subscription" }
func (EscalationMetadata) MetadataKind() string   { return "escalation" }

// metadataKinds is the static registry of payload constructors.
var metadataKinds = map[string]func() Metadata{
	"rework":       func() Metadata { return &ReworkMetadata{} },
	"deadline":     func() Metadata { return &DeadlineMetadata{} },
	"velocity":     func() Metadata { return &VelocityMetadata{} },
	"utilization":  func() Metadata { return &UtilizationMetadata{} },
	"overwork":     func() Metadata { return &OverworkMetadata{} },
	"timesheet":    func() Metadata { return &TimesheetMetadata{} },
	"overdue":      func() Metadata { return &OverdueMetadata{} },
	"idle":         func() Metadata { return &IdleMetadata{} },
	"subscription": func() Metadata { return &SubscriptionMetadata{} },
	"escalation":   func() Metadata { return &EscalationMetadata{} },
}

// Payload wraps a Metadata value for persistence as a tagged JSON envelope.
type Payload struct {
	Metadata
}

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the payload as {"kind": ..., "data": ...}.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Metadata == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: p.Metadata.MetadataKind(), Data: data})
}

// UnmarshalJSON decodes a tagged envelope into its concrete payload type.
func (p *Payload) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		p.Metadata = nil
		return nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("decode metadata envelope: %w", err)
	}
	ctor, ok := metadataKinds[env.Kind]
	if !ok {
		return fmt.Errorf("unknown metadata kind %q", env.Kind)
	}
	m := ctor()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, m); err != nil {
			return fmt.Errorf("decode %s metadata: %w", env.Kind, err)
		}
	}
	p.Metadata = m
	return nil
}

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	if p.Metadata == nil {
		return nil, nil
	}
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		p.Metadata = nil
		return nil
	case string:
		return p.UnmarshalJSON([]byte(v))
	case []byte:
		return p.UnmarshalJSON(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
}

// With wraps m in a Payload.
func With(m Metadata) Payload {
	return Payload{Metadata: m}
}
