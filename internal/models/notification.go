package models

import "time"

// NotificationType identifies the rule (or sweeper transition) that produced a notification.
type NotificationType string

const (
	TypeHighRework          NotificationType = "PM_HIGH_REWORK_ALERT"
	TypeRunawayRework       NotificationType = "PM_RUNAWAY_REWORK_ALARM"
	TypeDeadlineRisk        NotificationType = "deadline_risk_alarm"
	TypeLowVelocity         NotificationType = "low_velocity_alert"
	TypeTeamUtilizationWarn NotificationType = "team_utilization_alert"
	TypeTeamUtilizationCrit NotificationType = "team_utilization_alarm"
	TypeOverwork            NotificationType = "overwork_alarm"
	TypeMissingTimesheets   NotificationType = "missing_timesheet_alarm"
	TypeMultipleOverdue     NotificationType = "multiple_overdue_alarm"
	TypeIdleTime            NotificationType = "idle_time_alert"
	TypeUnderUtilization    NotificationType = "under_utilization_alert"
	TypeTrialEnding         NotificationType = "trial_ending_warning"
	TypeSubscriptionExpired NotificationType = "subscription_expired"
	TypeEscalationReminder  NotificationType = "escalation_reminder"
	TypeEscalationAdmin     NotificationType = "escalation_admin"
)

// Category is the severity family of a notification.
type Category string

const (
	CategoryAlert Category = "alert"
	CategoryAlarm Category = "alarm"
	CategoryInfo  Category = "info"
)

// NotificationStatus is the resolution state of a notification.
type NotificationStatus string

const (
	StatusOpen     NotificationStatus = "OPEN"
	StatusAppealed NotificationStatus = "APPEALED"
	StatusResolved NotificationStatus = "RESOLVED"
)

// OpenStatuses are the statuses under which an alarm is still standing.
var OpenStatuses = []NotificationStatus{StatusOpen, StatusAppealed}

// Entity types referenced by notifications.
const (
	EntityProject      = "project"
	EntityUser         = "user"
	EntityTenant       = "tenant"
	EntityNotification = "notification"
)

// Notification is an in-app alert delivered to a single recipient.
// It is the record the front-end notification centre renders.
type Notification struct {
	ID               string             `db:"id" json:"id"`
	TenantID         string             `db:"tenant_id" json:"tenant_id"`
	RecipientEmail   string             `db:"recipient_email" json:"recipient_email"`
	UserID           string             `db:"user_id" json:"user_id"`
	Type             NotificationType   `db:"type" json:"type"`
	Category         Category           `db:"category" json:"category"`
	Status           NotificationStatus `db:"status" json:"status"`
	EntityType       string             `db:"entity_type" json:"entity_type"`
	EntityID         string             `db:"entity_id" json:"entity_id"`
	ProjectID        string             `db:"project_id" json:"project_id,omitempty"`
	Title            string             `db:"title" json:"title"`
	Message          string             `db:"message" json:"message"`
	Read             bool               `db:"is_read" json:"read"`
	Acknowledged     bool               `db:"acknowledged" json:"acknowledged"`
	ReminderSent     bool               `db:"reminder_sent" json:"reminder_sent"`
	EscalatedToAdmin bool               `db:"escalated_to_admin" json:"escalated_to_admin"`
	LastEmailSent    *time.Time         `db:"last_email_sent" json:"last_email_sent,omitempty"`
	Link             string             `db:"link" json:"link"`
	Metadata         Payload            `db:"metadata" json:"metadata"`
	DedupKey         *string            `db:"dedup_key" json:"-"`
	CreatedAt        time.Time          `db:"created_at" json:"created_date"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_date"`
}

// IsOpen reports whether the notification is still standing.
func (n *Notification) IsOpen() bool {
	return n.Status == StatusOpen || n.Status == StatusAppealed
}

// Age returns how long ago the notification was created.
func (n *Notification) Age(now time.Time) time.Duration {
	return now.Sub(n.CreatedAt)
}
