// Package models defines domain models for Riskline.
package models

import "time"

// TenantStatus is the billing state of a tenant.
type TenantStatus string

const (
	TenantTrial   TenantStatus = "trial"
	TenantActive  TenantStatus = "active"
	TenantPastDue TenantStatus = "past_due"
)

// Subscription statuses written by the subscription lifecycle job.
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
)

// FeatureTrialWarningSent marks that the trial-ending email went out.
const FeatureTrialWarningSent = "trial_warning_sent"

// Tenant is one customer organization.
type Tenant struct {
	ID                 string       `db:"id" json:"id"`
	Name               string       `db:"name" json:"name"`
	Status             TenantStatus `db:"status" json:"status"`
	SubscriptionStatus string       `db:"subscription_status" json:"subscription_status"`
	TrialEndsAt        *time.Time   `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
	SubscriptionEndsAt *time.Time   `db:"subscription_ends_at" json:"subscription_ends_at,omitempty"`
	OwnerEmail         string       `db:"owner_email" json:"owner_email"`
	FeaturesEnabled    Flags        `db:"features_enabled" json:"features_enabled"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
}
