package models

import (
	"time"
)

// Profile holds per-user subscription tier and usage tracking. One row per
// user; rows are only ever updated, never deleted.
type Profile struct {
	UserID           string    `json:"user_id" db:"user_id"`
	Email            string    `json:"email" db:"email"`
	SubscriptionTier string    `json:"subscription_tier" db:"subscription_tier"`
	CurrentUsage     int       `json:"current_usage" db:"current_usage"`
	UsageQuota       int       `json:"usage_quota" db:"usage_quota"`
	QuotaResetDate   time.Time `json:"quota_reset_date" db:"quota_reset_date"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// UnlimitedQuota is the sentinel for plans without a monthly upload ceiling.
const UnlimitedQuota = -1
