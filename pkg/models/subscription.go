package models

import (
	"time"
)

// Subscription mirrors the billing provider's view of a user's plan. At most
// one row per user is in the active status at any time; status transitions are
// driven by provider webhook events.
type Subscription struct {
	ID                     string    `json:"id" db:"id"`
	UserID                 string    `json:"user_id" db:"user_id"`
	PlanID                 string    `json:"plan_id" db:"plan_id"`
	Status                 string    `json:"status" db:"status"`
	ProviderSubscriptionID string    `json:"provider_subscription_id" db:"provider_subscription_id"`
	ProviderCustomerID     string    `json:"provider_customer_id" db:"provider_customer_id"`
	CurrentPeriodStart     time.Time `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd       time.Time `json:"current_period_end" db:"current_period_end"`
	CancelAtPeriodEnd      bool      `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// SubscriptionStatus constants
const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusIncomplete = "incomplete"
)
