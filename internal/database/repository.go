package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/podbrief/podbrief/pkg/models"
)

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Health checks database connectivity.
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Profiles

// GetProfile retrieves a user's profile. Returns ErrNotFound when the user
// has no profile row yet; callers treat that as the free-plan default state.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile

	query := `
		SELECT user_id, email, subscription_tier, current_usage, usage_quota,
		       quota_reset_date, COALESCE(stripe_customer_id, ''), created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Email, &p.SubscriptionTier, &p.CurrentUsage, &p.UsageQuota,
		&p.QuotaResetDate, &p.StripeCustomerID, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &p, nil
}

// EnsureProfile inserts a free-tier profile row for the user if none exists.
func (r *Repository) EnsureProfile(ctx context.Context, userID, email string, quota int, resetDate time.Time) error {
	query := `
		INSERT INTO profiles (user_id, email, subscription_tier, current_usage, usage_quota, quota_reset_date)
		VALUES ($1, $2, 'free', 0, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.db.Pool.Exec(ctx, query, userID, email, quota, resetDate)
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}

	return nil
}

// IncrementUsage bumps the monthly usage counter by one. The counter only
// ever decreases at quota_reset_date, via ResetUsage.
func (r *Repository) IncrementUsage(ctx context.Context, userID string) error {
	query := `
		UPDATE profiles
		SET current_usage = current_usage + 1, updated_at = now()
		WHERE user_id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}

	return nil
}

// SetProfilePlan updates the tier, quota and reset date after a billing
// change.
func (r *Repository) SetProfilePlan(ctx context.Context, userID, tier string, quota int, resetDate time.Time) error {
	query := `
		UPDATE profiles
		SET subscription_tier = $2, usage_quota = $3, quota_reset_date = $4, updated_at = now()
		WHERE user_id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, userID, tier, quota, resetDate)
	if err != nil {
		return fmt.Errorf("failed to set profile plan: %w", err)
	}

	return nil
}

// SetStripeCustomerID stores the billing provider's customer identifier.
func (r *Repository) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	query := `
		UPDATE profiles
		SET stripe_customer_id = $2, updated_at = now()
		WHERE user_id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, userID, customerID)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer id: %w", err)
	}

	return nil
}

// UserIDByCustomer resolves a billing customer id back to a user id.
func (r *Repository) UserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	var userID string

	query := `SELECT user_id FROM profiles WHERE stripe_customer_id = $1`

	err := r.db.Pool.QueryRow(ctx, query, customerID).Scan(&userID)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve customer: %w", err)
	}

	return userID, nil
}

// ProfilesDueForReset returns profiles whose quota_reset_date has passed.
func (r *Repository) ProfilesDueForReset(ctx context.Context, now time.Time, limit int) ([]*models.Profile, error) {
	query := `
		SELECT user_id, email, subscription_tier, current_usage, usage_quota,
		       quota_reset_date, COALESCE(stripe_customer_id, ''), created_at, updated_at
		FROM profiles
		WHERE quota_reset_date <= $1
		ORDER BY quota_reset_date
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles due for reset: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		var p models.Profile
		err := rows.Scan(
			&p.UserID, &p.Email, &p.SubscriptionTier, &p.CurrentUsage, &p.UsageQuota,
			&p.QuotaResetDate, &p.StripeCustomerID, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}

	return profiles, nil
}

// ResetUsage zeroes the monthly counter and advances the reset date.
func (r *Repository) ResetUsage(ctx context.Context, userID string, nextReset time.Time) error {
	query := `
		UPDATE profiles
		SET current_usage = 0, quota_reset_date = $2, updated_at = now()
		WHERE user_id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, userID, nextReset)
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}

	return nil
}

// Subscriptions

// GetActiveSubscription retrieves the user's single active subscription.
// Absence is a valid free-plan state and is reported as ErrNotFound.
func (r *Repository) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var s models.Subscription

	query := `
		SELECT id, user_id, plan_id, status, provider_subscription_id, provider_customer_id,
		       current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1 AND status IN ('active', 'trialing')
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.ProviderSubscriptionID, &s.ProviderCustomerID,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("active subscription for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &s, nil
}

// GetSubscriptionByProviderID retrieves a subscription by its billing
// provider identifier.
func (r *Repository) GetSubscriptionByProviderID(ctx context.Context, providerID string) (*models.Subscription, error) {
	var s models.Subscription

	query := `
		SELECT id, user_id, plan_id, status, provider_subscription_id, provider_customer_id,
		       current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE provider_subscription_id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, providerID).Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.ProviderSubscriptionID, &s.ProviderCustomerID,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("subscription %s: %w", providerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &s, nil
}

// DeactivateSubscriptions demotes any active rows for the user except the
// named provider subscription. Keeps the at-most-one-active invariant when a
// new subscription is written.
func (r *Repository) DeactivateSubscriptions(ctx context.Context, userID, exceptProviderID string) error {
	query := `
		UPDATE subscriptions
		SET status = 'canceled', updated_at = now()
		WHERE user_id = $1 AND status IN ('active', 'trialing') AND provider_subscription_id <> $2
	`

	_, err := r.db.Pool.Exec(ctx, query, userID, exceptProviderID)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscriptions: %w", err)
	}

	return nil
}

// UpsertSubscription inserts or refreshes a subscription keyed by the
// provider subscription id.
func (r *Repository) UpsertSubscription(ctx context.Context, s *models.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	query := `
		INSERT INTO subscriptions (id, user_id, plan_id, status, provider_subscription_id,
		                           provider_customer_id, current_period_start, current_period_end,
		                           cancel_at_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider_subscription_id) DO UPDATE
		SET plan_id = EXCLUDED.plan_id,
		    status = EXCLUDED.status,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end,
		    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		    updated_at = now()
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.PlanID, s.Status, s.ProviderSubscriptionID,
		s.ProviderCustomerID, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.CancelAtPeriodEnd,
	).Scan(&s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}

// UpdateSubscriptionStatus syncs status, period and cancel flag from a
// provider notification.
func (r *Repository) UpdateSubscriptionStatus(ctx context.Context, providerID, status string, periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error {
	query := `
		UPDATE subscriptions
		SET status = $2, current_period_start = $3, current_period_end = $4,
		    cancel_at_period_end = $5, updated_at = now()
		WHERE provider_subscription_id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, providerID, status, periodStart, periodEnd, cancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	return nil
}

// SetSubscriptionCancel toggles the cancel-at-period-end flag.
func (r *Repository) SetSubscriptionCancel(ctx context.Context, providerID string, cancel bool) error {
	query := `
		UPDATE subscriptions
		SET cancel_at_period_end = $2, updated_at = now()
		WHERE provider_subscription_id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, providerID, cancel)
	if err != nil {
		return fmt.Errorf("failed to set subscription cancel flag: %w", err)
	}

	return nil
}

// Usage records

// RecordUsage appends one billable operation for the rolling-window rate
// gate.
func (r *Repository) RecordUsage(ctx context.Context, rec *models.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO usage_records (id, user_id, action)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query, rec.ID, rec.UserID, rec.Action).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}

// CountUsageSince counts operations of one action type for a user at or
// after the window start. No rows means zero, not an error.
func (r *Repository) CountUsageSince(ctx context.Context, userID, action string, since time.Time) (int, error) {
	var count int

	query := `
		SELECT COUNT(*)
		FROM usage_records
		WHERE user_id = $1 AND action = $2 AND created_at >= $3
	`

	err := r.db.Pool.QueryRow(ctx, query, userID, action, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}

	return count, nil
}
