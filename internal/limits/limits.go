// Package limits decides whether a billable operation may proceed. Two
// independent gates apply: an hourly rolling-window rate limit and a monthly
// quota ceiling. Both are advisory reads; the usage write happens later, so
// two concurrent requests can both pass a gate sized for one remaining slot.
package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/podbrief/podbrief/internal/database"
	"github.com/podbrief/podbrief/internal/plan"
	"github.com/podbrief/podbrief/pkg/models"
)

// RateWindow is the trailing window for the rate gate.
const RateWindow = time.Hour

// Decision is the outcome of a gate check. RateLimited and QuotaExceeded are
// distinct so callers can present different remediation (wait vs upgrade).
type Decision int

const (
	DecisionAllowed Decision = iota
	DecisionRateLimited
	DecisionQuotaExceeded
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionRateLimited:
		return "rate_limited"
	case DecisionQuotaExceeded:
		return "quota_exceeded"
	default:
		return "unknown"
	}
}

// Store is the persistence surface the gate reads from.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	CountUsageSince(ctx context.Context, userID, action string, since time.Time) (int, error)
}

// Gate evaluates the rate and quota gates for a user.
type Gate struct {
	store Store
}

// NewGate creates a gate backed by the given store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Check runs both gates for the user and action. The profile row resolves
// the tier; a missing row is the free-plan default state, not an error. It
// returns the resolved tier alongside the decision.
func (g *Gate) Check(ctx context.Context, userID, action string) (Decision, string, error) {
	profile, err := g.store.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return DecisionAllowed, "", fmt.Errorf("failed to load profile: %w", err)
		}
		profile = DefaultProfile(userID)
	}

	tier := profile.SubscriptionTier
	if tier == "" {
		tier = plan.Free
	}

	ok, err := g.CheckRate(ctx, userID, tier, action)
	if err != nil {
		return DecisionAllowed, tier, err
	}
	if !ok {
		return DecisionRateLimited, tier, nil
	}

	if !WithinQuota(profile) {
		return DecisionQuotaExceeded, tier, nil
	}

	return DecisionAllowed, tier, nil
}

// CheckRate counts the user's operations of the given action within the
// trailing window and compares against the tier's hourly allowance. Zero
// prior records always passes.
func (g *Gate) CheckRate(ctx context.Context, userID, tier, action string) (bool, error) {
	since := time.Now().Add(-RateWindow)

	count, err := g.store.CountUsageSince(ctx, userID, action, since)
	if err != nil {
		return false, fmt.Errorf("failed to count usage: %w", err)
	}

	return count < plan.RateAllowance(tier), nil
}

// WithinQuota reports whether the profile still has monthly quota left.
// Plans with the unlimited sentinel never exhaust their quota.
func WithinQuota(p *models.Profile) bool {
	if p.UsageQuota == models.UnlimitedQuota {
		return true
	}
	return p.CurrentUsage < p.UsageQuota
}

// DefaultProfile is the free-plan state used when no profile row exists.
func DefaultProfile(userID string) *models.Profile {
	free := plan.For(plan.Free)
	return &models.Profile{
		UserID:           userID,
		SubscriptionTier: plan.Free,
		CurrentUsage:     0,
		UsageQuota:       free.Limits.UploadsPerMonth,
		QuotaResetDate:   time.Now().AddDate(0, 1, 0),
	}
}
