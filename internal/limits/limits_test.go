package limits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podbrief/podbrief/internal/database"
	"github.com/podbrief/podbrief/pkg/models"
)

// fakeStore holds an in-memory profile and usage timestamps.
type fakeStore struct {
	profile *models.Profile
	usage   []time.Time
}

func (f *fakeStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if f.profile == nil {
		return nil, database.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeStore) CountUsageSince(ctx context.Context, userID, action string, since time.Time) (int, error) {
	count := 0
	for _, t := range f.usage {
		if !t.Before(since) {
			count++
		}
	}
	return count, nil
}

func usageTimes(n int, age time.Duration) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = time.Now().Add(-age)
	}
	return times
}

func TestCheckRate_ZeroUsageAlwaysPasses(t *testing.T) {
	gate := NewGate(&fakeStore{})

	for _, tier := range []string{"free", "hobby", "pro", "agency"} {
		ok, err := gate.CheckRate(context.Background(), "u1", tier, "transcription")
		require.NoError(t, err)
		assert.True(t, ok, "tier %s should pass with zero usage", tier)
	}
}

func TestCheckRate_BoundaryAtAllowance(t *testing.T) {
	allowances := map[string]int{
		"free":   5,
		"hobby":  20,
		"pro":    100,
		"agency": 500,
	}

	for tier, allowance := range allowances {
		// Exactly at the allowance: fails.
		store := &fakeStore{usage: usageTimes(allowance, time.Minute)}
		gate := NewGate(store)
		ok, err := gate.CheckRate(context.Background(), "u1", tier, "transcription")
		require.NoError(t, err)
		assert.False(t, ok, "tier %s at allowance %d should fail", tier, allowance)

		// One below: passes.
		store.usage = usageTimes(allowance-1, time.Minute)
		ok, err = gate.CheckRate(context.Background(), "u1", tier, "transcription")
		require.NoError(t, err)
		assert.True(t, ok, "tier %s at allowance-1 should pass", tier)
	}
}

func TestCheckRate_OldUsageOutsideWindowIgnored(t *testing.T) {
	store := &fakeStore{usage: usageTimes(50, 2*time.Hour)}
	gate := NewGate(store)

	ok, err := gate.CheckRate(context.Background(), "u1", "free", "transcription")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckRate_UnknownTierGetsFreeAllowance(t *testing.T) {
	store := &fakeStore{usage: usageTimes(5, time.Minute)}
	gate := NewGate(store)

	ok, err := gate.CheckRate(context.Background(), "u1", "enterprise", "transcription")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithinQuota(t *testing.T) {
	assert.False(t, WithinQuota(&models.Profile{CurrentUsage: 10, UsageQuota: 10}))
	assert.True(t, WithinQuota(&models.Profile{CurrentUsage: 9, UsageQuota: 10}))
	assert.False(t, WithinQuota(&models.Profile{CurrentUsage: 11, UsageQuota: 10}))

	// Unlimited plans never fail the quota gate.
	assert.True(t, WithinQuota(&models.Profile{CurrentUsage: 100000, UsageQuota: models.UnlimitedQuota}))
	assert.True(t, WithinQuota(&models.Profile{CurrentUsage: 0, UsageQuota: models.UnlimitedQuota}))
}

func TestCheck_QuotaExceeded(t *testing.T) {
	store := &fakeStore{
		profile: &models.Profile{
			UserID:           "u1",
			SubscriptionTier: "hobby",
			CurrentUsage:     10,
			UsageQuota:       10,
		},
	}
	gate := NewGate(store)

	decision, tier, err := gate.Check(context.Background(), "u1", "transcription")
	require.NoError(t, err)
	assert.Equal(t, DecisionQuotaExceeded, decision)
	assert.Equal(t, "hobby", tier)
}

func TestCheck_RateLimitedBeforeQuota(t *testing.T) {
	// Both gates would fail; rate is evaluated first.
	store := &fakeStore{
		profile: &models.Profile{
			UserID:           "u1",
			SubscriptionTier: "free",
			CurrentUsage:     3,
			UsageQuota:       3,
		},
		usage: usageTimes(5, time.Minute),
	}
	gate := NewGate(store)

	decision, _, err := gate.Check(context.Background(), "u1", "transcription")
	require.NoError(t, err)
	assert.Equal(t, DecisionRateLimited, decision)
}

func TestCheck_MissingProfileDefaultsToFree(t *testing.T) {
	gate := NewGate(&fakeStore{})

	decision, tier, err := gate.Check(context.Background(), "nobody", "transcription")
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, decision)
	assert.Equal(t, "free", tier)
}

func TestCheck_EmptyTierTreatedAsFree(t *testing.T) {
	store := &fakeStore{
		profile: &models.Profile{UserID: "u1", CurrentUsage: 0, UsageQuota: 3},
		usage:   usageTimes(5, time.Minute),
	}
	gate := NewGate(store)

	decision, tier, err := gate.Check(context.Background(), "u1", "transcription")
	require.NoError(t, err)
	assert.Equal(t, DecisionRateLimited, decision)
	assert.Equal(t, "free", tier)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allowed", DecisionAllowed.String())
	assert.Equal(t, "rate_limited", DecisionRateLimited.String())
	assert.Equal(t, "quota_exceeded", DecisionQuotaExceeded.String())
}
