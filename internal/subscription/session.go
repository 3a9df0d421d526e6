// Package subscription maintains a per-user view of plan, usage, and billing
// state. A Session is loaded in full and refreshed in full: change events name
// the user and table but carry no row data, so every refresh is a reload.
package subscription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/podbrief/podbrief/internal/database"
	"github.com/podbrief/podbrief/internal/limits"
	"github.com/podbrief/podbrief/internal/metrics"
	"github.com/podbrief/podbrief/internal/notify"
	"github.com/podbrief/podbrief/internal/plan"
	"github.com/podbrief/podbrief/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrBusy means a billing action for this session is already in flight.
// Callers surface it as "try again" rather than queueing a second action.
var ErrBusy = errors.New("billing action already in progress")

// Store is the persistence surface a session reads from.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

// Biller performs billing-provider actions on behalf of a session.
type Biller interface {
	CheckoutURL(ctx context.Context, userID, email, planID string) (string, error)
	PortalURL(ctx context.Context, userID string) (string, error)
	SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error
}

// ProfileCache is an optional read-through cache in front of the profile row.
// A nil cache means every Load hits the store.
type ProfileCache interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SetProfile(ctx context.Context, profile *models.Profile, ttl time.Duration) error
	DeleteProfile(ctx context.Context, userID string) error
}

const profileCacheTTL = 5 * time.Minute

// State is a point-in-time snapshot of a user's subscription view.
type State struct {
	Profile      *models.Profile
	Subscription *models.Subscription
	Plan         plan.Plan
}

// UsageData summarizes quota consumption for display.
type UsageData struct {
	CurrentUsage int    `json:"current_usage"`
	UsageQuota   int    `json:"usage_quota"`
	Percent      int    `json:"percent"`
	Tier         string `json:"tier"`
}

// Session is one user's live subscription view.
type Session struct {
	userID   string
	store    Store
	biller   Biller
	profiles ProfileCache

	mu    sync.RWMutex
	state State

	processing atomic.Bool
}

// NewSession creates an unloaded session; call Load before reading state.
// profiles may be nil.
func NewSession(userID string, store Store, biller Biller, profiles ProfileCache) *Session {
	return &Session{userID: userID, store: store, biller: biller, profiles: profiles}
}

// Load refreshes the whole session state, reading the profile through the
// cache when one is wired. A missing profile resolves to the free-plan
// default; a missing active subscription is normal for free users.
func (s *Session) Load(ctx context.Context) error {
	profile, err := s.loadProfile(ctx)
	if err != nil {
		return err
	}

	sub, err := s.store.GetActiveSubscription(ctx, s.userID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	s.mu.Lock()
	s.state = State{
		Profile:      profile,
		Subscription: sub,
		Plan:         plan.For(profile.SubscriptionTier),
	}
	s.mu.Unlock()

	return nil
}

func (s *Session) loadProfile(ctx context.Context) (*models.Profile, error) {
	if s.profiles != nil {
		cached, err := s.profiles.GetProfile(ctx, s.userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("Profile cache read failed")
		}
		metrics.RecordCacheAccess("profile", cached != nil)
		if cached != nil {
			return cached, nil
		}
	}

	profile, err := s.store.GetProfile(ctx, s.userID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		profile = limits.DefaultProfile(s.userID)
	}

	if s.profiles != nil {
		if err := s.profiles.SetProfile(ctx, profile, profileCacheTTL); err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("Profile cache write failed")
		}
	}

	return profile, nil
}

// reload drops the cached profile and loads fresh state. Used after billing
// actions and change events, where a stale cache would defeat the refresh.
func (s *Session) reload(ctx context.Context) error {
	if s.profiles != nil {
		if err := s.profiles.DeleteProfile(ctx, s.userID); err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("Profile cache invalidation failed")
		}
	}
	return s.Load(ctx)
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Usage returns the session's usage summary.
func (s *Session) Usage() UsageData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.state.Profile
	if p == nil {
		return UsageData{Tier: plan.Free}
	}
	return UsageData{
		CurrentUsage: p.CurrentUsage,
		UsageQuota:   p.UsageQuota,
		Percent:      UsagePercent(p.CurrentUsage, p.UsageQuota),
		Tier:         p.SubscriptionTier,
	}
}

// UsagePercent reports consumption as a percentage rounded to the nearest
// whole number. Unlimited or malformed quotas read as zero rather than
// dividing by them. Overconsumption reads over 100.
func UsagePercent(current, quota int) int {
	if quota <= 0 {
		return 0
	}
	return (current*100 + quota/2) / quota
}

// CanUseFeature reports whether the session's plan includes a feature.
// Unrecognized feature names are allowed, so new features default open.
func (s *Session) CanUseFeature(feature string) bool {
	s.mu.RLock()
	limits := s.state.Plan.Limits
	s.mu.RUnlock()

	switch feature {
	case "ai_features":
		return limits.AIFeatures
	case "api_access":
		return limits.APIAccess
	case "priority_support":
		return limits.PrioritySupport
	case "team_collaboration":
		return limits.TeamMembers > 1 || limits.TeamMembers == plan.Unlimited
	default:
		return true
	}
}

// IsWithinLimits reports whether the user still has monthly quota left.
func (s *Session) IsWithinLimits() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.Profile == nil {
		return true
	}
	return limits.WithinQuota(s.state.Profile)
}

// Checkout starts a checkout flow for the given plan. At most one billing
// action runs per session at a time.
func (s *Session) Checkout(ctx context.Context, planID string) (string, error) {
	if !s.processing.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer s.processing.Store(false)

	s.mu.RLock()
	email := ""
	if s.state.Profile != nil {
		email = s.state.Profile.Email
	}
	s.mu.RUnlock()

	url, err := s.biller.CheckoutURL(ctx, s.userID, email, planID)
	if err != nil {
		return "", err
	}
	s.reloadAfterBilling(ctx)
	return url, nil
}

// Portal returns a billing-portal URL for the session's user.
func (s *Session) Portal(ctx context.Context) (string, error) {
	if !s.processing.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer s.processing.Store(false)

	url, err := s.biller.PortalURL(ctx, s.userID)
	if err != nil {
		return "", err
	}
	s.reloadAfterBilling(ctx)
	return url, nil
}

// reloadAfterBilling refreshes state after a billing call that already
// succeeded. The URL still has to reach the caller, so a reload failure is
// logged and the next change event catches the session up.
func (s *Session) reloadAfterBilling(ctx context.Context) {
	if err := s.reload(ctx); err != nil {
		log.Warn().Err(err).Str("user_id", s.userID).Msg("Failed to refresh session after billing action")
	}
}

// Cancel schedules the subscription to end at the period boundary.
func (s *Session) Cancel(ctx context.Context) error {
	return s.setCancel(ctx, true)
}

// Reactivate clears a pending cancellation.
func (s *Session) Reactivate(ctx context.Context) error {
	return s.setCancel(ctx, false)
}

func (s *Session) setCancel(ctx context.Context, cancel bool) error {
	if !s.processing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.processing.Store(false)

	if err := s.biller.SetCancelAtPeriodEnd(ctx, s.userID, cancel); err != nil {
		return err
	}

	return s.reload(ctx)
}

// Watch reloads the session whenever a change event for its user arrives.
// It blocks until ctx is done or the event channel closes.
func (s *Session) Watch(ctx context.Context, events <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.UserID != s.userID {
				continue
			}
			if ev.Table != notify.TableProfiles && ev.Table != notify.TableSubscriptions {
				continue
			}
			if err := s.reload(ctx); err != nil {
				log.Warn().Err(err).Str("user_id", s.userID).Msg("Failed to refresh subscription session")
			}
		}
	}
}
