// Package billing integrates with Stripe. All plan state flows one way:
// Stripe is the source of truth, webhook events sync the local rows, and
// change events fan out so live sessions reload.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	stripesub "github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/podbrief/podbrief/internal/config"
	"github.com/podbrief/podbrief/internal/database"
	"github.com/podbrief/podbrief/internal/notify"
	"github.com/podbrief/podbrief/internal/plan"
	"github.com/podbrief/podbrief/pkg/models"
)

// ErrNoSubscription means the user has no active subscription to act on.
var ErrNoSubscription = errors.New("no active subscription")

// ErrUnknownPlan means the requested plan has no configured Stripe price.
var ErrUnknownPlan = errors.New("unknown plan")

// ErrInvalidPayload means a webhook request failed verification or parsing.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// Store is the persistence surface billing writes through.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
	UserIDByCustomer(ctx context.Context, customerID string) (string, error)
	SetProfilePlan(ctx context.Context, userID, tier string, quota int, resetDate time.Time) error
	GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, s *models.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, providerID, status string, periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error
	SetSubscriptionCancel(ctx context.Context, providerID string, cancel bool) error
	DeactivateSubscriptions(ctx context.Context, userID, exceptProviderID string) error
}

// Service performs Stripe operations and applies webhook events.
type Service struct {
	cfg    config.BillingConfig
	store  Store
	events notify.Publisher
}

// New creates a billing service and sets the global Stripe key.
func New(cfg config.BillingConfig, store Store, events notify.Publisher) *Service {
	stripe.Key = cfg.SecretKey
	return &Service{cfg: cfg, store: store, events: events}
}

// EnsureCustomer finds or creates the Stripe customer for a user and stores
// the id on the profile.
func (s *Service) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("failed to load profile: %w", err)
	}
	if profile != nil && profile.StripeCustomerID != "" {
		return profile.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	if err := s.store.SetStripeCustomerID(ctx, userID, cust.ID); err != nil {
		return "", err
	}

	return cust.ID, nil
}

// CheckoutParams describes one checkout flow. Cycle is "monthly" or
// "yearly"; SuccessURL and CancelURL fall back to the configured frontend
// when empty.
type CheckoutParams struct {
	UserID     string
	Email      string
	PlanID     string
	Cycle      string
	SuccessURL string
	CancelURL  string
}

// CheckoutURL starts a monthly subscription checkout for the given plan and
// returns the hosted page URL.
func (s *Service) CheckoutURL(ctx context.Context, userID, email, planID string) (string, error) {
	_, url, err := s.Checkout(ctx, CheckoutParams{
		UserID: userID,
		Email:  email,
		PlanID: planID,
	})
	return url, err
}

// Checkout starts a subscription checkout and returns the session id and
// hosted page URL. The Stripe price is resolved server-side from the plan and
// cycle; clients never send price ids.
func (s *Service) Checkout(ctx context.Context, req CheckoutParams) (string, string, error) {
	priceID := s.priceFor(req.PlanID, req.Cycle)
	if priceID == "" {
		return "", "", fmt.Errorf("plan %s (%s): %w", req.PlanID, req.Cycle, ErrUnknownPlan)
	}

	customerID, err := s.EnsureCustomer(ctx, req.UserID, req.Email)
	if err != nil {
		return "", "", err
	}

	frontendURL := strings.TrimRight(s.cfg.FrontendURL, "/")
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = frontendURL + "/billing/success"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = frontendURL + "/billing/cancel"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:          stripe.String(successURL),
		CancelURL:           stripe.String(cancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		TaxIDCollection: &stripe.CheckoutSessionTaxIDCollectionParams{
			Enabled: stripe.Bool(true),
		},
	}
	if s.cfg.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(int64(s.cfg.TrialDays)),
		}
	}

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	return sess.ID, sess.URL, nil
}

// PortalURL creates a customer-portal session for managing the subscription.
func (s *Service) PortalURL(ctx context.Context, userID string) (string, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load profile: %w", err)
	}
	if profile.StripeCustomerID == "" {
		return "", ErrNoSubscription
	}

	frontendURL := strings.TrimRight(s.cfg.FrontendURL, "/")
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(profile.StripeCustomerID),
		ReturnURL: stripe.String(frontendURL + "/settings/billing"),
	}

	sess, err := portal.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}

	return sess.URL, nil
}

// PortalURLForCustomer creates a portal session directly from a billing
// customer id with an explicit return URL.
func (s *Service) PortalURLForCustomer(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", ErrNoSubscription
	}
	if returnURL == "" {
		returnURL = strings.TrimRight(s.cfg.FrontendURL, "/") + "/settings/billing"
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	sess, err := portal.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}

	return sess.URL, nil
}

// SetCancelAtPeriodEnd toggles cancellation on the user's active
// subscription in Stripe and mirrors the flag locally.
func (s *Service) SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error {
	sub, err := s.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNoSubscription
		}
		return err
	}

	_, err = stripesub.Update(sub.ProviderSubscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	})
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	if err := s.store.SetSubscriptionCancel(ctx, sub.ProviderSubscriptionID, cancel); err != nil {
		return err
	}

	s.publish(ctx, notify.TableSubscriptions, userID)
	return nil
}

// HandleWebhook verifies and applies one Stripe event. Unhandled event types
// are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: signature verification failed: %v", ErrInvalidPayload, err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("%w: invalid session payload: %v", ErrInvalidPayload, err)
		}
		return s.handleCheckoutCompleted(ctx, &sess)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: invalid subscription payload: %v", ErrInvalidPayload, err)
		}
		return s.applySubscription(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: invalid subscription payload: %v", ErrInvalidPayload, err)
		}
		return s.handleSubscriptionDeleted(ctx, &sub)

	default:
		log.Debug().Str("type", string(event.Type)).Msg("Ignoring webhook event")
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	if sess.Customer == nil {
		return errors.New("checkout session missing customer")
	}

	// The subscription.created event that follows carries the plan details;
	// here we only make sure the customer id is linked to a user.
	userID, err := s.store.UserIDByCustomer(ctx, sess.Customer.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve customer %s: %w", sess.Customer.ID, err)
	}

	log.Info().
		Str("user_id", userID).
		Str("customer_id", sess.Customer.ID).
		Msg("Checkout completed")

	return nil
}

func (s *Service) applySubscription(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil {
		return errors.New("subscription missing customer")
	}

	userID, err := s.store.UserIDByCustomer(ctx, sub.Customer.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve customer %s: %w", sub.Customer.ID, err)
	}

	planID := s.planForPrice(subscriptionPriceID(sub))
	if planID == "" {
		log.Warn().
			Str("subscription_id", sub.ID).
			Msg("Subscription price not mapped to a plan, keeping free tier")
		planID = plan.Free
	}

	row := &models.Subscription{
		UserID:                 userID,
		PlanID:                 planID,
		Status:                 string(sub.Status),
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     sub.Customer.ID,
		CurrentPeriodStart:     time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:       time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
	}
	if err := s.store.UpsertSubscription(ctx, row); err != nil {
		return err
	}

	if isActiveStatus(string(sub.Status)) {
		if err := s.store.DeactivateSubscriptions(ctx, userID, sub.ID); err != nil {
			return err
		}
		p := plan.For(planID)
		if err := s.store.SetProfilePlan(ctx, userID, planID, p.Limits.UploadsPerMonth, row.CurrentPeriodEnd); err != nil {
			return err
		}
	}

	s.publish(ctx, notify.TableSubscriptions, userID)
	s.publish(ctx, notify.TableProfiles, userID)

	log.Info().
		Str("user_id", userID).
		Str("plan", planID).
		Str("status", string(sub.Status)).
		Msg("Subscription synced")

	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil {
		return errors.New("subscription missing customer")
	}

	userID, err := s.store.UserIDByCustomer(ctx, sub.Customer.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve customer %s: %w", sub.Customer.ID, err)
	}

	err = s.store.UpdateSubscriptionStatus(ctx, sub.ID, models.SubscriptionStatusCanceled,
		time.Unix(sub.CurrentPeriodStart, 0), time.Unix(sub.CurrentPeriodEnd, 0), sub.CancelAtPeriodEnd)
	if err != nil {
		return err
	}

	free := plan.For(plan.Free)
	nextReset := time.Now().AddDate(0, 1, 0)
	if err := s.store.SetProfilePlan(ctx, userID, plan.Free, free.Limits.UploadsPerMonth, nextReset); err != nil {
		return err
	}

	s.publish(ctx, notify.TableSubscriptions, userID)
	s.publish(ctx, notify.TableProfiles, userID)

	log.Info().Str("user_id", userID).Msg("Subscription canceled, reverted to free plan")
	return nil
}

// priceFor resolves the configured Stripe price id for a plan and billing
// cycle. Anything other than "yearly" selects the monthly price.
func (s *Service) priceFor(planID, cycle string) string {
	if cycle == "yearly" {
		return s.cfg.YearlyPriceIDs[planID]
	}
	return s.cfg.PriceIDs[planID]
}

// planForPrice maps a Stripe price id back to a plan id using the configured
// monthly and yearly price tables.
func (s *Service) planForPrice(priceID string) string {
	for planID, id := range s.cfg.PriceIDs {
		if id == priceID {
			return planID
		}
	}
	for planID, id := range s.cfg.YearlyPriceIDs {
		if id == priceID {
			return planID
		}
	}
	return ""
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}

func isActiveStatus(status string) bool {
	return status == models.SubscriptionStatusActive || status == models.SubscriptionStatusTrialing
}

func (s *Service) publish(ctx context.Context, table, userID string) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, notify.Event{
		Table:  table,
		UserID: userID,
		Action: "update",
	})
	if err != nil {
		log.Warn().Err(err).Str("table", table).Str("user_id", userID).Msg("Failed to publish change event")
	}
}
