package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v79"

	"github.com/podbrief/podbrief/internal/config"
	"github.com/podbrief/podbrief/internal/notify"
	"github.com/podbrief/podbrief/internal/plan"
	"github.com/podbrief/podbrief/pkg/models"
)

func newTestService() *Service {
	return &Service{
		cfg: config.BillingConfig{
			PriceIDs: map[string]string{
				plan.Hobby:  "price_hobby_m",
				plan.Pro:    "price_pro_m",
				plan.Agency: "price_agency_m",
			},
			YearlyPriceIDs: map[string]string{
				plan.Pro: "price_pro_y",
			},
		},
	}
}

func TestPlanForPrice(t *testing.T) {
	s := newTestService()

	assert.Equal(t, plan.Pro, s.planForPrice("price_pro_m"))
	assert.Equal(t, plan.Pro, s.planForPrice("price_pro_y"))
	assert.Equal(t, plan.Hobby, s.planForPrice("price_hobby_m"))
	assert.Equal(t, "", s.planForPrice("price_unknown"))
	assert.Equal(t, "", s.planForPrice(""))
}

func TestSubscriptionPriceID(t *testing.T) {
	sub := &stripe.Subscription{
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: "price_pro_m"}},
			},
		},
	}
	assert.Equal(t, "price_pro_m", subscriptionPriceID(sub))

	assert.Equal(t, "", subscriptionPriceID(&stripe.Subscription{}))
	assert.Equal(t, "", subscriptionPriceID(&stripe.Subscription{
		Items: &stripe.SubscriptionItemList{},
	}))
}

func TestIsActiveStatus(t *testing.T) {
	assert.True(t, isActiveStatus(models.SubscriptionStatusActive))
	assert.True(t, isActiveStatus(models.SubscriptionStatusTrialing))
	assert.False(t, isActiveStatus(models.SubscriptionStatusCanceled))
	assert.False(t, isActiveStatus(models.SubscriptionStatusPastDue))
	assert.False(t, isActiveStatus(models.SubscriptionStatusIncomplete))
}

func TestPriceFor(t *testing.T) {
	s := newTestService()

	assert.Equal(t, "price_pro_m", s.priceFor(plan.Pro, ""))
	assert.Equal(t, "price_pro_m", s.priceFor(plan.Pro, "monthly"))
	assert.Equal(t, "price_pro_y", s.priceFor(plan.Pro, "yearly"))

	// no yearly price configured for hobby
	assert.Equal(t, "", s.priceFor(plan.Hobby, "yearly"))
	assert.Equal(t, "", s.priceFor(plan.Free, ""))
}

func TestCheckoutURL_UnknownPlan(t *testing.T) {
	s := newTestService()

	_, err := s.CheckoutURL(context.Background(), "user-1", "a@b.c", "enterprise")
	assert.ErrorIs(t, err, ErrUnknownPlan)

	_, err = s.CheckoutURL(context.Background(), "user-1", "a@b.c", plan.Free)
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestCheckout_UnknownCycleFallsBackToUnknownPlan(t *testing.T) {
	s := newTestService()

	_, _, err := s.Checkout(context.Background(), CheckoutParams{
		UserID: "user-1",
		Email:  "a@b.c",
		PlanID: plan.Hobby,
		Cycle:  "yearly",
	})
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestPublishWithoutBus(t *testing.T) {
	s := newTestService()

	// nil events bus must be a no-op, not a panic
	s.publish(context.Background(), notify.TableProfiles, "user-1")
}
