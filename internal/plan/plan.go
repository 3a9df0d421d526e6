// Package plan is the static registry of subscription plans and their limits.
// It is pure data: no I/O, and lookups are total functions that fall back to
// the free plan for unrecognized identifiers.
package plan

import (
	"github.com/podbrief/podbrief/pkg/models"
)

// Plan identifiers
const (
	Free   = "free"
	Hobby  = "hobby"
	Pro    = "pro"
	Agency = "agency"
)

// Unlimited marks a limit with no ceiling.
const Unlimited = models.UnlimitedQuota

// Limits holds the feature flags and usage ceilings of a plan.
type Limits struct {
	UploadsPerMonth int   // Unlimited for no ceiling
	MaxFileSize     int64 // bytes
	MaxDuration     int   // seconds
	AIFeatures      bool
	TeamMembers     int // Unlimited for no ceiling
	APIAccess       bool
	PrioritySupport bool
}

// Plan describes one subscription tier.
type Plan struct {
	ID           string
	Name         string
	PriceMonthly int64 // cents
	PriceYearly  int64 // cents
	Limits       Limits
}

var plans = map[string]Plan{
	Free: {
		ID:           Free,
		Name:         "Free",
		PriceMonthly: 0,
		PriceYearly:  0,
		Limits: Limits{
			UploadsPerMonth: 3,
			MaxFileSize:     100 * 1024 * 1024,
			MaxDuration:     30 * 60,
			AIFeatures:      false,
			TeamMembers:     1,
			APIAccess:       false,
			PrioritySupport: false,
		},
	},
	Hobby: {
		ID:           Hobby,
		Name:         "Hobby",
		PriceMonthly: 1900,
		PriceYearly:  19000,
		Limits: Limits{
			UploadsPerMonth: 10,
			MaxFileSize:     500 * 1024 * 1024,
			MaxDuration:     2 * 60 * 60,
			AIFeatures:      true,
			TeamMembers:     1,
			APIAccess:       false,
			PrioritySupport: false,
		},
	},
	Pro: {
		ID:           Pro,
		Name:         "Pro",
		PriceMonthly: 4900,
		PriceYearly:  49000,
		Limits: Limits{
			UploadsPerMonth: 50,
			MaxFileSize:     2 * 1024 * 1024 * 1024,
			MaxDuration:     4 * 60 * 60,
			AIFeatures:      true,
			TeamMembers:     3,
			APIAccess:       true,
			PrioritySupport: true,
		},
	},
	Agency: {
		ID:           Agency,
		Name:         "Agency",
		PriceMonthly: 19900,
		PriceYearly:  199000,
		Limits: Limits{
			UploadsPerMonth: Unlimited,
			MaxFileSize:     5 * 1024 * 1024 * 1024,
			MaxDuration:     8 * 60 * 60,
			AIFeatures:      true,
			TeamMembers:     Unlimited,
			APIAccess:       true,
			PrioritySupport: true,
		},
	},
}

// rateAllowances is the hourly transcription allowance per tier.
var rateAllowances = map[string]int{
	Free:   5,
	Hobby:  20,
	Pro:    100,
	Agency: 500,
}

// For returns the plan for the given identifier, falling back to the free
// plan for anything unrecognized.
func For(id string) Plan {
	if p, ok := plans[id]; ok {
		return p
	}
	return plans[Free]
}

// RateAllowance returns the hourly request allowance for the given tier,
// falling back to the free allowance for anything unrecognized.
func RateAllowance(id string) int {
	if a, ok := rateAllowances[id]; ok {
		return a
	}
	return rateAllowances[Free]
}

// All returns every registered plan.
func All() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, id := range []string{Free, Hobby, Pro, Agency} {
		out = append(out, plans[id])
	}
	return out
}
