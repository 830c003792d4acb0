package model

import (
	"time"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
)

type Entitlement struct {
	UserID                 int64                    `json:"user_id"`
	Tier                   enums.Tier               `json:"tier"`
	SubscriptionStatus     enums.SubscriptionStatus `json:"subscription_status"`
	CurrentPeriodEnd       *time.Time               `json:"current_period_end"`
	ProviderSubscriptionID *string                  `json:"provider_subscription_id"`
	ProviderCustomerID     *string                  `json:"provider_customer_id"`
	UpdatedAt              time.Time                `json:"updated_at"`
}

// Equal compares the billing-relevant fields by value (UpdatedAt excluded),
// so redundant webhook deliveries can be detected as changeless.
func (e Entitlement) Equal(other Entitlement) bool {
	return e.UserID == other.UserID &&
		e.Tier == other.Tier &&
		e.SubscriptionStatus == other.SubscriptionStatus &&
		equalTimePtr(e.CurrentPeriodEnd, other.CurrentPeriodEnd) &&
		equalStringPtr(e.ProviderSubscriptionID, other.ProviderSubscriptionID) &&
		equalStringPtr(e.ProviderCustomerID, other.ProviderCustomerID)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// PremiumActive reports whether the record currently grants premium limits.
// A cancelled subscription stays premium until its period end.
func (e Entitlement) PremiumActive(at time.Time) bool {
	if e.Tier != enums.TierPremium {
		return false
	}
	if !e.SubscriptionStatus.AllowsPremium() {
		return false
	}
	if e.SubscriptionStatus == enums.SubscriptionCancelled {
		return e.CurrentPeriodEnd != nil && e.CurrentPeriodEnd.After(at)
	}
	return true
}
