package entitlements

import (
	"errors"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
)

var (
	// ErrIllegalTransition means the event cannot be applied to the record's
	// current status (e.g. anything but a fresh create on an expired record).
	ErrIllegalTransition = errors.New("illegal entitlement transition")

	// ErrResumeAfterPeriodEnd rejects a resume arriving after the paid period
	// already ended; the provider's expiry event wins.
	ErrResumeAfterPeriodEnd = errors.New("resume after period end")
)

// SideEffect is an instruction the caller executes after the transition is
// persisted. The transition itself stays pure.
type SideEffect string

const (
	EffectSendWelcomeEmail       SideEffect = "send_welcome_email"
	EffectSendCancellationNotice SideEffect = "send_cancellation_notice"
	EffectSendPaymentFailedAlert SideEffect = "send_payment_failed_alert"
	EffectResetQuotaCounters     SideEffect = "reset_quota_counters"
)

// Transition maps (current entitlement, event) to the next entitlement plus
// side-effect instructions. Redundant deliveries that describe the state the
// record is already in are a changeless no-op, so near-simultaneous duplicate
// events with distinct ids converge without extra serialization.
func Transition(record model.Entitlement, event model.BillingEvent) (model.Entitlement, []SideEffect, error) {
	switch event.Kind {
	case enums.BillingSubscriptionCreated:
		return applyCreated(record, event)
	case enums.BillingSubscriptionUpdated:
		return applyUpdated(record, event)
	case enums.BillingSubscriptionCancelled:
		return applyCancelled(record)
	case enums.BillingSubscriptionResumed:
		return applyResumed(record, event)
	case enums.BillingSubscriptionExpired:
		return applyExpired(record)
	case enums.BillingPaymentFailed:
		return applyPaymentFailed(record)
	case enums.BillingPaymentRecovered:
		return applyPaymentRecovered(record)
	default:
		return record, nil, ErrIllegalTransition
	}
}

func applyCreated(record model.Entitlement, event model.BillingEvent) (model.Entitlement, []SideEffect, error) {
	if record.SubscriptionStatus == enums.SubscriptionActive &&
		sameSubscription(record.ProviderSubscriptionID, event.SubscriptionID) {
		return record, nil, nil
	}

	record.Tier = enums.TierPremium
	record.SubscriptionStatus = enums.SubscriptionActive
	record.CurrentPeriodEnd = event.RenewsAt
	if event.SubscriptionID != "" {
		id := event.SubscriptionID
		record.ProviderSubscriptionID = &id
	}
	if event.CustomerID != "" {
		id := event.CustomerID
		record.ProviderCustomerID = &id
	}

	return record, []SideEffect{EffectSendWelcomeEmail}, nil
}

func applyUpdated(record model.Entitlement, event model.BillingEvent) (model.Entitlement, []SideEffect, error) {
	if record.SubscriptionStatus == enums.SubscriptionNone || record.SubscriptionStatus == enums.SubscriptionExpired {
		return record, nil, ErrIllegalTransition
	}

	if status := mapProviderStatus(event.Status); status != "" {
		record.SubscriptionStatus = status
	}
	if event.RenewsAt != nil {
		record.CurrentPeriodEnd = event.RenewsAt
	} else if event.EndsAt != nil {
		record.CurrentPeriodEnd = event.EndsAt
	}

	return record, nil, nil
}

func applyCancelled(record model.Entitlement) (model.Entitlement, []SideEffect, error) {
	switch record.SubscriptionStatus {
	case enums.SubscriptionCancelled:
		return record, nil, nil
	case enums.SubscriptionActive, enums.SubscriptionPastDue:
		// Grace period: tier and limits stay premium until the period end.
		record.SubscriptionStatus = enums.SubscriptionCancelled
		return record, []SideEffect{EffectSendCancellationNotice}, nil
	default:
		return record, nil, ErrIllegalTransition
	}
}

func applyResumed(record model.Entitlement, event model.BillingEvent) (model.Entitlement, []SideEffect, error) {
	switch record.SubscriptionStatus {
	case enums.SubscriptionActive:
		return record, nil, nil
	case enums.SubscriptionCancelled:
		if record.CurrentPeriodEnd == nil || !event.CreatedAt.Before(*record.CurrentPeriodEnd) {
			return record, nil, ErrResumeAfterPeriodEnd
		}
		record.SubscriptionStatus = enums.SubscriptionActive
		return record, nil, nil
	default:
		return record, nil, ErrIllegalTransition
	}
}

func applyExpired(record model.Entitlement) (model.Entitlement, []SideEffect, error) {
	switch record.SubscriptionStatus {
	case enums.SubscriptionExpired:
		return record, nil, nil
	case enums.SubscriptionCancelled, enums.SubscriptionPastDue:
		record.SubscriptionStatus = enums.SubscriptionExpired
		record.Tier = enums.TierFree
		return record, []SideEffect{EffectResetQuotaCounters}, nil
	default:
		return record, nil, ErrIllegalTransition
	}
}

func applyPaymentFailed(record model.Entitlement) (model.Entitlement, []SideEffect, error) {
	switch record.SubscriptionStatus {
	case enums.SubscriptionPastDue:
		return record, nil, nil
	case enums.SubscriptionActive:
		record.SubscriptionStatus = enums.SubscriptionPastDue
		return record, []SideEffect{EffectSendPaymentFailedAlert}, nil
	default:
		return record, nil, ErrIllegalTransition
	}
}

func applyPaymentRecovered(record model.Entitlement) (model.Entitlement, []SideEffect, error) {
	switch record.SubscriptionStatus {
	case enums.SubscriptionActive:
		return record, nil, nil
	case enums.SubscriptionPastDue:
		record.SubscriptionStatus = enums.SubscriptionActive
		return record, nil, nil
	default:
		return record, nil, ErrIllegalTransition
	}
}

func mapProviderStatus(raw string) enums.SubscriptionStatus {
	switch raw {
	case "active", "on_trial":
		return enums.SubscriptionActive
	case "past_due", "unpaid":
		return enums.SubscriptionPastDue
	case "cancelled":
		return enums.SubscriptionCancelled
	default:
		return ""
	}
}

func sameSubscription(current *string, incoming string) bool {
	return current != nil && incoming != "" && *current == incoming
}
