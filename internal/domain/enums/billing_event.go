package enums

type BillingEventKind string

const (
	BillingSubscriptionCreated   BillingEventKind = "subscription_created"
	BillingSubscriptionUpdated   BillingEventKind = "subscription_updated"
	BillingSubscriptionCancelled BillingEventKind = "subscription_cancelled"
	BillingSubscriptionResumed   BillingEventKind = "subscription_resumed"
	BillingSubscriptionExpired   BillingEventKind = "subscription_expired"
	BillingPaymentFailed         BillingEventKind = "subscription_payment_failed"
	BillingPaymentRecovered      BillingEventKind = "subscription_payment_success"

	// BillingUnknown is kept for forward compatibility with provider event
	// names this version does not handle.
	BillingUnknown BillingEventKind = "unknown"
)

func ParseBillingEventKind(raw string) BillingEventKind {
	switch BillingEventKind(raw) {
	case BillingSubscriptionCreated,
		BillingSubscriptionUpdated,
		BillingSubscriptionCancelled,
		BillingSubscriptionResumed,
		BillingSubscriptionExpired,
		BillingPaymentFailed,
		BillingPaymentRecovered:
		return BillingEventKind(raw)
	default:
		return BillingUnknown
	}
}
