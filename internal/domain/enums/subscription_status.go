package enums

type SubscriptionStatus string

const (
	SubscriptionNone      SubscriptionStatus = "none"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionNone, SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled, SubscriptionExpired:
		return true
	default:
		return false
	}
}

// Premium-capable statuses: a cancelled subscription keeps premium until period end.
func (s SubscriptionStatus) AllowsPremium() bool {
	switch s {
	case SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled:
		return true
	default:
		return false
	}
}
