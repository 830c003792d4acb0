package dto

type WebhookResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id,omitempty"`
}

type EntitlementsResponse struct {
	UserID             int64   `json:"user_id"`
	Tier               string  `json:"tier"`
	SubscriptionStatus string  `json:"subscription_status"`
	PremiumActive      bool    `json:"premium_active"`
	CurrentPeriodEnd   *string `json:"current_period_end"`
}
