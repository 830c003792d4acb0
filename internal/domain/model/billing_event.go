package model

import (
	"time"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
)

// BillingEvent is the decoded form of one provider webhook delivery. Webhook
// events are server-to-server: routing is driven by the payload's stated
// subscription id (or user id for the initial create), never by a session.
type BillingEvent struct {
	ID             string
	Kind           enums.BillingEventKind
	CreatedAt      time.Time
	SubscriptionID string
	CustomerID     string
	UserID         int64
	Status         string
	RenewsAt       *time.Time
	EndsAt         *time.Time
}
