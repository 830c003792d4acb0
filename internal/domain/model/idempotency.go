package model

import "time"

type IdempotencyRecord struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
	Outcome     string    `json:"outcome"`
}
