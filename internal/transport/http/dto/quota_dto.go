package dto

import "time"

type ResourceQuotaPayload struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type QuotaStatusResponse struct {
	UserID    int64                           `json:"user_id"`
	Resources map[string]ResourceQuotaPayload `json:"resources"`
}

// AdmissionResponse is returned by the metered endpoints when a unit was
// admitted and the action ran.
type AdmissionResponse struct {
	Resource  string    `json:"resource"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
