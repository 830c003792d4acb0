package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QuotaError is the denial body for metered endpoints. ResetAt tells the
// client when the counter rolls over; RequiresUpgrade distinguishes a plan
// ceiling from a transient condition.
type QuotaError struct {
	Code            string    `json:"code"`
	Message         string    `json:"message"`
	Used            int       `json:"used"`
	Limit           int       `json:"limit"`
	ResetAt         time.Time `json:"reset_at"`
	RequiresUpgrade bool      `json:"requires_upgrade"`
}

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
