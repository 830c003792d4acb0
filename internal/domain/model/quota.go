package model

import (
	"time"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
)

// UnlimitedLimit is the sentinel for "no bound" quota limits.
const UnlimitedLimit = -1

type QuotaCounter struct {
	UserID        int64              `json:"user_id"`
	ResourceType  enums.ResourceType `json:"resource_type"`
	PeriodKind    enums.PeriodKind   `json:"period_kind"`
	Used          int                `json:"used"`
	PeriodResetAt time.Time          `json:"period_reset_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type Admission struct {
	Allowed         bool               `json:"allowed"`
	ResourceType    enums.ResourceType `json:"resource_type"`
	Used            int                `json:"used"`
	Limit           int                `json:"limit"`
	Remaining       int                `json:"remaining"`
	ResetAt         time.Time          `json:"reset_at"`
	RequiresUpgrade bool               `json:"requires_upgrade,omitempty"`
}
