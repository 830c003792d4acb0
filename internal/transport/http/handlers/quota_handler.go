package handlers

import (
	"errors"
	"net/http"

	identitysvc "github.com/ecojiaflow/ecolojia-backend/internal/services/identity"
	quotasvc "github.com/ecojiaflow/ecolojia-backend/internal/services/quota"
	"github.com/ecojiaflow/ecolojia-backend/internal/transport/http/dto"
	httperrors "github.com/ecojiaflow/ecolojia-backend/internal/transport/http/errors"
)

type QuotaHandler struct {
	ledger *quotasvc.Ledger
}

func NewQuotaHandler(ledger *quotasvc.Ledger) *QuotaHandler {
	return &QuotaHandler{ledger: ledger}
}

func (h *QuotaHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id, ok := identitysvc.FromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.ledger == nil {
		writeInternal(w, "QUOTA_SERVICE_UNAVAILABLE", "quota service is unavailable")
		return
	}

	status, err := h.ledger.GetStatus(r.Context(), id.UserID)
	if err != nil {
		switch {
		case errors.Is(err, quotasvc.ErrUserNotFound):
			writeNotFound(w, "USER_NOT_FOUND", "unknown user")
		case errors.Is(err, quotasvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid quota request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load quota")
		}
		return
	}

	resources := make(map[string]dto.ResourceQuotaPayload, len(status))
	for resource, admission := range status {
		resources[string(resource)] = dto.ResourceQuotaPayload{
			Used:      admission.Used,
			Limit:     admission.Limit,
			Remaining: admission.Remaining,
			ResetAt:   admission.ResetAt.UTC(),
		}
	}

	httperrors.Write(w, http.StatusOK, dto.QuotaStatusResponse{
		UserID:    id.UserID,
		Resources: resources,
	})
}
