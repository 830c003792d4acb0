package handlers

import (
	"errors"
	"net/http"
	"time"

	pgrepo "github.com/ecojiaflow/ecolojia-backend/internal/repo/postgres"
	entsvc "github.com/ecojiaflow/ecolojia-backend/internal/services/entitlements"
	identitysvc "github.com/ecojiaflow/ecolojia-backend/internal/services/identity"
	"github.com/ecojiaflow/ecolojia-backend/internal/transport/http/dto"
	httperrors "github.com/ecojiaflow/ecolojia-backend/internal/transport/http/errors"
)

type EntitlementsHandler struct {
	service *entsvc.Service
}

func NewEntitlementsHandler(service *entsvc.Service) *EntitlementsHandler {
	return &EntitlementsHandler{service: service}
}

func (h *EntitlementsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id, ok := identitysvc.FromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "ENTITLEMENTS_SERVICE_UNAVAILABLE", "entitlements service is unavailable")
		return
	}

	snapshot, err := h.service.Get(r.Context(), id.UserID)
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrEntitlementNotFound):
			writeNotFound(w, "USER_NOT_FOUND", "unknown user")
		case errors.Is(err, entsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid entitlements request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load entitlements")
		}
		return
	}

	var periodEnd *string
	if snapshot.CurrentPeriodEnd != nil {
		formatted := snapshot.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		periodEnd = &formatted
	}

	httperrors.Write(w, http.StatusOK, dto.EntitlementsResponse{
		UserID:             snapshot.UserID,
		Tier:               string(snapshot.Tier),
		SubscriptionStatus: string(snapshot.SubscriptionStatus),
		PremiumActive:      snapshot.PremiumActive,
		CurrentPeriodEnd:   periodEnd,
	})
}
