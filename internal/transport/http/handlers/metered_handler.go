package handlers

import (
	"errors"
	"net/http"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	identitysvc "github.com/ecojiaflow/ecolojia-backend/internal/services/identity"
	quotasvc "github.com/ecojiaflow/ecolojia-backend/internal/services/quota"
	"github.com/ecojiaflow/ecolojia-backend/internal/transport/http/dto"
	httperrors "github.com/ecojiaflow/ecolojia-backend/internal/transport/http/errors"
)

// MeteredHandler fronts the quota-guarded product actions. The actual scan
// scorer and export builder live in other services; this handler's job is the
// admission decision, so it responds with the admission outcome.
type MeteredHandler struct {
	ledger *quotasvc.Ledger
}

func NewMeteredHandler(ledger *quotasvc.Ledger) *MeteredHandler {
	return &MeteredHandler{ledger: ledger}
}

func (h *MeteredHandler) Scan(w http.ResponseWriter, r *http.Request) {
	h.admit(w, r, enums.ResourceScan)
}

func (h *MeteredHandler) AIQuestion(w http.ResponseWriter, r *http.Request) {
	h.admit(w, r, enums.ResourceAIQuestion)
}

func (h *MeteredHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.admit(w, r, enums.ResourceExport)
}

func (h *MeteredHandler) admit(w http.ResponseWriter, r *http.Request, resource enums.ResourceType) {
	id, ok := identitysvc.FromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.ledger == nil {
		writeInternal(w, "QUOTA_SERVICE_UNAVAILABLE", "quota service is unavailable")
		return
	}

	admission, err := h.ledger.CheckAndConsume(r.Context(), id.UserID, resource)
	if err != nil {
		switch {
		case errors.Is(err, quotasvc.ErrQuotaBusy):
			httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
				Code:    "QUOTA_BUSY",
				Message: "another request holds the quota lease, retry shortly",
			})
		case errors.Is(err, quotasvc.ErrUserNotFound):
			writeNotFound(w, "USER_NOT_FOUND", "unknown user")
		case errors.Is(err, quotasvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to check quota")
		}
		return
	}

	if !admission.Allowed {
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.QuotaError{
			Code:            "QUOTA_EXCEEDED",
			Message:         "quota exhausted for " + string(resource),
			Used:            admission.Used,
			Limit:           admission.Limit,
			ResetAt:         admission.ResetAt.UTC(),
			RequiresUpgrade: admission.RequiresUpgrade,
		})
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AdmissionResponse{
		Resource:  string(resource),
		Used:      admission.Used,
		Limit:     admission.Limit,
		Remaining: admission.Remaining,
		ResetAt:   admission.ResetAt.UTC(),
	})
}
