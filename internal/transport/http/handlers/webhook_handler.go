package handlers

import (
	"errors"
	"io"
	"net/http"

	webhooksvc "github.com/ecojiaflow/ecolojia-backend/internal/services/webhooks"
	"github.com/ecojiaflow/ecolojia-backend/internal/transport/http/dto"
	httperrors "github.com/ecojiaflow/ecolojia-backend/internal/transport/http/errors"
)

const signatureHeader = "X-Signature"

type WebhookHandler struct {
	service *webhooksvc.Service
	bodyMax int64
}

func NewWebhookHandler(service *webhooksvc.Service, bodyMax int64) *WebhookHandler {
	if bodyMax <= 0 {
		bodyMax = 1 << 20
	}
	return &WebhookHandler{service: service, bodyMax: bodyMax}
}

// Handle reads the raw body before any decoding: the signature covers the
// exact bytes on the wire. Rejections stay vague so callers cannot probe the
// verifier, and failures return 500 so the provider redelivers.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "WEBHOOK_SERVICE_UNAVAILABLE", "webhook service is unavailable")
		return
	}

	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.bodyMax))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "unreadable request body")
		return
	}

	result, err := h.service.Ingest(r.Context(), rawBody, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, webhooksvc.ErrInvalidSignature), errors.Is(err, webhooksvc.ErrStaleEvent):
			writeUnauthorized(w, "UNAUTHORIZED", "webhook verification failed")
		case errors.Is(err, webhooksvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid webhook payload")
		default:
			httperrors.Write(w, http.StatusInternalServerError, dto.WebhookResponse{Status: "error"})
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookResponse{
		Status:  string(result.Status),
		EventID: result.EventID,
	})
}
