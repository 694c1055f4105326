package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/tentshop/storefront/pkg/errors"
	"github.com/tentshop/storefront/pkg/httputil"
	"github.com/tentshop/storefront/pkg/validator"

	"github.com/tentshop/storefront/internal/gateway/stripe"
	"github.com/tentshop/storefront/internal/service"
)

// PaymentHandler handles HTTP requests for payment endpoints.
type PaymentHandler struct {
	service  *service.ReconcileService
	verifier *stripe.WebhookVerifier
	logger   *slog.Logger
}

// NewPaymentHandler creates a new payment HTTP handler. verifier may be nil
// when no webhook endpoint is exposed.
func NewPaymentHandler(svc *service.ReconcileService, verifier *stripe.WebhookVerifier, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:  svc,
		verifier: verifier,
		logger:   logger,
	}
}

// ReconcileRequest is the JSON request body for reconciling a session.
type ReconcileRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}

// WebhookAck is returned for every accepted webhook delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
}

// Reconcile handles POST /api/v1/payments/reconcile
func (h *PaymentHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ReconcileRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	result, err := h.service.Reconcile(r.Context(), req.SessionID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// Webhook handles POST /api/v1/payments/webhook
//
// The event only says which session changed. Reconcile still asks the
// gateway for the session's status, so a replayed or reordered delivery
// cannot move an order anywhere the gateway would not.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("unreadable request body"), h.logger)
		return
	}

	event, err := h.verifier.Verify(payload, r.Header.Get(stripe.SignatureHeader))
	if err != nil {
		h.logger.WarnContext(r.Context(), "rejected webhook delivery", slog.String("error", err.Error()))
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid webhook signature"), h.logger)
		return
	}

	if !event.IsCheckoutSession() {
		httputil.WriteData(w, http.StatusOK, WebhookAck{Received: true})
		return
	}

	sessionID, err := event.SessionID()
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("event does not reference a checkout session"), h.logger)
		return
	}

	result, err := h.service.Reconcile(r.Context(), sessionID)
	if err != nil {
		// Sessions opened by another integration on the same account have
		// no order here; acknowledge them so the gateway stops retrying.
		if errors.Is(err, apperrors.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "webhook for unknown session ignored",
				slog.String("event_id", event.ID),
				slog.String("event_type", event.Type),
				slog.String("session_id", sessionID),
			)
			httputil.WriteData(w, http.StatusOK, WebhookAck{Received: true})
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, WebhookAck{Received: true, Status: result.Status})
}
