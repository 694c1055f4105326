package http

import (
	"log/slog"
	"net/http"

	"github.com/tentshop/storefront/pkg/httputil"

	"github.com/tentshop/storefront/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.LookupService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.LookupService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// LookupOrder handles GET /api/v1/orders/lookup?token=...
func (h *OrderHandler) LookupOrder(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.GetByGuestToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, snapshot)
}
