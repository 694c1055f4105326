package http

import (
	"log/slog"
	"net/http"

	"github.com/tentshop/storefront/pkg/httputil"
	"github.com/tentshop/storefront/pkg/middleware"
	"github.com/tentshop/storefront/pkg/validator"

	"github.com/tentshop/storefront/internal/service"
)

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CheckoutItemRequest is one cart line. Either product_id or slug names the
// product; prices are never taken from the client.
type CheckoutItemRequest struct {
	ProductID string `json:"product_id" validate:"omitempty,uuid"`
	Slug      string `json:"slug" validate:"required_without=ProductID,max=200"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=1000"`
}

// CheckoutRequest is the JSON request body for starting a checkout.
type CheckoutRequest struct {
	Items           []CheckoutItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	ShippingCountry string                `json:"shipping_country" validate:"required,len=2"`
	CustomerEmail   string                `json:"customer_email" validate:"omitempty,email,max=254"`
	AuthToken       string                `json:"auth_token"`
}

// ref prefers the product id over the slug.
func (r CheckoutItemRequest) ref() string {
	if r.ProductID != "" {
		return r.ProductID
	}
	return r.Slug
}

// --- Handlers ---

// CreateCheckout handles POST /api/v1/checkout
func (h *CheckoutHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CheckoutRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	items := make([]service.CheckoutItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.CheckoutItemInput{
			ProductRef: item.ref(),
			Quantity:   item.Quantity,
		}
	}

	// A bearer header wins over a token in the body.
	authToken := middleware.BearerToken(r)
	if authToken == "" {
		authToken = req.AuthToken
	}

	result, err := h.service.CreateCheckout(r.Context(), service.CheckoutInput{
		Items:           items,
		ShippingCountry: req.ShippingCountry,
		CustomerEmail:   req.CustomerEmail,
		AuthToken:       authToken,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, result)
}
