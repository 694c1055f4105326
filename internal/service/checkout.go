package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tentshop/storefront/pkg/errors"

	"github.com/tentshop/storefront/internal/domain"
	"github.com/tentshop/storefront/internal/gateway"
	"github.com/tentshop/storefront/internal/repository"
)

// shippingLineName labels the shipping line on the hosted payment page.
const shippingLineName = "Shipping"

// CheckoutConfig holds store settings the orchestrator prices with.
type CheckoutConfig struct {
	Currency   string
	Shipping   domain.ShippingPolicy
	SuccessURL string
	CancelURL  string
	Timeouts   Timeouts
}

// CheckoutService turns a cart into a pending order with an open payment
// session.
type CheckoutService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	gateway  gateway.Gateway
	tokens   TokenGenerator
	identity TokenValidator
	events   EventPublisher
	cfg      CheckoutConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	gw gateway.Gateway,
	tokens TokenGenerator,
	identity TokenValidator,
	events EventPublisher,
	cfg CheckoutConfig,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		products: products,
		orders:   orders,
		gateway:  gw,
		tokens:   tokens,
		identity: identity,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CheckoutItemInput is one cart entry. ProductRef is a product id or slug.
type CheckoutItemInput struct {
	ProductRef string
	Quantity   int
}

// CheckoutInput holds the parameters for a checkout. Prices are never
// accepted from the client.
type CheckoutInput struct {
	Items           []CheckoutItemInput
	ShippingCountry string
	CustomerEmail   string
	AuthToken       string
}

// CheckoutResult is what the client needs to continue to payment.
type CheckoutResult struct {
	URL        string `json:"url"`
	GuestToken string `json:"guest_token"`
	OrderID    string `json:"order_id"`
}

type pricedLine struct {
	product  *domain.Product
	quantity int
}

// CreateCheckout validates and prices the cart, opens a payment session and
// persists the pending order. Nothing is written unless every step before
// persistence succeeded.
func (s *CheckoutService) CreateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if len(input.Items) == 0 {
		return nil, apperrors.InvalidInput("cart is empty")
	}

	country := domain.NormalizeCountry(input.ShippingCountry)
	if len(country) != 2 {
		return nil, apperrors.InvalidInput("shipping_country must be a 2-letter country code")
	}
	if !s.cfg.Shipping.Ships(country) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("shipping to %s is not available", country))
	}

	lines, err := s.resolveCart(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	userID, email, err := s.buyer(ctx, input)
	if err != nil {
		return nil, err
	}

	guestToken, err := s.tokens.Generate()
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("generate guest token: %w", err))
	}

	now := s.now()
	order := &domain.Order{
		ID:                uuid.NewString(),
		UserID:            userID,
		CustomerEmail:     email,
		Currency:          s.cfg.Currency,
		Status:            domain.OrderStatusPending,
		ShippingCountry:   country,
		ShippingCostCents: s.cfg.Shipping.Cost(country),
		GuestAccessToken:  guestToken,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	order.Items = make([]domain.LineItem, len(lines))
	for i, l := range lines {
		item := domain.LineItem{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			ProductID:      l.product.ID,
			ProductName:    l.product.Name,
			Quantity:       l.quantity,
			UnitPriceCents: l.product.PriceCents,
		}
		item.TotalCents = item.LineTotal()
		order.Items[i] = item
	}
	order.AmountCents = order.SubtotalCents() + order.ShippingCostCents

	session, err := s.openSession(ctx, order)
	if err != nil {
		return nil, err
	}
	order.SessionID = session.ID

	if err := s.persist(ctx, order); err != nil {
		return nil, err
	}
	checkoutsCreated.Inc()

	if err := s.events.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout created",
		slog.String("order_id", order.ID),
		slog.String("session_id", order.SessionID),
		slog.Int64("amount_cents", order.AmountCents),
		slog.Bool("guest", order.UserID == nil),
	)

	return &CheckoutResult{
		URL:        session.URL,
		GuestToken: guestToken,
		OrderID:    order.ID,
	}, nil
}

// resolveCart loads every referenced product and checks it can be sold.
// Stock is checked against the total quantity per product across lines.
func (s *CheckoutService) resolveCart(ctx context.Context, items []CheckoutItemInput) ([]pricedLine, error) {
	lines := make([]pricedLine, 0, len(items))
	wanted := make(map[string]int, len(items))
	byID := make(map[string]*domain.Product, len(items))

	for i, item := range items {
		ref := strings.TrimSpace(item.ProductRef)
		if ref == "" {
			return nil, apperrors.InvalidInput(fmt.Sprintf("items[%d]: product is required", i))
		}
		if item.Quantity < 1 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("items[%d]: quantity must be at least 1", i))
		}

		product, err := s.resolveProduct(ctx, ref)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.InvalidInput(fmt.Sprintf("product %q does not exist", ref))
			}
			return nil, storeError(err, "product")
		}
		if !product.Active {
			return nil, apperrors.InvalidInput(fmt.Sprintf("product %q is not available", ref))
		}
		if !strings.EqualFold(product.Currency, s.cfg.Currency) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("product %q is not sold in %s", ref, s.cfg.Currency))
		}

		wanted[product.ID] += item.Quantity
		byID[product.ID] = product
		lines = append(lines, pricedLine{product: product, quantity: item.Quantity})
	}

	for id, qty := range wanted {
		if p := byID[id]; !p.HasStock(qty) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("insufficient stock for %q", p.Name))
		}
	}

	return lines, nil
}

func (s *CheckoutService) resolveProduct(ctx context.Context, ref string) (*domain.Product, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeouts.Store)
	defer cancel()
	return s.products.ResolveProduct(ctx, ref)
}

// buyer attaches the account behind a valid access token; anyone else
// checks out as a guest with the email they supplied.
func (s *CheckoutService) buyer(ctx context.Context, input CheckoutInput) (*string, string, error) {
	if input.AuthToken != "" && s.identity != nil {
		claims, err := s.identity.Validate(input.AuthToken)
		if err == nil {
			userID := claims.UserID
			email := claims.Email
			if email == "" {
				email = strings.TrimSpace(input.CustomerEmail)
			}
			if email == "" {
				return nil, "", apperrors.InvalidInput("customer_email is required")
			}
			return &userID, email, nil
		}
		s.logger.DebugContext(ctx, "checkout with invalid access token, continuing as guest",
			slog.String("error", err.Error()),
		)
	}

	email := strings.TrimSpace(input.CustomerEmail)
	if email == "" {
		return nil, "", apperrors.InvalidInput("customer_email is required")
	}
	return nil, email, nil
}

func (s *CheckoutService) openSession(ctx context.Context, order *domain.Order) (*gateway.Session, error) {
	items := make([]gateway.LineItem, 0, len(order.Items)+1)
	for _, li := range order.Items {
		items = append(items, gateway.LineItem{
			Name:            li.ProductName,
			UnitAmountCents: li.UnitPriceCents,
			Quantity:        li.Quantity,
		})
	}
	if order.ShippingCostCents > 0 {
		items = append(items, gateway.LineItem{
			Name:            shippingLineName,
			UnitAmountCents: order.ShippingCostCents,
			Quantity:        1,
		})
	}

	gctx, cancel := withTimeout(ctx, s.cfg.Timeouts.Gateway)
	defer cancel()

	session, err := s.gateway.CreateSession(gctx, &gateway.CreateSessionInput{
		OrderID:       order.ID,
		Currency:      order.Currency,
		CustomerEmail: order.CustomerEmail,
		Items:         items,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
		// The guest token grants read access to the order and stays out of
		// the processor's records.
		Metadata: map[string]string{
			"order_id": order.ID,
		},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to open payment session",
			slog.String("order_id", order.ID),
			slog.String("gateway", s.gateway.Name()),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable(fmt.Errorf("create payment session: %w", err))
	}

	return session, nil
}

// persist stores the order. A failure here leaves a live payment session
// without an order, so it is logged as a consistency error and the session
// is expired on a best-effort basis.
func (s *CheckoutService) persist(ctx context.Context, order *domain.Order) error {
	sctx, cancel := withTimeout(ctx, s.cfg.Timeouts.Store)
	err := s.orders.Create(sctx, order)
	cancel()
	if err == nil {
		return nil
	}

	checkoutConsistencyErrors.Inc()
	s.logger.ErrorContext(ctx, "checkout consistency error",
		slog.String("order_id", order.ID),
		slog.String("session_id", order.SessionID),
		slog.Any("product_ids", order.ProductIDs()),
		slog.String("error", err.Error()),
	)

	gctx, gcancel := withTimeout(context.WithoutCancel(ctx), s.cfg.Timeouts.Gateway)
	defer gcancel()
	if xerr := s.gateway.ExpireSession(gctx, order.SessionID); xerr != nil {
		s.logger.ErrorContext(ctx, "failed to expire orphaned payment session",
			slog.String("order_id", order.ID),
			slog.String("session_id", order.SessionID),
			slog.String("error", xerr.Error()),
		)
	}

	return apperrors.Internal(fmt.Errorf("persist order %s: %w", order.ID, err))
}
