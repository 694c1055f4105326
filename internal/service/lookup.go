package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/tentshop/storefront/pkg/errors"

	"github.com/tentshop/storefront/internal/domain"
	"github.com/tentshop/storefront/internal/repository"
	"github.com/tentshop/storefront/internal/token"
)

// LookupService serves read-only order views to guest token holders.
type LookupService struct {
	orders   repository.OrderRepository
	timeouts Timeouts
	logger   *slog.Logger
}

// NewLookupService creates a new lookup service.
func NewLookupService(orders repository.OrderRepository, timeouts Timeouts, logger *slog.Logger) *LookupService {
	return &LookupService{orders: orders, timeouts: timeouts, logger: logger}
}

// OrderSnapshot is the buyer-facing view of an order.
type OrderSnapshot struct {
	OrderID           string             `json:"order_id"`
	Status            string             `json:"status"`
	AmountCents       int64              `json:"amount_cents"`
	Currency          string             `json:"currency"`
	ShippingCountry   string             `json:"shipping_country"`
	ShippingCostCents int64              `json:"shipping_cost_cents"`
	CreatedAt         time.Time          `json:"created_at"`
	CustomerEmail     string             `json:"customer_email"`
	Items             []SnapshotLineItem `json:"items"`
}

// SnapshotLineItem is one line of an OrderSnapshot.
type SnapshotLineItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

func snapshotOf(o *domain.Order) *OrderSnapshot {
	items := make([]SnapshotLineItem, len(o.Items))
	for i, li := range o.Items {
		items[i] = SnapshotLineItem{
			ProductID:      li.ProductID,
			ProductName:    li.ProductName,
			Quantity:       li.Quantity,
			UnitPriceCents: li.UnitPriceCents,
			TotalCents:     li.TotalCents,
		}
	}
	return &OrderSnapshot{
		OrderID:           o.ID,
		Status:            o.Status,
		AmountCents:       o.AmountCents,
		Currency:          o.Currency,
		ShippingCountry:   o.ShippingCountry,
		ShippingCostCents: o.ShippingCostCents,
		CreatedAt:         o.CreatedAt,
		CustomerEmail:     o.CustomerEmail,
		Items:             items,
	}
}

// GetByGuestToken returns the order the token grants access to. Unknown
// tokens get the same not-found answer as any missing order.
func (s *LookupService) GetByGuestToken(ctx context.Context, guestToken string) (*OrderSnapshot, error) {
	if !token.Valid(guestToken) {
		return nil, apperrors.InvalidInput("malformed order token")
	}

	sctx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()

	order, err := s.orders.GetByGuestToken(sctx, guestToken)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to look up order by guest token",
				slog.String("error", err.Error()),
			)
		}
		return nil, storeError(err, "order")
	}

	return snapshotOf(order), nil
}
