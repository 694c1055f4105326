package repository

import (
	"context"

	"github.com/tentshop/storefront/internal/domain"
)

// ProductRepository reads the catalog.
type ProductRepository interface {
	// ResolveProduct finds a product by UUID or, failing that, by
	// normalized slug. Inactive products are returned too; callers decide
	// whether they are purchasable.
	ResolveProduct(ctx context.Context, ref string) (*domain.Product, error)
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// Create inserts a new order and its line items atomically.
	Create(ctx context.Context, order *domain.Order) error

	// GetBySessionID retrieves the order opened for a payment session,
	// including items.
	GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error)

	// GetByGuestToken retrieves the order a guest access token grants,
	// including items.
	GetByGuestToken(ctx context.Context, token string) (*domain.Order, error)

	// TransitionFromPending moves a pending order to a terminal status. When
	// the target is paid, stock for every line item is decremented in the
	// same transaction. It reports false, writing nothing, if the order had
	// already left pending.
	TransitionFromPending(ctx context.Context, orderID, status string) (bool, error)
}
