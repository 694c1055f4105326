package service

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/tentshop/storefront/pkg/errors"

	"github.com/tentshop/storefront/internal/auth"
	"github.com/tentshop/storefront/internal/domain"
)

// EventPublisher announces order lifecycle changes. Publishing is best
// effort: a failure is logged and never undoes a committed change.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *domain.Order) error
}

// TokenGenerator issues guest access tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// TokenValidator verifies buyer access tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Timeouts bound every call to an external dependency.
type Timeouts struct {
	Gateway time.Duration
	Store   time.Duration
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storeError keeps not-found as is and turns anything else into a 503 so
// the caller fails closed.
func storeError(err error, resource string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound(resource)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.ServiceUnavailable(err)
}
