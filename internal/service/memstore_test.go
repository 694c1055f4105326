package service

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/tentshop/storefront/pkg/errors"

	"github.com/tentshop/storefront/internal/domain"
)

// memOrderStore is an OrderRepository that keeps orders and catalog stock in
// memory. TransitionFromPending follows the Postgres repository: the status
// moves only out of pending, and a paid transition subtracts the summed
// quantity per product, never below zero.
type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	stock  map[string]int
}

func newMemOrderStore(stock map[string]int) *memOrderStore {
	s := &memOrderStore{
		orders: make(map[string]*domain.Order),
		stock:  make(map[string]int, len(stock)),
	}
	for id, n := range stock {
		s.stock[id] = n
	}
	return s
}

func cloneOrder(o *domain.Order) *domain.Order {
	out := *o
	out.Items = append([]domain.LineItem(nil), o.Items...)
	return &out
}

func (s *memOrderStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return apperrors.Conflict("order already exists")
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *memOrderStore) GetBySessionID(_ context.Context, sessionID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.SessionID == sessionID {
			return cloneOrder(o), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memOrderStore) GetByGuestToken(_ context.Context, token string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.GuestAccessToken == token {
			return cloneOrder(o), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memOrderStore) TransitionFromPending(_ context.Context, orderID, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending {
		return false, nil
	}

	now := time.Now().UTC()
	o.Status = status
	o.UpdatedAt = now
	if status != domain.OrderStatusPaid {
		return true, nil
	}

	wanted := make(map[string]int)
	for _, li := range o.Items {
		wanted[li.ProductID] += li.Quantity
	}
	for id, qty := range wanted {
		s.stock[id] = max(0, s.stock[id]-qty)
	}
	o.StockDecrementedAt = &now
	return true, nil
}

func (s *memOrderStore) stockOf(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID]
}
