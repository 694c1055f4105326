package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/tentshop/storefront/pkg/errors"

	"github.com/tentshop/storefront/internal/domain"
	"github.com/tentshop/storefront/internal/gateway"
	"github.com/tentshop/storefront/internal/repository"
)

// ReconcileService applies the payment gateway's verdict to orders.
type ReconcileService struct {
	orders   repository.OrderRepository
	gateway  gateway.Gateway
	events   EventPublisher
	timeouts Timeouts
	logger   *slog.Logger
}

// NewReconcileService creates a new reconcile service.
func NewReconcileService(
	orders repository.OrderRepository,
	gw gateway.Gateway,
	events EventPublisher,
	timeouts Timeouts,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		orders:   orders,
		gateway:  gw,
		events:   events,
		timeouts: timeouts,
		logger:   logger,
	}
}

// ReconcileResult is the order's status after reconciliation.
type ReconcileResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// orderStatusFor maps a gateway session status onto the order status it
// settles to. It reports false while the session is still open.
func orderStatusFor(s gateway.SessionStatus) (string, bool) {
	if !s.IsFinal() {
		return "", false
	}
	switch s {
	case gateway.SessionPaid:
		return domain.OrderStatusPaid, true
	case gateway.SessionCanceled, gateway.SessionExpired:
		return domain.OrderStatusCanceled, true
	default:
		return domain.OrderStatusFailed, true
	}
}

// Reconcile asks the gateway for the session's authoritative status and
// moves the matching pending order to it. Terminal orders are never
// changed, so the call is safe to repeat.
func (s *ReconcileService) Reconcile(ctx context.Context, sessionID string) (*ReconcileResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session_id is required")
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	order, err := s.getOrder(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	target, settled := orderStatusFor(session.Status)

	if !order.CanTransitionTo(target) {
		switch {
		case order.IsTerminal() && settled && target != order.Status:
			s.warnConflict(ctx, order, session.Status)
		case !settled:
			s.logger.InfoContext(ctx, "payment session still open",
				slog.String("order_id", order.ID),
				slog.String("session_id", sessionID),
			)
		}
		return &ReconcileResult{OrderID: order.ID, Status: order.Status}, nil
	}

	tctx, cancel := withTimeout(ctx, s.timeouts.Store)
	applied, err := s.orders.TransitionFromPending(tctx, order.ID, target)
	cancel()
	if err != nil {
		return nil, storeError(fmt.Errorf("transition order %s to %s: %w", order.ID, target, err), "order")
	}

	if !applied {
		// Another reconciliation got there first; report what it stored.
		current, err := s.getOrder(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if current.Status != target {
			s.warnConflict(ctx, current, session.Status)
		}
		return &ReconcileResult{OrderID: current.ID, Status: current.Status}, nil
	}

	order.Status = target
	orderTransitions.WithLabelValues(target).Inc()

	if err := s.events.PublishOrderStatusChanged(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order status event",
			slog.String("order_id", order.ID),
			slog.String("status", target),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order reconciled",
		slog.String("order_id", order.ID),
		slog.String("session_id", sessionID),
		slog.String("status", target),
	)

	return &ReconcileResult{OrderID: order.ID, Status: target}, nil
}

func (s *ReconcileService) getSession(ctx context.Context, sessionID string) (*gateway.Session, error) {
	gctx, cancel := withTimeout(ctx, s.timeouts.Gateway)
	defer cancel()

	session, err := s.gateway.GetSession(gctx, sessionID)
	if err != nil {
		// A session id the gateway rejects as malformed cannot name any
		// session, so it is reported like an unknown one.
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrInvalidInput) {
			return nil, apperrors.NotFound("payment session")
		}
		s.logger.ErrorContext(ctx, "failed to query payment session",
			slog.String("session_id", sessionID),
			slog.String("gateway", s.gateway.Name()),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable(fmt.Errorf("get payment session: %w", err))
	}
	return session, nil
}

func (s *ReconcileService) getOrder(ctx context.Context, sessionID string) (*domain.Order, error) {
	sctx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()

	order, err := s.orders.GetBySessionID(sctx, sessionID)
	if err != nil {
		return nil, storeError(err, "order")
	}
	return order, nil
}

func (s *ReconcileService) warnConflict(ctx context.Context, order *domain.Order, gatewayStatus gateway.SessionStatus) {
	terminalStatusConflicts.Inc()
	s.logger.WarnContext(ctx, "gateway status conflicts with terminal order, keeping stored status",
		slog.String("order_id", order.ID),
		slog.String("session_id", order.SessionID),
		slog.String("status", order.Status),
		slog.String("gateway_status", string(gatewayStatus)),
	)
}
