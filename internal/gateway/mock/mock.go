// Package mock is an in-memory payment gateway for development and tests.
// Sessions start open. SetStatus settles them explicitly; with WithAutoPay
// the first lookup of an open session settles it as paid, standing in for a
// buyer who finished the hosted page before returning.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/tentshop/storefront/pkg/errors"

	"github.com/tentshop/storefront/internal/gateway"
)

const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Gateway is a mock payment gateway.
type Gateway struct {
	mu       sync.Mutex
	sessions map[string]*gateway.Session
	byOrder  map[string]string
	autoPay  bool
}

// Option configures a mock gateway.
type Option func(*Gateway)

// WithAutoPay marks an open session paid the first time it is looked up.
func WithAutoPay() Option {
	return func(g *Gateway) { g.autoPay = true }
}

// NewGateway creates an empty mock gateway.
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		sessions: make(map[string]*gateway.Session),
		byOrder:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the gateway name.
func (g *Gateway) Name() string {
	return "mock"
}

// CreateSession records an open session whose URL sends the buyer straight
// to the success page. Repeating a call for the same order returns the
// first session.
func (g *Gateway) CreateSession(_ context.Context, input *gateway.CreateSessionInput) (*gateway.Session, error) {
	if len(input.Items) == 0 {
		return nil, apperrors.InvalidInput("checkout session needs at least one line item")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byOrder[input.OrderID]; ok {
		s := *g.sessions[id]
		return &s, nil
	}

	id := "cs_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	metadata := make(map[string]string, len(input.Metadata))
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	s := &gateway.Session{
		ID:          id,
		URL:         strings.ReplaceAll(input.SuccessURL, sessionPlaceholder, id),
		Status:      gateway.SessionOpen,
		AmountTotal: input.TotalCents(),
		Currency:    strings.ToUpper(input.Currency),
		Metadata:    metadata,
	}
	g.sessions[id] = s
	g.byOrder[input.OrderID] = id

	out := *s
	return &out, nil
}

// GetSession returns the recorded session.
func (g *Gateway) GetSession(_ context.Context, sessionID string) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, apperrors.NotFound("payment session")
	}
	if g.autoPay && s.Status == gateway.SessionOpen {
		s.Status = gateway.SessionPaid
	}
	out := *s
	return &out, nil
}

// ExpireSession marks a session expired unless it was already paid.
func (g *Gateway) ExpireSession(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return apperrors.NotFound("payment session")
	}
	if s.Status == gateway.SessionPaid {
		return apperrors.Conflict("payment session already paid")
	}
	s.Status = gateway.SessionExpired
	return nil
}

// SetStatus overrides the status of a recorded session.
func (g *Gateway) SetStatus(sessionID string, status gateway.SessionStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if ok {
		s.Status = status
	}
	return ok
}
