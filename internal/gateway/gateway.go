// Package gateway abstracts the hosted payment page the buyer is redirected
// to. The processor is authoritative for whether a session was paid.
package gateway

import (
	"context"
)

// SessionStatus is the processor's view of a checkout session.
type SessionStatus string

const (
	// SessionOpen means the buyer has not finished paying yet.
	SessionOpen SessionStatus = "open"
	// SessionPaid means payment was captured.
	SessionPaid SessionStatus = "paid"
	// SessionCanceled means the buyer abandoned the session.
	SessionCanceled SessionStatus = "canceled"
	// SessionExpired means the session timed out or was expired by us.
	SessionExpired SessionStatus = "expired"
	// SessionFailed means the session ended without a successful payment.
	SessionFailed SessionStatus = "failed"
)

// IsFinal reports whether the processor will not change the status again.
func (s SessionStatus) IsFinal() bool {
	return s != SessionOpen
}

// LineItem is one priced line shown on the hosted payment page.
type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int
}

// CreateSessionInput holds the parameters for opening a checkout session.
type CreateSessionInput struct {
	// OrderID doubles as idempotency key and client reference.
	OrderID       string
	Currency      string
	CustomerEmail string
	Items         []LineItem
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// TotalCents sums every line.
func (in *CreateSessionInput) TotalCents() int64 {
	var total int64
	for _, li := range in.Items {
		total += li.UnitAmountCents * int64(li.Quantity)
	}
	return total
}

// Session is a hosted checkout session.
type Session struct {
	ID          string
	URL         string
	Status      SessionStatus
	AmountTotal int64
	Currency    string
	Metadata    map[string]string
}

// Gateway defines the operations the storefront needs from a payment
// processor.
type Gateway interface {
	// Name returns the gateway name (e.g., "mock", "stripe").
	Name() string

	// CreateSession opens a hosted checkout session and returns its
	// redirect URL.
	CreateSession(ctx context.Context, input *CreateSessionInput) (*Session, error)

	// GetSession reports the authoritative status of a session.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ExpireSession closes an open session so it can no longer be paid.
	ExpireSession(ctx context.Context, sessionID string) error
}
