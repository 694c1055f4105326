package domain

import "time"

// Order status constants. Pending is the only non-terminal status.
const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusCanceled = "canceled"
	OrderStatusFailed   = "failed"
)

// Order is a checkout attempt tied to exactly one payment session.
type Order struct {
	ID                 string     `json:"id"`
	UserID             *string    `json:"user_id,omitempty"`
	CustomerEmail      string     `json:"customer_email"`
	SessionID          string     `json:"session_id"`
	AmountCents        int64      `json:"amount_cents"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	ShippingCountry    string     `json:"shipping_country"`
	ShippingCostCents  int64      `json:"shipping_cost_cents"`
	GuestAccessToken   string     `json:"-"`
	StockDecrementedAt *time.Time `json:"stock_decremented_at,omitempty"`
	Items              []LineItem `json:"items"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsTerminalStatus reports whether status can never change again.
func IsTerminalStatus(status string) bool {
	return status == OrderStatusPaid || status == OrderStatusCanceled || status == OrderStatusFailed
}

// IsTerminal reports whether the order has left pending.
func (o *Order) IsTerminal() bool {
	return IsTerminalStatus(o.Status)
}

// CanTransitionTo checks if the order can move to target. Only pending
// orders move, and only to a terminal status.
func (o *Order) CanTransitionTo(target string) bool {
	return o.Status == OrderStatusPending && IsTerminalStatus(target)
}

// SubtotalCents sums the line totals.
func (o *Order) SubtotalCents() int64 {
	var sum int64
	for i := range o.Items {
		sum += o.Items[i].TotalCents
	}
	return sum
}

// ProductIDs returns the product of each line item, in line order.
func (o *Order) ProductIDs() []string {
	ids := make([]string, len(o.Items))
	for i := range o.Items {
		ids[i] = o.Items[i].ProductID
	}
	return ids
}
