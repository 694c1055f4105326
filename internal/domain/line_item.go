package domain

// LineItem is one cart entry frozen at checkout time. UnitPriceCents is a
// snapshot of the catalog price and never follows later price changes.
type LineItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

// LineTotal returns UnitPriceCents * Quantity.
func (li *LineItem) LineTotal() int64 {
	return li.UnitPriceCents * int64(li.Quantity)
}
