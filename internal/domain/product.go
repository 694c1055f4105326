package domain

// Product is a purchasable catalog entry.
type Product struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Stock      int    `json:"stock"`
	Active     bool   `json:"active"`
}

// HasStock reports whether qty units are on hand.
func (p *Product) HasStock(qty int) bool {
	return p.Stock >= qty
}
