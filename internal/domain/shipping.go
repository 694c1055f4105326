package domain

import "strings"

// ShippingPolicy prices delivery per destination country. Home countries
// ship free; every other allowed country pays the flat fee.
type ShippingPolicy struct {
	home    map[string]struct{}
	allowed map[string]struct{}
	flatFee int64
}

// NewShippingPolicy builds a policy. An empty allowed list means any
// country may be shipped to.
func NewShippingPolicy(homeCountries, allowedCountries []string, flatFeeCents int64) ShippingPolicy {
	return ShippingPolicy{
		home:    countrySet(homeCountries),
		allowed: countrySet(allowedCountries),
		flatFee: flatFeeCents,
	}
}

func countrySet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c = NormalizeCountry(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// NormalizeCountry trims and upper-cases an ISO 3166-1 alpha-2 code.
func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Ships reports whether orders may be delivered to country.
func (p ShippingPolicy) Ships(country string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	country = NormalizeCountry(country)
	if _, ok := p.home[country]; ok {
		return true
	}
	_, ok := p.allowed[country]
	return ok
}

// Cost returns the shipping charge in cents for country.
func (p ShippingPolicy) Cost(country string) int64 {
	if _, ok := p.home[NormalizeCountry(country)]; ok {
		return 0
	}
	return p.flatFee
}
