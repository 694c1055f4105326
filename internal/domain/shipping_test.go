package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShippingPolicy_Cost(t *testing.T) {
	p := NewShippingPolicy([]string{"BE"}, nil, 1500)

	assert.Equal(t, int64(0), p.Cost("BE"))
	assert.Equal(t, int64(0), p.Cost(" be "))
	assert.Equal(t, int64(1500), p.Cost("NL"))
	assert.Equal(t, int64(1500), p.Cost("DE"))
}

func TestShippingPolicy_Ships(t *testing.T) {
	open := NewShippingPolicy([]string{"BE"}, nil, 1500)
	assert.True(t, open.Ships("US"))

	restricted := NewShippingPolicy([]string{"BE"}, []string{"nl", "LU"}, 1500)
	assert.True(t, restricted.Ships("BE"))
	assert.True(t, restricted.Ships("NL"))
	assert.True(t, restricted.Ships("lu"))
	assert.False(t, restricted.Ships("US"))
}

func TestNormalizeCountry(t *testing.T) {
	assert.Equal(t, "BE", NormalizeCountry(" be"))
	assert.Equal(t, "", NormalizeCountry("  "))
}
