package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Trekker 2P Ultralight", "trekker-2p-ultralight"},
		{"  Tente Légère  ", "tente-legere"},
		{"trekker-2p", "trekker-2p"},
		{"Große Zelt!!", "grosse-zelt"},
		{"--a--b--", "a-b"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

