package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Nike", "nike"},
		{"  ADIDAS  Originals ", "adidas originals"},
		{"Marrón", "marron"},
		{"Niños", "ninos"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.in))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("adidas", "Adidas"))
	assert.True(t, Equal("Lévi's", "levi's"))
	assert.False(t, Equal("Nike", "Puma"))
}
