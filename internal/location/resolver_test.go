package location

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"valumatch/server/internal/models"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Nueva Andalucía", "nueva andalucia"},
		{"  NUEVA   ANDALUCIA ", "nueva andalucia"},
		{"El-Paraíso", "el paraiso"},
		{"Calle Mayor, 4", "calle mayor 4"},
		{"", ""},
		{"   ", ""},
		{"São João", "sao joao"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestResolve(t *testing.T) {
	p := &models.Property{
		Street:       "Calle Mayor, 4",
		Urbanization: "El Paraíso",
		City:         "Estepona",
		Province:     "Málaga",
	}
	h := Resolve(p)
	assert.Equal(t, "calle mayor 4", h.Street)
	assert.Equal(t, "el paraiso", h.Urbanization)
	assert.Empty(t, h.Suburb)
	assert.Equal(t, "estepona", h.City)
	assert.Equal(t, "malaga", h.Province)
}

func TestHierarchyAt(t *testing.T) {
	h := Hierarchy{Urbanization: "el paraiso", City: "estepona", Province: "malaga"}

	_, ok := h.At(TierStreet)
	assert.False(t, ok)

	loc, ok := h.At(TierUrbanization)
	assert.True(t, ok)
	assert.Equal(t, MicroLocation{Tier: TierUrbanization, Name: "el paraiso"}, loc)

	city, ok := h.At(TierCity)
	assert.True(t, ok)
	assert.Equal(t, "city:estepona", city.Key())
}

func TestMicroLocationEqual_TierBound(t *testing.T) {
	street := MicroLocation{Tier: TierStreet, Name: "el paraiso"}
	urb := MicroLocation{Tier: TierUrbanization, Name: "el paraiso"}

	// Same name at different tiers is a different place.
	assert.False(t, street.Equal(urb))
	assert.True(t, urb.Equal(MicroLocation{Tier: TierUrbanization, Name: "el paraiso"}))
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "street", TierStreet.String())
	assert.Equal(t, "urbanization", TierUrbanization.String())
	assert.Equal(t, "suburb", TierSuburb.String())
	assert.Equal(t, "city", TierCity.String())
	assert.Equal(t, "unknown", Tier(42).String())
}
