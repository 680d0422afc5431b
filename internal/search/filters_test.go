package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/dinescout/internal/model"
)

func TestFilters_Match(t *testing.T) {
	rating := 4.2
	open := true
	closed := false
	base := model.Restaurant{
		PlaceID:          "p",
		FormattedAddress: "Calle de Fuencarral 43, Malasaña, Madrid",
		Neighborhood:     "Universidad",
		PriceLevel:       model.PriceLevelModerate,
		Rating:           &rating,
		OpenNow:          &open,
	}
	unrated := base
	unrated.Rating = nil
	unknownHours := base
	unknownHours.OpenNow = nil

	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		filters Filters
		rec     model.Restaurant
		want    bool
	}{
		{"no filters", Filters{}, base, true},
		{"price included", Filters{PriceLevels: []model.PriceLevel{model.PriceLevelInexpensive, model.PriceLevelModerate}}, base, true},
		{"price excluded", Filters{PriceLevels: []model.PriceLevel{model.PriceLevelExpensive}}, base, false},
		{"neighborhood in address", Filters{Neighborhood: "malasaña"}, base, true},
		{"neighborhood field", Filters{Neighborhood: "UNIVERSIDAD"}, base, true},
		{"neighborhood miss", Filters{Neighborhood: "Retiro"}, base, false},
		{"rating at threshold", Filters{MinRating: f(4.2)}, base, true},
		{"rating below", Filters{MinRating: f(4.5)}, base, false},
		{"unrated excluded", Filters{MinRating: f(0)}, unrated, false},
		{"open now", Filters{OpenNow: &open}, base, true},
		{"closed wanted", Filters{OpenNow: &closed}, base, false},
		{"unknown hours excluded", Filters{OpenNow: &open}, unknownHours, false},
		{"all anded", Filters{Neighborhood: "malasaña", MinRating: f(4), PriceLevels: []model.PriceLevel{model.PriceLevelExpensive}}, base, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Match(tt.rec))
		})
	}
}

func TestFilters_ApplyPreservesOrder(t *testing.T) {
	a, b, c := r("a"), r("b"), r("c")
	a.PriceLevel, b.PriceLevel, c.PriceLevel = model.PriceLevelFree, model.PriceLevelModerate, model.PriceLevelFree

	got := Filters{PriceLevels: []model.PriceLevel{model.PriceLevelFree}}.Apply([]model.Restaurant{a, b, c})
	assert.Equal(t, []string{"a", "c"}, placeIDs(got))
	assert.True(t, Filters{}.Empty())
	assert.False(t, Filters{Neighborhood: "x"}.Empty())
}
