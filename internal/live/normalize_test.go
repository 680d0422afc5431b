package live

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/pkg/google"
)

func TestNormalize_Defaults(t *testing.T) {
	c := &Client{region: madrid(t)}

	r, err := c.normalize(google.Place{ID: "p1", DisplayName: google.DisplayName{Text: " Bar Pepe "}}, " Vermut ", "Lavapiés")
	require.NoError(t, err)
	assert.Equal(t, "Bar Pepe", r.Name)
	assert.Equal(t, "vermut", r.SearchQuery)
	assert.Equal(t, "Lavapiés", r.Neighborhood)
	assert.Equal(t, "lavapiés", r.SearchNeighborhood)
	assert.Nil(t, r.Rating)
	assert.Nil(t, r.Cuisine)
	assert.Nil(t, r.Location)
	assert.Nil(t, r.OpenNow)
	assert.Equal(t, model.PriceLevelUnspecified, r.PriceLevel)
	assert.Equal(t, []string{}, r.Types)
	assert.Equal(t, []string{}, r.Photos)
}

func TestNormalize_FullPlace(t *testing.T) {
	c := &Client{region: madrid(t)}
	rating := 7.5 // out of range, treated as absent
	open := false
	p := google.Place{
		ID:              "p2",
		DisplayName:     google.DisplayName{Text: "Sushi Bar"},
		Location:        &google.LatLng{Latitude: 40.43, Longitude: -3.70},
		Rating:          &rating,
		UserRatingCount: -3,
		PriceLevel:      "PRICE_LEVEL_EXPENSIVE",
		PriceRange: &google.PriceRange{
			StartPrice: &google.Money{CurrencyCode: "EUR", Units: "30"},
			EndPrice:   &google.Money{CurrencyCode: "EUR", Units: "50"},
		},
		Types:               []string{"restaurant", "japanese_restaurant"},
		Photos:              []google.Photo{{Name: "places/p2/photos/1"}, {Name: ""}},
		RegularOpeningHours: &google.OpeningHours{OpenNow: &open, WeekdayDescriptions: []string{"lunes: cerrado"}},
		AddressComponents: []google.AddressComponent{
			{LongText: "Centro", Types: []string{"sublocality_level_1"}},
			{LongText: "Chamberí", Types: []string{"neighborhood", "political"}},
		},
	}

	r, err := c.normalize(p, "sushi", "Malasaña")
	require.NoError(t, err)
	assert.Nil(t, r.Rating)
	assert.Equal(t, 0, r.UserRatingsTotal)
	assert.Equal(t, "japanese", r.CuisineOrEmpty())
	assert.Equal(t, "Chamberí", r.Neighborhood)
	assert.Equal(t, "malasaña", r.SearchNeighborhood)
	assert.Equal(t, model.PriceLevelExpensive, r.PriceLevel)
	require.NotNil(t, r.MinPrice)
	assert.InDelta(t, 30.0, *r.MinPrice, 1e-9)
	assert.InDelta(t, 50.0, *r.MaxPrice, 1e-9)
	assert.Equal(t, "EUR", r.Currency)
	assert.Equal(t, []string{"places/p2/photos/1"}, r.Photos)
	require.NotNil(t, r.OpenNow)
	assert.False(t, *r.OpenNow)
	assert.Equal(t, []string{"lunes: cerrado"}, r.OpeningHours)
}

func TestNormalize_Rejects(t *testing.T) {
	c := &Client{region: madrid(t)}

	_, err := c.normalize(google.Place{DisplayName: google.DisplayName{Text: "x"}}, "q", "")
	assert.Error(t, err)

	_, err = c.normalize(google.Place{ID: "p"}, "q", "")
	assert.Error(t, err)

	_, err = c.normalize(google.Place{
		ID:          "p",
		DisplayName: google.DisplayName{Text: "Lejos"},
		Location:    &google.LatLng{Latitude: 48.85, Longitude: 2.35},
	}, "q", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errOutOfRegion))
}

func TestCuisineOf(t *testing.T) {
	assert.Equal(t, "spanish", cuisineOf(google.Place{PrimaryType: "spanish_restaurant"}))
	assert.Equal(t, "middle eastern", cuisineOf(google.Place{Types: []string{"bar", "middle_eastern_restaurant"}}))
	assert.Equal(t, "", cuisineOf(google.Place{PrimaryType: "restaurant", Types: []string{"bar"}}))
}

func TestTextQuery(t *testing.T) {
	c := &Client{locality: "Madrid"}
	assert.Equal(t, "ramen in Chueca Madrid", c.textQuery("ramen", "Chueca"))
	assert.Equal(t, "ramen Madrid", c.textQuery("ramen", ""))
	assert.Equal(t, "ramen madrid centro", c.textQuery("ramen madrid centro", ""))
}
