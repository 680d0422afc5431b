package live

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/pkg/google"
)

// neighborhoodTypes are address component types, most specific first, that name
// a neighborhood.
var neighborhoodTypes = []string{"neighborhood", "sublocality_level_2", "sublocality_level_1", "sublocality"}

// errOutOfRegion marks a place whose coordinates fall outside the service region.
var errOutOfRegion = eris.New("live: location outside service region")

// normalize maps a provider place onto a restaurant record, defaulting absent
// optional fields. The record is keyed for the cache by query and the requested
// neighborhood, whatever neighborhood the provider reports. It is not yet stamped.
func (c *Client) normalize(p google.Place, query, neighborhoodHint string) (model.Restaurant, error) {
	id := strings.TrimSpace(p.ID)
	name := strings.TrimSpace(p.DisplayName.Text)
	if id == "" {
		return model.Restaurant{}, eris.New("live: place without id")
	}
	if name == "" {
		return model.Restaurant{}, eris.Errorf("live: place %s without display name", id)
	}

	r := model.Restaurant{
		PlaceID:            id,
		Name:               name,
		FormattedAddress:   p.FormattedAddress,
		Types:              nonNil(p.Types),
		UserRatingsTotal:   max(p.UserRatingCount, 0),
		PriceLevel:         model.PriceLevelUnspecified,
		Photos:             []string{},
		PhoneNumber:        p.NationalPhoneNumber,
		Website:            p.WebsiteURI,
		SearchQuery:        strings.ToLower(strings.TrimSpace(query)),
		SearchNeighborhood: model.NeighborhoodKey(neighborhoodHint),
	}

	if p.Location != nil {
		loc := model.LatLng{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
		if !c.region.Contains(loc) {
			return model.Restaurant{}, eris.Wrapf(errOutOfRegion, "live: place %s at %.5f,%.5f", id, loc.Lat, loc.Lng)
		}
		r.Location = &loc
	}

	if p.Rating != nil && *p.Rating >= 0 && *p.Rating <= 5 {
		rating := *p.Rating
		r.Rating = &rating
	}
	if lvl, ok := model.ParsePriceLevel(p.PriceLevel); ok {
		r.PriceLevel = lvl
	}
	if p.PriceRange != nil {
		r.MinPrice, r.Currency = moneyPtr(p.PriceRange.StartPrice, r.Currency)
		r.MaxPrice, r.Currency = moneyPtr(p.PriceRange.EndPrice, r.Currency)
	}
	for _, ph := range p.Photos {
		if ph.Name != "" {
			r.Photos = append(r.Photos, ph.Name)
		}
	}
	if h := p.RegularOpeningHours; h != nil {
		r.OpenNow = h.OpenNow
		r.OpeningHours = h.WeekdayDescriptions
	}
	if cuisine := cuisineOf(p); cuisine != "" {
		r.Cuisine = &cuisine
	}

	r.Neighborhood = neighborhoodOf(p.AddressComponents)
	if r.Neighborhood == "" {
		r.Neighborhood = neighborhoodHint
	}
	return r, nil
}

// cuisineOf derives a cuisine from a "<cuisine>_restaurant" type, preferring the
// primary type.
func cuisineOf(p google.Place) string {
	candidates := append([]string{p.PrimaryType}, p.Types...)
	for _, t := range candidates {
		if c, ok := strings.CutSuffix(t, "_restaurant"); ok && c != "" {
			return strings.ReplaceAll(c, "_", " ")
		}
	}
	return ""
}

func neighborhoodOf(components []google.AddressComponent) string {
	for _, want := range neighborhoodTypes {
		for _, ac := range components {
			for _, t := range ac.Types {
				if t == want && ac.LongText != "" {
					return ac.LongText
				}
			}
		}
	}
	return ""
}

func moneyPtr(m *google.Money, currency string) (*float64, string) {
	if m == nil {
		return nil, currency
	}
	v, ok := m.Amount()
	if !ok || v < 0 {
		return nil, currency
	}
	if currency == "" {
		currency = m.CurrencyCode
	}
	return &v, currency
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
