// Package model defines the restaurant record shared by the store, search, and chat layers.
package model

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// PriceLevel is the provider's closed price enumeration.
type PriceLevel string

const (
	PriceLevelUnspecified   PriceLevel = "PRICE_LEVEL_UNSPECIFIED"
	PriceLevelFree          PriceLevel = "PRICE_LEVEL_FREE"
	PriceLevelInexpensive   PriceLevel = "PRICE_LEVEL_INEXPENSIVE"
	PriceLevelModerate      PriceLevel = "PRICE_LEVEL_MODERATE"
	PriceLevelExpensive     PriceLevel = "PRICE_LEVEL_EXPENSIVE"
	PriceLevelVeryExpensive PriceLevel = "PRICE_LEVEL_VERY_EXPENSIVE"
)

// priceAliases maps user-facing spellings onto the enumeration.
var priceAliases = map[string]PriceLevel{
	"free":           PriceLevelFree,
	"$":              PriceLevelInexpensive,
	"inexpensive":    PriceLevelInexpensive,
	"cheap":          PriceLevelInexpensive,
	"economico":      PriceLevelInexpensive,
	"$$":             PriceLevelModerate,
	"moderate":       PriceLevelModerate,
	"moderado":       PriceLevelModerate,
	"$$$":            PriceLevelExpensive,
	"expensive":      PriceLevelExpensive,
	"caro":           PriceLevelExpensive,
	"$$$$":           PriceLevelVeryExpensive,
	"very_expensive": PriceLevelVeryExpensive,
	"luxury":         PriceLevelVeryExpensive,

	string(PriceLevelFree):          PriceLevelFree,
	string(PriceLevelInexpensive):   PriceLevelInexpensive,
	string(PriceLevelModerate):      PriceLevelModerate,
	string(PriceLevelExpensive):     PriceLevelExpensive,
	string(PriceLevelVeryExpensive): PriceLevelVeryExpensive,
}

// ParsePriceLevel resolves a price spelling ("$$", "moderate", "PRICE_LEVEL_MODERATE").
// Unknown values report false.
func ParsePriceLevel(s string) (PriceLevel, bool) {
	s = strings.TrimSpace(s)
	if p, ok := priceAliases[s]; ok {
		return p, true
	}
	if p, ok := priceAliases[strings.ToLower(s)]; ok {
		return p, true
	}
	return PriceLevelUnspecified, false
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and within WGS84 ranges.
func (l LatLng) Valid() bool {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lng) || math.IsInf(l.Lat, 0) || math.IsInf(l.Lng, 0) {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Restaurant is the canonical cached restaurant record.
type Restaurant struct {
	PlaceID            string     `json:"place_id"`
	Name               string     `json:"name"`
	FormattedAddress   string     `json:"formatted_address"`
	Neighborhood       string     `json:"neighborhood,omitempty"`
	Cuisine            *string    `json:"cuisine"`
	Types              []string   `json:"types"`
	Rating             *float64   `json:"rating"`
	UserRatingsTotal   int        `json:"user_ratings_total"`
	PriceLevel         PriceLevel `json:"price_level"`
	MinPrice           *float64   `json:"min_price,omitempty"`
	MaxPrice           *float64   `json:"max_price,omitempty"`
	Currency           string     `json:"currency,omitempty"`
	Location           *LatLng    `json:"location"`
	Photos             []string   `json:"photos"`
	OpeningHours       []string   `json:"opening_hours,omitempty"`
	OpenNow            *bool      `json:"open_now"`
	PhoneNumber        string     `json:"phone_number,omitempty"`
	Website            string     `json:"website,omitempty"`
	Description        string     `json:"description,omitempty"`
	Extracted          bool       `json:"extracted,omitempty"`
	SearchQuery        string     `json:"search_query,omitempty"`
	// SearchNeighborhood is the folded neighborhood the record was fetched for.
	// It can differ from Neighborhood, which comes from the provider's address.
	SearchNeighborhood string     `json:"search_neighborhood,omitempty"`
	CachedAt           time.Time  `json:"cached_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
}

// Fresh reports whether the record may be served as a cache hit at now.
func (r Restaurant) Fresh(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// Stamp sets the caching window for a write at now.
func (r *Restaurant) Stamp(now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return eris.Errorf("model: non-positive ttl %s", ttl)
	}
	r.CachedAt = now
	r.ExpiresAt = now.Add(ttl)
	return nil
}

// Validate checks the write-time invariants of a record bound for the store.
func (r Restaurant) Validate() error {
	if strings.TrimSpace(r.PlaceID) == "" {
		return eris.New("model: place_id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return eris.Errorf("model: name is required for %s", r.PlaceID)
	}
	if r.Extracted {
		return eris.Errorf("model: extracted record %s is display-only", r.PlaceID)
	}
	if !r.ExpiresAt.After(r.CachedAt) {
		return eris.Errorf("model: expires_at must be after cached_at for %s", r.PlaceID)
	}
	if r.Rating != nil && (*r.Rating < 0 || *r.Rating > 5) {
		return eris.Errorf("model: rating %.2f out of range for %s", *r.Rating, r.PlaceID)
	}
	if r.UserRatingsTotal < 0 {
		return eris.Errorf("model: negative rating count for %s", r.PlaceID)
	}
	if r.Location != nil && !r.Location.Valid() {
		return eris.Errorf("model: invalid location for %s", r.PlaceID)
	}
	return nil
}

// CuisineOrEmpty dereferences Cuisine.
func (r Restaurant) CuisineOrEmpty() string {
	if r.Cuisine == nil {
		return ""
	}
	return *r.Cuisine
}

// NeighborhoodKey folds a requested neighborhood into the form stored in
// SearchNeighborhood.
func NeighborhoodKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
