package search

import (
	"strings"

	"github.com/sells-group/dinescout/internal/model"
)

// Filters narrow a result set. Every set criterion must hold for a record to pass.
type Filters struct {
	// PriceLevels keeps records whose price level is listed.
	PriceLevels []model.PriceLevel `json:"price_levels,omitempty"`
	// Neighborhood is a case-insensitive substring of the address or neighborhood.
	Neighborhood string `json:"neighborhood,omitempty"`
	// MinRating keeps rated records with rating >= MinRating. Unrated records fail.
	MinRating *float64 `json:"min_rating,omitempty"`
	// OpenNow keeps records whose open-now flag equals the value. Unknown fails.
	OpenNow *bool `json:"open_now,omitempty"`
}

// Empty reports whether no criterion is set.
func (f Filters) Empty() bool {
	return len(f.PriceLevels) == 0 && f.Neighborhood == "" && f.MinRating == nil && f.OpenNow == nil
}

// Match reports whether r satisfies every criterion.
func (f Filters) Match(r model.Restaurant) bool {
	if len(f.PriceLevels) > 0 {
		found := false
		for _, p := range f.PriceLevels {
			if r.PriceLevel == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Neighborhood != "" {
		needle := strings.ToLower(f.Neighborhood)
		if !strings.Contains(strings.ToLower(r.FormattedAddress), needle) &&
			!strings.Contains(strings.ToLower(r.Neighborhood), needle) {
			return false
		}
	}
	if f.MinRating != nil && (r.Rating == nil || *r.Rating < *f.MinRating) {
		return false
	}
	if f.OpenNow != nil && (r.OpenNow == nil || *r.OpenNow != *f.OpenNow) {
		return false
	}
	return true
}

// Apply returns the records that match, preserving order.
func (f Filters) Apply(rs []model.Restaurant) []model.Restaurant {
	out := make([]model.Restaurant, 0, len(rs))
	for _, r := range rs {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
