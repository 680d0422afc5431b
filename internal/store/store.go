// Package store persists restaurant records. Writes are upserts keyed on place_id;
// reads filter by cached query, neighborhood, freshness and rating.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dinescout/internal/model"
)

// ErrNotFound is returned by Get when no record has the place ID.
var ErrNotFound = eris.New("store: restaurant not found")

const defaultReadLimit = 50

// Filter selects records for Read. Zero-valued fields do not constrain the read.
type Filter struct {
	// Text is matched case-insensitively as a substring of search_query.
	Text string
	// Neighborhood matches the neighborhood a record was fetched for (folded) or
	// the provider's neighborhood (exact).
	Neighborhood string
	// FreshAt keeps only records with expires_at strictly after it.
	FreshAt time.Time
	// MinRating keeps only rated records with rating >= MinRating.
	MinRating *float64
	Limit     int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return defaultReadLimit
	}
	return f.Limit
}

// Store is the entity store shared by every request.
type Store interface {
	Read(ctx context.Context, f Filter) ([]model.Restaurant, error)
	Get(ctx context.Context, placeID string) (*model.Restaurant, error)
	Upsert(ctx context.Context, r model.Restaurant) error
	UpsertMany(ctx context.Context, rs []model.Restaurant) (int64, error)
	Count(ctx context.Context) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// columns is the shared column order for inserts and selects.
var columns = []string{
	"place_id", "name", "formatted_address", "neighborhood", "cuisine", "types",
	"rating", "user_ratings_total", "price_level", "min_price", "max_price", "currency",
	"lat", "lng", "photos", "opening_hours", "open_now", "phone_number", "website",
	"search_query", "search_neighborhood", "cached_at", "expires_at",
}

// likePattern escapes LIKE metacharacters and wraps the text for substring matching.
func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(text))) + "%"
}

func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(b []byte) ([]string, error) {
	if len(b) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, eris.Wrap(err, "store: decode list column")
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func splitLocation(l *model.LatLng) (lat, lng *float64) {
	if l == nil {
		return nil, nil
	}
	la, ln := l.Lat, l.Lng
	return &la, &ln
}

func joinLocation(lat, lng *float64) *model.LatLng {
	if lat == nil || lng == nil {
		return nil
	}
	return &model.LatLng{Lat: *lat, Lng: *lng}
}

func priceOrUnspecified(p model.PriceLevel) string {
	if p == "" {
		return string(model.PriceLevelUnspecified)
	}
	return string(p)
}

// validateAll rejects a batch containing any record that violates write invariants.
func validateAll(rs []model.Restaurant) error {
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
