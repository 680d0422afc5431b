// Package cache answers restaurant queries from the entity store, honoring each
// record's expiry.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/store"
)

// Coordinator performs freshness-aware reads against a Store.
type Coordinator struct {
	store store.Store
	limit int
	now   func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLimit caps the number of records returned per lookup.
func WithLimit(n int) Option {
	return func(c *Coordinator) { c.limit = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator returns a Coordinator reading from s.
func NewCoordinator(s store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{store: s, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup returns unexpired records whose cached search query contains query
// (case-insensitive). A non-empty neighborhood restricts the lookup to records
// fetched for that neighborhood or located in it. A miss returns an empty slice
// and a nil error; only a store failure is an error.
func (c *Coordinator) Lookup(ctx context.Context, query, neighborhood string) ([]model.Restaurant, error) {
	now := c.now()
	recs, err := c.store.Read(ctx, store.Filter{
		Text:         query,
		Neighborhood: neighborhood,
		FreshAt:      now,
		Limit:        c.limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "cache: lookup")
	}

	// Expired records are never hits, whatever precision the backend stores times at.
	out := make([]model.Restaurant, 0, len(recs))
	for _, r := range recs {
		if r.Fresh(now) {
			out = append(out, r)
		}
	}

	zap.L().Debug("cache: lookup",
		zap.String("query", query),
		zap.String("neighborhood", neighborhood),
		zap.Int("hits", len(out)),
	)
	return out, nil
}

// LookupStale is Lookup without the expiry condition. It backs the last-resort tier
// when the live provider is unavailable.
func (c *Coordinator) LookupStale(ctx context.Context, query, neighborhood string) ([]model.Restaurant, error) {
	recs, err := c.store.Read(ctx, store.Filter{
		Text:         query,
		Neighborhood: neighborhood,
		Limit:        c.limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "cache: stale lookup")
	}
	if recs == nil {
		recs = []model.Restaurant{}
	}
	return recs, nil
}
