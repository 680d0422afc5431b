// Package live queries the place-search provider when the cache cannot answer,
// normalizes the results and writes them back to the entity store.
package live

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/dinescout/internal/geo"
	"github.com/sells-group/dinescout/internal/metrics"
	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/resilience"
	"github.com/sells-group/dinescout/internal/store"
	"github.com/sells-group/dinescout/pkg/google"
)

const (
	// maxPageSize is the provider's per-page result cap.
	maxPageSize = 20
	// maxPages bounds pagination per fetch.
	maxPages = 3

	defaultTTL              = 30 * 24 * time.Hour
	defaultWriteConcurrency = 4
)

// Client fetches restaurants from the provider and caches them.
type Client struct {
	places   google.Client
	store    store.Store
	region   *geo.Region
	breaker  *resilience.CircuitBreaker
	limiter  *rate.Limiter
	ttl      time.Duration
	locality string
	language string
	writers  int
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTTL sets the cache lifetime stamped on written records.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// WithLocality appends a locality ("Madrid") to every provider text query.
func WithLocality(locality string) Option {
	return func(c *Client) { c.locality = locality }
}

// WithLanguage sets the provider language code.
func WithLanguage(code string) Option {
	return func(c *Client) { c.language = code }
}

// WithRateLimit caps provider calls per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) {
		cfg.ShouldTrip = shouldTrip
		cfg.OnStateChange = func(_, to resilience.CircuitState) {
			metrics.CircuitState.WithLabelValues("google").Set(float64(to))
			zap.L().Warn("live: provider circuit changed state", zap.Stringer("state", to))
		}
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// WithWriteConcurrency bounds concurrent store writes per fetch.
func WithWriteConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.writers = n
		}
	}
}

// WithClock overrides the time source used for cache stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New returns a Client writing to s and accepting only places inside region.
func New(places google.Client, s store.Store, region *geo.Region, opts ...Option) *Client {
	c := &Client{
		places:  places,
		store:   s,
		region:  region,
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		ttl:     defaultTTL,
		writers: defaultWriteConcurrency,
		now:     time.Now,
	}
	WithBreaker(resilience.DefaultCircuitBreakerConfig())(c)
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithTTL returns a copy of the client that stamps records with ttl. The copy
// shares the breaker and rate limiter, so bulk and interactive callers draw on
// one provider budget.
func (c *Client) WithTTL(ttl time.Duration) *Client {
	cp := *c
	cp.ttl = ttl
	return &cp
}

// TTL returns the configured record lifetime.
func (c *Client) TTL() time.Duration { return c.ttl }

// FetchLive queries the provider for query (optionally within neighborhood),
// writes every valid in-region result to the store and returns the written
// records in provider order. A record that fails normalization or its write is
// dropped and logged. Provider failures return a *ProviderError and are not
// retried.
func (c *Client) FetchLive(ctx context.Context, query, neighborhood string, maxResults int) ([]model.Restaurant, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("live: empty query")
	}
	if maxResults <= 0 {
		maxResults = maxPageSize
	}
	log := zap.L().With(
		zap.String("query", query),
		zap.String("neighborhood", neighborhood),
	)

	places, err := c.search(ctx, c.textQuery(query, neighborhood), maxResults)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "live: fetch canceled")
		}
		pe := classify(err)
		metrics.ProviderFailures.WithLabelValues(string(pe.Kind)).Inc()
		log.Warn("live: provider call failed", zap.String("kind", string(pe.Kind)), zap.Error(err))
		return nil, pe
	}

	now := c.now()
	records := make([]*model.Restaurant, len(places))
	for i, p := range places {
		r, err := c.normalize(p, query, neighborhood)
		if err != nil {
			reason := "normalize"
			if errors.Is(err, errOutOfRegion) {
				reason = "region"
			}
			metrics.LiveRecordsDropped.WithLabelValues(reason).Inc()
			log.Debug("live: dropping place", zap.String("place_id", p.ID), zap.String("reason", reason), zap.Error(err))
			continue
		}
		if err := r.Stamp(now, c.ttl); err != nil {
			return nil, eris.Wrap(err, "live: stamp")
		}
		records[i] = &r
	}

	c.writeBack(ctx, records)

	out := make([]model.Restaurant, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, *r)
		}
	}
	log.Info("live: fetched", zap.Int("returned", len(places)), zap.Int("stored", len(out)))
	return out, nil
}

// search pages through the provider until maxResults places are collected.
func (c *Client) search(ctx context.Context, text string, maxResults int) ([]google.Place, error) {
	sw, ne := c.region.SouthWest(), c.region.NorthEast()
	req := google.TextSearchRequest{
		TextQuery:    text,
		LanguageCode: c.language,
		IncludedType: "restaurant",
		LocationRestriction: &google.LocationRestriction{Rectangle: google.Rectangle{
			Low:  google.LatLng{Latitude: sw.Lat, Longitude: sw.Lng},
			High: google.LatLng{Latitude: ne.Lat, Longitude: ne.Lng},
		}},
	}

	var out []google.Place
	for page := 0; page < maxPages && len(out) < maxResults; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "live: rate limit wait")
		}
		req.MaxResultCount = min(maxResults-len(out), maxPageSize)

		resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*google.TextSearchResponse, error) {
			return c.places.TextSearch(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Places...)
		if resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// writeBack stores records as one batch. When the batch fails it falls back to
// concurrent per-record upserts, and a failed record write clears its slot.
func (c *Client) writeBack(ctx context.Context, records []*model.Restaurant) {
	batch := make([]model.Restaurant, 0, len(records))
	for _, r := range records {
		if r != nil {
			batch = append(batch, *r)
		}
	}
	if len(batch) == 0 {
		return
	}
	n, err := c.store.UpsertMany(ctx, batch)
	if err == nil {
		metrics.LiveRecordsStored.Add(float64(len(batch)))
		zap.L().Debug("live: batch stored", zap.Int("records", len(batch)), zap.Int64("rows_changed", n))
		return
	}
	zap.L().Warn("live: batch write failed, writing records one by one",
		zap.Int("records", len(batch)),
		zap.Error(err),
	)

	var g errgroup.Group
	g.SetLimit(c.writers)
	for i, r := range records {
		if r == nil {
			continue
		}
		g.Go(func() error {
			if err := c.store.Upsert(ctx, *r); err != nil {
				metrics.LiveRecordsDropped.WithLabelValues("write").Inc()
				zap.L().Warn("live: store write failed, dropping record",
					zap.String("place_id", r.PlaceID),
					zap.Error(err),
				)
				records[i] = nil
				return nil
			}
			metrics.LiveRecordsStored.Inc()
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Client) textQuery(query, neighborhood string) string {
	parts := []string{query}
	if neighborhood != "" {
		parts = append(parts, "in "+neighborhood)
	}
	if c.locality != "" && !strings.Contains(strings.ToLower(query), strings.ToLower(c.locality)) {
		parts = append(parts, c.locality)
	}
	return strings.Join(parts, " ")
}
