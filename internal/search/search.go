// Package search answers restaurant queries from the freshest tier available:
// fresh cache, then the live provider, then whatever the cache still holds.
package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dinescout/internal/metrics"
	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/resilience"
)

// Source names the tier a result came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceLive  Source = "live"
)

// ErrStoreUnavailable is returned when the live provider failed and the store
// could not be read for the stale fallback, so no tier could answer.
var ErrStoreUnavailable = eris.New("search: entity store unavailable")

// ErrEmptyQuery rejects a blank query.
var ErrEmptyQuery = eris.New("search: query is required")

// Cache is the cache lookup surface the orchestrator consumes.
type Cache interface {
	Lookup(ctx context.Context, query, neighborhood string) ([]model.Restaurant, error)
	LookupStale(ctx context.Context, query, neighborhood string) ([]model.Restaurant, error)
}

// Live is the provider fallback surface the orchestrator consumes.
type Live interface {
	FetchLive(ctx context.Context, query, neighborhood string, maxResults int) ([]model.Restaurant, error)
}

// Request is one search.
type Request struct {
	Query string
	// Neighborhood narrows the cache lookup to records fetched for it or located
	// in it, and is passed to the provider query.
	Neighborhood string
	Filters      Filters
	MaxResults   int
}

// Result is the outcome of a search. An empty Records slice is the NoResults
// outcome, not an error.
type Result struct {
	Records []model.Restaurant `json:"restaurants"`
	Source  Source             `json:"source"`
	// Stale marks a cache answer served after the live provider failed.
	Stale bool `json:"stale,omitempty"`
}

// NoResults reports whether every tier came back empty.
func (r *Result) NoResults() bool { return len(r.Records) == 0 }

// Orchestrator composes the cache and live tiers.
type Orchestrator struct {
	cache      Cache
	live       Live
	retry      resilience.RetryConfig
	maxResults int
	fanOut     int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetry sets the retry policy applied to live fetches. Only transient
// provider errors are retried.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithMaxResults sets the default provider result cap.
func WithMaxResults(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxResults = n
		}
	}
}

// WithFanOut bounds concurrent searches in SearchMany.
func WithFanOut(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.fanOut = n
		}
	}
}

// New returns an Orchestrator.
func New(cache Cache, live Live, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:      cache,
		live:       live,
		retry:      resilience.DefaultRetryConfig(),
		maxResults: 10,
		fanOut:     4,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.retry.ShouldRetry = retryable
	o.retry.OnRetry = resilience.RetryLogger("google", "fetch_live")
	return o
}

// Search runs the three-tier lookup for req.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	start := time.Now()
	log := zap.L().With(zap.String("query", query), zap.String("neighborhood", req.Neighborhood))

	fresh, err := o.cache.Lookup(ctx, query, req.Neighborhood)
	if err != nil {
		// A broken read is treated as a miss; the live tier may still answer.
		log.Warn("search: cache lookup failed", zap.Error(err))
	}
	if len(fresh) > 0 {
		res := &Result{Records: req.Filters.Apply(fresh), Source: SourceCache}
		metrics.RecordSearch("cache", time.Since(start))
		log.Debug("search: cache hit", zap.Int("records", len(fresh)), zap.Int("filtered", len(res.Records)))
		return res, nil
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = o.maxResults
	}
	recs, liveErr := resilience.DoVal(ctx, o.retry, func(ctx context.Context) ([]model.Restaurant, error) {
		return o.live.FetchLive(ctx, query, req.Neighborhood, maxResults)
	})
	if liveErr == nil {
		res := &Result{Records: req.Filters.Apply(recs), Source: SourceLive}
		metrics.RecordSearch("live", time.Since(start))
		log.Debug("search: live answer", zap.Int("records", len(recs)), zap.Int("filtered", len(res.Records)))
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "search: canceled")
	}
	log.Warn("search: live fallback failed, trying stale cache", zap.Error(liveErr))

	stale, err := o.cache.LookupStale(ctx, query, req.Neighborhood)
	if err != nil {
		metrics.RecordSearch("none", time.Since(start))
		return nil, eris.Wrapf(ErrStoreUnavailable, "search: stale read failed (%v) after live failure (%v)", err, liveErr)
	}
	res := &Result{Records: req.Filters.Apply(stale), Source: SourceCache, Stale: true}
	if res.NoResults() {
		metrics.RecordSearch("none", time.Since(start))
	} else {
		metrics.RecordSearch("stale", time.Since(start))
	}
	return res, nil
}

// retryable only retries provider errors that classify themselves as transient.
func retryable(err error) bool {
	var t resilience.Transient
	return errors.As(err, &t) && t.Transient()
}
