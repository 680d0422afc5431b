package discovery

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/dinescout/internal/live"
	"github.com/sells-group/dinescout/internal/metrics"
	"github.com/sells-group/dinescout/internal/model"
)

// costPerCall is the provider's Text Search (Pro) price per request.
const costPerCall = 0.032

// Fetcher runs one provider search and caches the results.
type Fetcher interface {
	FetchLive(ctx context.Context, query, neighborhood string, maxResults int) ([]model.Restaurant, error)
}

// Config tunes a discovery run.
type Config struct {
	// RateLimit caps jobs started per second.
	RateLimit   float64
	Concurrency int
	MaxResults  int
}

// RunResult holds the outcome of a discovery run.
type RunResult struct {
	Jobs           int            `json:"jobs"`
	Failed         int            `json:"failed"`
	PlacesStored   int            `json:"places_stored"`
	ByNeighborhood map[string]int `json:"by_neighborhood"`
	EstimatedCost  float64        `json:"estimated_cost_usd"`
	// Aborted is set when the provider refused further calls.
	Aborted bool `json:"aborted,omitempty"`
}

// Runner executes seed jobs against the live client.
type Runner struct {
	fetcher     Fetcher
	limiter     *rate.Limiter
	concurrency int
	maxResults  int
}

// NewRunner creates a Runner. fetcher should stamp records with the discovery
// TTL.
func NewRunner(fetcher Fetcher, cfg Config) *Runner {
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 2
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 60
	}
	return &Runner{
		fetcher:     fetcher,
		limiter:     rate.NewLimiter(rate.Limit(rateLimit), 1),
		concurrency: concurrency,
		maxResults:  maxResults,
	}
}

// Run searches every job of seeds. Failed jobs are logged and counted; a
// quota or open-circuit failure stops the remaining jobs.
func (r *Runner) Run(ctx context.Context, seeds *Seeds) (*RunResult, error) {
	if seeds == nil {
		return nil, eris.New("discovery: seeds are required")
	}
	log := zap.L().With(zap.String("component", "discovery"))

	maxResults := r.maxResults
	if seeds.MaxResults > 0 {
		maxResults = seeds.MaxResults
	}

	jobs := seeds.Jobs()
	result := &RunResult{Jobs: len(jobs), ByNeighborhood: make(map[string]int)}
	log.Info("discovery run starting", zap.Int("jobs", len(jobs)), zap.Int("max_results", maxResults))

	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	var (
		mu       sync.Mutex
		done     int
		apiCalls int
	)
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for _, job := range jobs {
		if runCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := r.limiter.Wait(runCtx); err != nil {
				return nil
			}
			recs, err := r.fetcher.FetchLive(runCtx, job.Query, job.Neighborhood, maxResults)

			mu.Lock()
			defer mu.Unlock()
			done++
			apiCalls += pages(len(recs))
			if err != nil {
				result.Failed++
				log.Warn("discovery job failed",
					zap.String("query", job.Query),
					zap.String("neighborhood", job.Neighborhood),
					zap.Error(err),
				)
				if stopsRun(err) && !result.Aborted {
					result.Aborted = true
					log.Error("provider refused further calls, aborting run", zap.Error(err))
					abort()
				}
				return nil
			}
			result.PlacesStored += len(recs)
			result.ByNeighborhood[job.Neighborhood] += len(recs)
			metrics.DiscoveryPlaces.WithLabelValues(job.Neighborhood).Add(float64(len(recs)))

			if done%10 == 0 {
				log.Info("progress", zap.Int("jobs_done", done), zap.Int("total_jobs", len(jobs)))
			}
			return nil
		})
	}
	_ = g.Wait()

	result.EstimatedCost = float64(apiCalls) * costPerCall
	if ctx.Err() != nil {
		return result, eris.Wrap(ctx.Err(), "discovery: run canceled")
	}

	log.Info("discovery run complete",
		zap.Int("jobs", result.Jobs),
		zap.Int("failed", result.Failed),
		zap.Int("places_stored", result.PlacesStored),
		zap.Bool("aborted", result.Aborted),
		zap.Float64("estimated_cost_usd", result.EstimatedCost),
	)
	return result, nil
}

// pages estimates provider calls for n results at 20 per page.
func pages(n int) int {
	if n <= 20 {
		return 1
	}
	return (n + 19) / 20
}

func stopsRun(err error) bool {
	var pe *live.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == live.KindQuotaExceeded || pe.Kind == live.KindCircuitOpen
}
