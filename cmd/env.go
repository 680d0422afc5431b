package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dinescout/internal/cache"
	"github.com/sells-group/dinescout/internal/chat"
	"github.com/sells-group/dinescout/internal/config"
	"github.com/sells-group/dinescout/internal/geo"
	"github.com/sells-group/dinescout/internal/live"
	"github.com/sells-group/dinescout/internal/search"
	"github.com/sells-group/dinescout/internal/store"
	"github.com/sells-group/dinescout/pkg/aigateway"
	"github.com/sells-group/dinescout/pkg/anthropic"
	"github.com/sells-group/dinescout/pkg/google"
)

// searchEnv holds the store and the search tiers shared by the serve, search
// and discover commands.
type searchEnv struct {
	Store  store.Store
	Region *geo.Region
	Live   *live.Client
	Search *search.Orchestrator
}

// Close releases resources held by the environment.
func (e *searchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRegion(rc config.RegionConfig) (*geo.Region, error) {
	region, err := geo.NewRegion(rc.Name, rc.SWLat, rc.SWLng, rc.NELat, rc.NELng)
	if err != nil {
		return nil, eris.Wrap(err, "init region")
	}
	return region, nil
}

// initSearch validates cfg for mode, opens and migrates the store, and wires
// cache, live client and orchestrator. Callers should defer env.Close().
func initSearch(ctx context.Context, mode string) (*searchEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	region, err := initRegion(cfg.Region)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	places := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
	liveClient := live.New(places, st, region,
		live.WithTTL(cfg.Cache.SearchTTL()),
		live.WithLocality(cfg.Live.Locality),
		live.WithLanguage(cfg.Google.LanguageCode),
		live.WithRateLimit(cfg.Live.RateLimit),
		live.WithWriteConcurrency(cfg.Live.WriteConcurrency),
		live.WithBreaker(cfg.Live.Breaker()),
	)

	coordinator := cache.NewCoordinator(st, cache.WithLimit(cfg.Cache.LookupLimit))
	orchestrator := search.New(coordinator, liveClient,
		search.WithMaxResults(cfg.Search.MaxResults),
		search.WithFanOut(cfg.Search.FanOut),
		search.WithRetry(cfg.Search.Retry()),
	)

	zap.L().Info("search environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("region", region.Name()),
		zap.Duration("search_ttl", cfg.Cache.SearchTTL()),
	)

	return &searchEnv{Store: st, Region: region, Live: liveClient, Search: orchestrator}, nil
}

// newGenerator returns the generator for the configured chat provider, or nil
// when chat is disabled.
func newGenerator(cc config.ChatConfig) (chat.Generator, error) {
	switch cc.Provider {
	case "gateway":
		client := aigateway.NewClient(cfg.Gateway.Key,
			aigateway.WithBaseURL(cfg.Gateway.BaseURL),
			aigateway.WithModel(cfg.Gateway.Model),
		)
		temperature := cfg.Gateway.Temperature
		return chat.NewGatewayGenerator(client, cfg.Gateway.Model, &temperature), nil
	case "anthropic":
		client := anthropic.NewClient(cfg.Anthropic.Key)
		return chat.NewAnthropicGenerator(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported chat provider: %s", cc.Provider)
	}
}
