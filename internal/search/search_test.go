package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dinescout/internal/cache"
	"github.com/sells-group/dinescout/internal/geo"
	"github.com/sells-group/dinescout/internal/live"
	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/resilience"
	"github.com/sells-group/dinescout/internal/store"
	"github.com/sells-group/dinescout/pkg/google"
	googlemocks "github.com/sells-group/dinescout/pkg/google/mocks"
)

// fakeCache implements Cache for testing.
type fakeCache struct {
	mu        sync.Mutex
	fresh     []model.Restaurant
	stale     []model.Restaurant
	freshErr  error
	staleErr  error
	staleHits int
}

func (f *fakeCache) Lookup(_ context.Context, _, _ string) ([]model.Restaurant, error) {
	return f.fresh, f.freshErr
}

func (f *fakeCache) LookupStale(_ context.Context, _, _ string) ([]model.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleHits++
	return f.stale, f.staleErr
}

// fakeLive implements Live for testing.
type fakeLive struct {
	mu      sync.Mutex
	records map[string][]model.Restaurant // by neighborhood
	errs    []error
	calls   int
}

func (f *fakeLive) FetchLive(_ context.Context, _, neighborhood string, _ int) ([]model.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.records[neighborhood], nil
}

func noBackoff() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
}

func r(id string) model.Restaurant {
	return model.Restaurant{PlaceID: id, Name: id}
}

func TestSearch_FreshCacheWins(t *testing.T) {
	c := &fakeCache{fresh: []model.Restaurant{r("a"), r("b")}}
	l := &fakeLive{}
	o := New(c, l)

	for range 2 {
		res, err := o.Search(context.Background(), Request{Query: "tapas"})
		require.NoError(t, err)
		assert.Equal(t, SourceCache, res.Source)
		assert.Len(t, res.Records, 2)
	}
	assert.Zero(t, l.calls, "a non-empty cache never triggers a live call")
}

func TestSearch_CacheHitFilteredToEmptyStaysCache(t *testing.T) {
	rating := 3.0
	rec := r("a")
	rec.Rating = &rating
	threshold := 4.5
	o := New(&fakeCache{fresh: []model.Restaurant{rec}}, &fakeLive{})

	res, err := o.Search(context.Background(), Request{Query: "tapas", Filters: Filters{MinRating: &threshold}})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.True(t, res.NoResults())
}

func TestSearch_LiveOnMiss(t *testing.T) {
	l := &fakeLive{records: map[string][]model.Restaurant{"": {r("x"), r("y"), r("z")}}}
	o := New(&fakeCache{}, l)

	res, err := o.Search(context.Background(), Request{Query: "ramen"})
	require.NoError(t, err)
	assert.Equal(t, SourceLive, res.Source)
	assert.Len(t, res.Records, 3)
	assert.False(t, res.Stale)
}

func TestSearch_RetriesTransientOnly(t *testing.T) {
	transient := &live.ProviderError{Kind: live.KindUnreachable, Err: errors.New("timeout")}
	l := &fakeLive{
		records: map[string][]model.Restaurant{"": {r("x")}},
		errs:    []error{transient, nil},
	}
	o := New(&fakeCache{}, l, noBackoff())

	res, err := o.Search(context.Background(), Request{Query: "ramen"})
	require.NoError(t, err)
	assert.Equal(t, SourceLive, res.Source)
	assert.Equal(t, 2, l.calls)

	quota := &live.ProviderError{Kind: live.KindQuotaExceeded, StatusCode: 429, Err: errors.New("quota")}
	l2 := &fakeLive{errs: []error{quota, nil}}
	c2 := &fakeCache{}
	o2 := New(c2, l2, noBackoff())

	res, err = o2.Search(context.Background(), Request{Query: "ramen"})
	require.NoError(t, err)
	assert.Equal(t, 1, l2.calls, "quota errors are never retried")
	assert.Equal(t, 1, c2.staleHits)
	assert.True(t, res.NoResults())
}

func TestSearch_ProviderDownCacheEmpty(t *testing.T) {
	down := &live.ProviderError{Kind: live.KindBadStatus, StatusCode: 400, Err: errors.New("bad")}
	o := New(&fakeCache{}, &fakeLive{errs: []error{down}}, noBackoff())

	res, err := o.Search(context.Background(), Request{Query: "ramen"})
	require.NoError(t, err)
	assert.True(t, res.NoResults())
	assert.Equal(t, SourceCache, res.Source)
}

func TestSearch_ProviderDownStaleCache(t *testing.T) {
	down := &live.ProviderError{Kind: live.KindCircuitOpen, Err: resilience.ErrCircuitOpen}
	c := &fakeCache{stale: []model.Restaurant{r("old1"), r("old2")}}
	o := New(c, &fakeLive{errs: []error{down}}, noBackoff())

	res, err := o.Search(context.Background(), Request{Query: "ramen"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.True(t, res.Stale)
	assert.Len(t, res.Records, 2)
}

func TestSearch_AllTiersFail(t *testing.T) {
	down := &live.ProviderError{Kind: live.KindCircuitOpen, Err: resilience.ErrCircuitOpen}
	c := &fakeCache{freshErr: errors.New("conn refused"), staleErr: errors.New("conn refused")}
	o := New(c, &fakeLive{errs: []error{down}}, noBackoff())

	_, err := o.Search(context.Background(), Request{Query: "ramen"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestSearch_EmptyQuery(t *testing.T) {
	o := New(&fakeCache{}, &fakeLive{})
	_, err := o.Search(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchMany_MergesAndDedupes(t *testing.T) {
	l := &fakeLive{records: map[string][]model.Restaurant{
		"Chueca":   {r("a"), r("b")},
		"Malasaña": {r("b"), r("c")},
	}}
	o := New(&fakeCache{}, l)

	res, err := o.SearchMany(context.Background(), Request{Query: "brunch"}, []string{"Chueca", "Malasaña"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, placeIDs(res.Records))
	assert.Equal(t, SourceLive, res.Sources["Chueca"])
	assert.Equal(t, SourceLive, res.Sources["Malasaña"])
}

func TestSearchMany_PropagatesFailure(t *testing.T) {
	down := &live.ProviderError{Kind: live.KindQuotaExceeded, Err: errors.New("quota")}
	c := &fakeCache{staleErr: errors.New("down")}
	o := New(c, &fakeLive{errs: []error{down, down}}, noBackoff())

	_, err := o.SearchMany(context.Background(), Request{Query: "brunch"}, []string{"Chueca", "Sol"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

// End-to-end through the real cache and live client on SQLite.

var e2eNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func e2e(t *testing.T, g google.Client) (*Orchestrator, *cache.Coordinator, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(t.TempDir() + "/search.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	region, err := geo.NewRegion("madrid", 40.30, -3.90, 40.56, -3.52)
	require.NoError(t, err)

	clock := func() time.Time { return e2eNow }
	lc := live.New(g, s, region, live.WithClock(clock), live.WithTTL(30*24*time.Hour), live.WithRateLimit(1000))
	cc := cache.NewCoordinator(s, cache.WithClock(clock))
	return New(cc, lc, noBackoff()), cc, s
}

func gplace(id string, lat float64) google.Place {
	return google.Place{
		ID:          id,
		DisplayName: google.DisplayName{Text: "Sitio " + id},
		Location:    &google.LatLng{Latitude: lat, Longitude: -3.70},
	}
}

func TestE2E_LiveThenCache(t *testing.T) {
	g := googlemocks.NewMockClient(t)
	o, cc, _ := e2e(t, g)

	g.On("TextSearch", mock.Anything, mock.Anything).Return(&google.TextSearchResponse{Places: []google.Place{
		gplace("p1", 40.41), gplace("p2", 40.42), gplace("p3", 40.43),
	}}, nil).Once()

	res, err := o.Search(context.Background(), Request{Query: "croquetas"})
	require.NoError(t, err)
	assert.Equal(t, SourceLive, res.Source)
	require.Len(t, res.Records, 3)

	cached, err := cc.Lookup(context.Background(), "croquetas", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, placeIDs(res.Records), placeIDs(cached))

	again, err := o.Search(context.Background(), Request{Query: "croquetas"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, again.Source)
	assert.ElementsMatch(t, placeIDs(res.Records), placeIDs(again.Records))
}

func TestE2E_NeighborhoodSearchHitsCacheOnRepeat(t *testing.T) {
	g := googlemocks.NewMockClient(t)
	o, cc, _ := e2e(t, g)

	p := gplace("p1", 40.425)
	p.AddressComponents = []google.AddressComponent{{LongText: "Universidad", Types: []string{"neighborhood"}}}
	g.On("TextSearch", mock.Anything, mock.Anything).Return(&google.TextSearchResponse{Places: []google.Place{p}}, nil).Once()

	req := Request{Query: "tapas", Neighborhood: "Malasaña"}
	res, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceLive, res.Source)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Universidad", res.Records[0].Neighborhood)

	cached, err := cc.Lookup(context.Background(), "tapas", "Malasaña")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, placeIDs(cached))

	again, err := o.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, again.Source)
	assert.Equal(t, []string{"p1"}, placeIDs(again.Records))
}

func TestE2E_MalformedAmongFiveValid(t *testing.T) {
	g := googlemocks.NewMockClient(t)
	o, _, s := e2e(t, g)

	g.On("TextSearch", mock.Anything, mock.Anything).Return(&google.TextSearchResponse{Places: []google.Place{
		gplace("p1", 40.41), gplace("p2", 40.42), {ID: "", DisplayName: google.DisplayName{Text: "sin id"}},
		gplace("p3", 40.43), gplace("p4", 40.44), gplace("p5", 40.45),
	}}, nil).Once()

	res, err := o.Search(context.Background(), Request{Query: "vermut", MaxResults: 10})
	require.NoError(t, err)
	assert.Len(t, res.Records, 5)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestE2E_ProviderDownStaleServed(t *testing.T) {
	g := googlemocks.NewMockClient(t)
	o, _, s := e2e(t, g)

	for _, id := range []string{"s1", "s2"} {
		rec := model.Restaurant{PlaceID: id, Name: id, SearchQuery: "cocido"}
		require.NoError(t, rec.Stamp(e2eNow.Add(-time.Hour-time.Minute), time.Hour))
		require.NoError(t, s.Upsert(context.Background(), rec))
	}
	g.On("TextSearch", mock.Anything, mock.Anything).Return(nil, &google.APIError{StatusCode: 403, Status: "PERMISSION_DENIED"}).Once()

	res, err := o.Search(context.Background(), Request{Query: "cocido"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.True(t, res.Stale)
	assert.ElementsMatch(t, []string{"s1", "s2"}, placeIDs(res.Records))
}

func placeIDs(rs []model.Restaurant) []string {
	out := make([]string, len(rs))
	for i, rec := range rs {
		out[i] = rec.PlaceID
	}
	return out
}
