package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/store"
	"github.com/sells-group/dinescout/internal/store/mocks"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, expires time.Time) model.Restaurant {
	return model.Restaurant{
		PlaceID:     id,
		Name:        id,
		SearchQuery: "tapas",
		CachedAt:    expires.Add(-time.Hour),
		ExpiresAt:   expires,
	}
}

func TestLookup_FreshHits(t *testing.T) {
	st := mocks.NewMockStore(t)
	c := NewCoordinator(st, WithClock(func() time.Time { return testNow }), WithLimit(20))

	st.On("Read", mock.Anything, store.Filter{
		Text:         "tapas",
		Neighborhood: "La Latina",
		FreshAt:      testNow,
		Limit:        20,
	}).Return([]model.Restaurant{
		rec("a", testNow.Add(time.Hour)),
		rec("b", testNow), // exactly at expiry: stale
	}, nil)

	got, err := c.Lookup(context.Background(), "tapas", "La Latina")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].PlaceID)
}

func TestLookup_MissIsEmptyNotError(t *testing.T) {
	st := mocks.NewMockStore(t)
	c := NewCoordinator(st, WithClock(func() time.Time { return testNow }))

	st.On("Read", mock.Anything, mock.AnythingOfType("store.Filter")).Return(nil, nil)

	got, err := c.Lookup(context.Background(), "ramen", "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLookup_StoreError(t *testing.T) {
	st := mocks.NewMockStore(t)
	c := NewCoordinator(st)

	st.On("Read", mock.Anything, mock.AnythingOfType("store.Filter")).Return(nil, errors.New("dial tcp: refused"))

	_, err := c.Lookup(context.Background(), "tapas", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: lookup")
}

func TestLookupStale_IgnoresExpiry(t *testing.T) {
	st := mocks.NewMockStore(t)
	c := NewCoordinator(st, WithClock(func() time.Time { return testNow }))

	old := rec("old", testNow.Add(-48*time.Hour))
	st.On("Read", mock.Anything, store.Filter{Text: "tapas"}).Return([]model.Restaurant{old}, nil)

	got, err := c.LookupStale(context.Background(), "tapas", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Fresh(testNow))
}

func TestLookup_AgainstSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLite(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	require.NoError(t, s.Migrate(ctx))

	fresh := rec("fresh", testNow.Add(24*time.Hour))
	fresh.Neighborhood = "Lavapiés"
	stale := rec("stale", testNow.Add(-time.Minute))
	stale.Neighborhood = "Lavapiés"
	other := rec("other", testNow.Add(24*time.Hour))
	other.Neighborhood = "Salamanca"
	_, err = s.UpsertMany(ctx, []model.Restaurant{fresh, stale, other})
	require.NoError(t, err)

	c := NewCoordinator(s, WithClock(func() time.Time { return testNow }))

	got, err := c.Lookup(ctx, "TAPAS", "Lavapiés")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].PlaceID)

	again, err := c.Lookup(ctx, "TAPAS", "Lavapiés")
	require.NoError(t, err)
	assert.Equal(t, got, again, "lookups have no side effects")
}

func TestLookup_MatchesCacheKeyNotNameOrProviderNeighborhood(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLite(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	require.NoError(t, s.Migrate(ctx))

	fetched := rec("fetched", testNow.Add(24*time.Hour))
	fetched.Neighborhood = "Universidad"
	fetched.SearchNeighborhood = "malasaña"
	named := rec("named", testNow.Add(24*time.Hour))
	named.Name = "Tapas y Vinos"
	named.SearchQuery = "vermut"
	_, err = s.UpsertMany(ctx, []model.Restaurant{fetched, named})
	require.NoError(t, err)

	c := NewCoordinator(s, WithClock(func() time.Time { return testNow }))

	for _, n := range []string{"Malasaña", " malasaña", "Universidad"} {
		got, err := c.Lookup(ctx, "tapas", n)
		require.NoError(t, err)
		require.Len(t, got, 1, n)
		assert.Equal(t, "fetched", got[0].PlaceID)
	}

	got, err := c.Lookup(ctx, "tapas y vinos", "")
	require.NoError(t, err)
	assert.Empty(t, got, "a name match is not a cache hit for the query")
}
