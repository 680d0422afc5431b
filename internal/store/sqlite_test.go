package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dinescout/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "dinescout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_UpsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := sampleRestaurant(now)
	open := true
	r.OpenNow = &open
	r.OpeningHours = []string{"Monday: 1:00 – 4:00 PM"}

	require.NoError(t, s.Upsert(ctx, r))

	got, err := s.Get(ctx, r.PlaceID)
	require.NoError(t, err)
	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, r.CuisineOrEmpty(), got.CuisineOrEmpty())
	assert.Equal(t, *r.Rating, *got.Rating)
	assert.Equal(t, r.Location, got.Location)
	assert.Equal(t, r.OpeningHours, got.OpeningHours)
	assert.Equal(t, []string{}, got.Photos)
	assert.True(t, *got.OpenNow)
	assert.Nil(t, got.MinPrice)
	assert.True(t, r.CachedAt.Equal(got.CachedAt))
	assert.True(t, r.ExpiresAt.Equal(got.ExpiresAt))
}

func TestSQLite_GetNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_OneRecordPerPlaceID(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := sampleRestaurant(now)
	require.NoError(t, s.Upsert(ctx, first))

	second := sampleRestaurant(now.Add(time.Hour))
	second.Name = "Casa Lucio (renovado)"
	require.NoError(t, s.Upsert(ctx, second))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, first.PlaceID)
	require.NoError(t, err)
	assert.Equal(t, "Casa Lucio (renovado)", got.Name)
}

func TestSQLite_OlderWriteDoesNotClobberNewer(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newer := sampleRestaurant(now.Add(time.Hour))
	newer.Name = "newer"
	require.NoError(t, s.Upsert(ctx, newer))

	older := sampleRestaurant(now)
	older.Name = "older"
	require.NoError(t, s.Upsert(ctx, older))

	got, err := s.Get(ctx, newer.PlaceID)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Name)
}

func TestSQLite_ReadFreshness(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fresh := sampleRestaurant(now)
	fresh.PlaceID = "fresh"

	stale := sampleRestaurant(now.Add(-60 * 24 * time.Hour))
	stale.PlaceID = "stale"

	boundary := sampleRestaurant(now)
	boundary.PlaceID = "boundary"
	require.NoError(t, boundary.Stamp(now.Add(-time.Hour), time.Hour))

	_, err := s.UpsertMany(ctx, []model.Restaurant{fresh, stale, boundary})
	require.NoError(t, err)

	got, err := s.Read(ctx, Filter{Text: "cocido", FreshAt: now})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].PlaceID)

	all, err := s.Read(ctx, Filter{Text: "cocido"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLite_ReadFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rating := func(v float64) *float64 { return &v }

	a := sampleRestaurant(now)
	a.PlaceID, a.Rating, a.Neighborhood = "a", rating(4.1), "Malasaña"
	b := sampleRestaurant(now)
	b.PlaceID, b.Rating, b.Neighborhood = "b", rating(4.8), "Malasaña"
	c := sampleRestaurant(now)
	c.PlaceID, c.Rating, c.Neighborhood = "c", nil, "Malasaña"
	d := sampleRestaurant(now)
	d.PlaceID, d.Neighborhood, d.SearchQuery = "d", "Chamberí", "sushi"
	cuisine := "japanese"
	d.Cuisine = &cuisine

	_, err := s.UpsertMany(ctx, []model.Restaurant{a, b, c, d})
	require.NoError(t, err)

	got, err := s.Read(ctx, Filter{Neighborhood: "Malasaña"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{got[0].PlaceID, got[1].PlaceID, got[2].PlaceID})

	got, err = s.Read(ctx, Filter{Neighborhood: "Malasaña", MinRating: rating(4.5)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].PlaceID)

	got, err = s.Read(ctx, Filter{Text: "SUSHI"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d", got[0].PlaceID)

	got, err = s.Read(ctx, Filter{Text: "japanese"})
	require.NoError(t, err)
	assert.Empty(t, got, "text matches the cached query only")

	got, err = s.Read(ctx, Filter{Text: "cocido", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLite_ReadByRequestedNeighborhood(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := sampleRestaurant(now)
	r.Neighborhood, r.SearchNeighborhood = "Universidad", "malasaña"
	require.NoError(t, s.Upsert(ctx, r))

	for _, n := range []string{"Malasaña", "MALASAÑA", "Universidad"} {
		got, err := s.Read(ctx, Filter{Text: "cocido", Neighborhood: n, FreshAt: now})
		require.NoError(t, err)
		require.Len(t, got, 1, n)
		assert.Equal(t, "malasaña", got[0].SearchNeighborhood)
	}

	got, err := s.Read(ctx, Filter{Text: "cocido", Neighborhood: "universidad"})
	require.NoError(t, err)
	assert.Empty(t, got, "the provider neighborhood matches exactly")
}

func TestSQLite_RejectsInvalidWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r := sampleRestaurant(now)
	r.ExpiresAt = r.CachedAt.Add(-time.Second)
	require.Error(t, s.Upsert(ctx, r))

	ex := sampleRestaurant(now)
	ex.Extracted = true
	_, err := s.UpsertMany(ctx, []model.Restaurant{ex})
	require.Error(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_Ping(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}
