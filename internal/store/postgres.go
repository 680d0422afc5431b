package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dinescout/internal/db"
	"github.com/sells-group/dinescout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership of it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	place_id           TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	formatted_address  TEXT NOT NULL DEFAULT '',
	neighborhood       TEXT NOT NULL DEFAULT '',
	cuisine            TEXT,
	types              JSONB NOT NULL DEFAULT '[]',
	rating             DOUBLE PRECISION CHECK (rating IS NULL OR (rating >= 0 AND rating <= 5)),
	user_ratings_total INTEGER NOT NULL DEFAULT 0 CHECK (user_ratings_total >= 0),
	price_level        TEXT NOT NULL DEFAULT 'PRICE_LEVEL_UNSPECIFIED',
	min_price          DOUBLE PRECISION,
	max_price          DOUBLE PRECISION,
	currency           TEXT NOT NULL DEFAULT '',
	lat                DOUBLE PRECISION,
	lng                DOUBLE PRECISION,
	photos             JSONB NOT NULL DEFAULT '[]',
	opening_hours      JSONB NOT NULL DEFAULT '[]',
	open_now           BOOLEAN,
	phone_number       TEXT NOT NULL DEFAULT '',
	website            TEXT NOT NULL DEFAULT '',
	search_query       TEXT NOT NULL DEFAULT '',
	search_neighborhood TEXT NOT NULL DEFAULT '',
	cached_at          TIMESTAMPTZ NOT NULL,
	expires_at         TIMESTAMPTZ NOT NULL,
	CHECK (expires_at > cached_at),
	CHECK ((lat IS NULL) = (lng IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_restaurants_neighborhood ON restaurants(neighborhood);
CREATE INDEX IF NOT EXISTS idx_restaurants_expires_at ON restaurants(expires_at);
CREATE INDEX IF NOT EXISTS idx_restaurants_search_query ON restaurants(lower(search_query));
CREATE INDEX IF NOT EXISTS idx_restaurants_search_neighborhood ON restaurants(search_neighborhood);
`

// upsertGuard keeps an older write from clobbering a newer one.
const upsertGuard = "EXCLUDED.cached_at >= restaurants.cached_at"

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the restaurants table and its indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool when this store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Read returns records matching f, best rated first.
func (s *PostgresStore) Read(ctx context.Context, f Filter) ([]model.Restaurant, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if strings.TrimSpace(f.Text) != "" {
		conditions = append(conditions, fmt.Sprintf("lower(search_query) LIKE $%d", argIdx))
		args = append(args, likePattern(f.Text))
		argIdx++
	}
	if f.Neighborhood != "" {
		conditions = append(conditions, fmt.Sprintf("(search_neighborhood = $%d OR neighborhood = $%d)", argIdx, argIdx+1))
		args = append(args, model.NeighborhoodKey(f.Neighborhood), f.Neighborhood)
		argIdx += 2
	}
	if !f.FreshAt.IsZero() {
		conditions = append(conditions, fmt.Sprintf("expires_at > $%d", argIdx))
		args = append(args, f.FreshAt)
		argIdx++
	}
	if f.MinRating != nil {
		conditions = append(conditions, fmt.Sprintf("rating >= $%d", argIdx))
		args = append(args, *f.MinRating)
		argIdx++
	}

	where := "true"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM restaurants WHERE %s ORDER BY rating DESC NULLS LAST, user_ratings_total DESC, place_id LIMIT $%d`,
		strings.Join(columns, ", "), where, argIdx,
	)
	args = append(args, f.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read restaurants")
	}
	defer rows.Close()

	var out []model.Restaurant
	for rows.Next() {
		r, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate restaurants")
	}
	return out, nil
}

// Get returns the record for placeID or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, placeID string) (*model.Restaurant, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM restaurants WHERE place_id = $1`, strings.Join(columns, ", ")),
		placeID,
	)
	r, err := scanPostgres(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get restaurant %s", placeID)
	}
	return r, nil
}

// Upsert inserts or replaces one record keyed on place_id.
func (s *PostgresStore) Upsert(ctx context.Context, r model.Restaurant) error {
	if err := r.Validate(); err != nil {
		return eris.Wrap(err, "postgres: upsert")
	}

	placeholders := make([]string, len(columns))
	var sets []string
	for i, c := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "place_id" {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	query := fmt.Sprintf(
		`INSERT INTO restaurants (%s) VALUES (%s) ON CONFLICT (place_id) DO UPDATE SET %s WHERE %s`,
		strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", "), upsertGuard,
	)

	if _, err := s.pool.Exec(ctx, query, recordArgs(r)...); err != nil {
		return eris.Wrapf(err, "postgres: upsert restaurant %s", r.PlaceID)
	}
	return nil
}

// UpsertMany writes a batch through db.BulkUpsert. The batch is all-or-nothing.
func (s *PostgresStore) UpsertMany(ctx context.Context, rs []model.Restaurant) (int64, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	if err := validateAll(rs); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert many")
	}

	rows := make([][]any, len(rs))
	for i, r := range rs {
		rows[i] = recordArgs(r)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "restaurants",
		Columns:      columns,
		ConflictKeys: []string{"place_id"},
		UpdateWhere:  upsertGuard,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert many")
	}
	return n, nil
}

// Count returns the number of stored records, fresh or not.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM restaurants`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count restaurants")
	}
	return n, nil
}

func recordArgs(r model.Restaurant) []any {
	lat, lng := splitLocation(r.Location)
	return []any{
		r.PlaceID, r.Name, r.FormattedAddress, r.Neighborhood, r.Cuisine, encodeList(r.Types),
		r.Rating, r.UserRatingsTotal, priceOrUnspecified(r.PriceLevel), r.MinPrice, r.MaxPrice, r.Currency,
		lat, lng, encodeList(r.Photos), encodeList(r.OpeningHours), r.OpenNow, r.PhoneNumber, r.Website,
		r.SearchQuery, r.SearchNeighborhood, r.CachedAt, r.ExpiresAt,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPostgres(row scannable) (*model.Restaurant, error) {
	var (
		r                    model.Restaurant
		price                string
		types, photos, hours []byte
		lat, lng             *float64
	)
	if err := row.Scan(
		&r.PlaceID, &r.Name, &r.FormattedAddress, &r.Neighborhood, &r.Cuisine, &types,
		&r.Rating, &r.UserRatingsTotal, &price, &r.MinPrice, &r.MaxPrice, &r.Currency,
		&lat, &lng, &photos, &hours, &r.OpenNow, &r.PhoneNumber, &r.Website,
		&r.SearchQuery, &r.SearchNeighborhood, &r.CachedAt, &r.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan restaurant")
	}

	var err error
	if r.Types, err = decodeList(types); err != nil {
		return nil, err
	}
	if r.Photos, err = decodeList(photos); err != nil {
		return nil, err
	}
	if r.OpeningHours, err = decodeList(hours); err != nil {
		return nil, err
	}
	r.PriceLevel = model.PriceLevel(price)
	r.Location = joinLocation(lat, lng)
	return &r, nil
}
