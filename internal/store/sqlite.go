package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dinescout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds and list columns as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	place_id           TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	formatted_address  TEXT NOT NULL DEFAULT '',
	neighborhood       TEXT NOT NULL DEFAULT '',
	cuisine            TEXT,
	types              TEXT NOT NULL DEFAULT '[]',
	rating             REAL CHECK (rating IS NULL OR (rating >= 0 AND rating <= 5)),
	user_ratings_total INTEGER NOT NULL DEFAULT 0 CHECK (user_ratings_total >= 0),
	price_level        TEXT NOT NULL DEFAULT 'PRICE_LEVEL_UNSPECIFIED',
	min_price          REAL,
	max_price          REAL,
	currency           TEXT NOT NULL DEFAULT '',
	lat                REAL,
	lng                REAL,
	photos             TEXT NOT NULL DEFAULT '[]',
	opening_hours      TEXT NOT NULL DEFAULT '[]',
	open_now           INTEGER,
	phone_number       TEXT NOT NULL DEFAULT '',
	website            TEXT NOT NULL DEFAULT '',
	search_query       TEXT NOT NULL DEFAULT '',
	search_neighborhood TEXT NOT NULL DEFAULT '',
	cached_at          INTEGER NOT NULL,
	expires_at         INTEGER NOT NULL,
	CHECK (expires_at > cached_at),
	CHECK ((lat IS NULL) = (lng IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_restaurants_neighborhood ON restaurants(neighborhood);
CREATE INDEX IF NOT EXISTS idx_restaurants_expires_at ON restaurants(expires_at);
CREATE INDEX IF NOT EXISTS idx_restaurants_search_neighborhood ON restaurants(search_neighborhood);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Read(ctx context.Context, f Filter) ([]model.Restaurant, error) {
	var conditions []string
	var args []any

	if strings.TrimSpace(f.Text) != "" {
		conditions = append(conditions, `LOWER(search_query) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Text))
	}
	if f.Neighborhood != "" {
		conditions = append(conditions, "(search_neighborhood = ? OR neighborhood = ?)")
		args = append(args, model.NeighborhoodKey(f.Neighborhood), f.Neighborhood)
	}
	if !f.FreshAt.IsZero() {
		conditions = append(conditions, "expires_at > ?")
		args = append(args, f.FreshAt.UnixMilli())
	}
	if f.MinRating != nil {
		conditions = append(conditions, "rating >= ?")
		args = append(args, *f.MinRating)
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(
		`SELECT %s FROM restaurants WHERE %s ORDER BY rating IS NULL, rating DESC, user_ratings_total DESC, place_id LIMIT ?`,
		strings.Join(columns, ", "), where,
	)
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read restaurants")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Restaurant
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate restaurants")
}

func (s *SQLiteStore) Get(ctx context.Context, placeID string) (*model.Restaurant, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM restaurants WHERE place_id = ?`, strings.Join(columns, ", ")),
		placeID,
	)
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get restaurant %s", placeID)
	}
	return r, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, r model.Restaurant) error {
	if err := r.Validate(); err != nil {
		return eris.Wrap(err, "sqlite: upsert")
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsertSQL, sqliteArgs(r)...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert restaurant %s", r.PlaceID)
	}
	return nil
}

// UpsertMany writes the batch in one transaction.
func (s *SQLiteStore) UpsertMany(ctx context.Context, rs []model.Restaurant) (int64, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	if err := validateAll(rs); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert many")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSQL)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range rs {
		res, err := stmt.ExecContext(ctx, sqliteArgs(r)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert restaurant %s", r.PlaceID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return n, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM restaurants`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count restaurants")
}

var sqliteUpsertSQL = func() string {
	placeholders := make([]string, len(columns))
	var sets []string
	for i, c := range columns {
		placeholders[i] = "?"
		if c != "place_id" {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf(
		`INSERT INTO restaurants (%s) VALUES (%s) ON CONFLICT (place_id) DO UPDATE SET %s WHERE excluded.cached_at >= restaurants.cached_at`,
		strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", "),
	)
}()

func sqliteArgs(r model.Restaurant) []any {
	args := recordArgs(r)
	// cached_at and expires_at are the last two columns.
	args[len(args)-2] = r.CachedAt.UnixMilli()
	args[len(args)-1] = r.ExpiresAt.UnixMilli()
	return args
}

func scanSQLite(row scannable) (*model.Restaurant, error) {
	var (
		r                    model.Restaurant
		cuisine              sql.NullString
		rating, minP, maxP   sql.NullFloat64
		lat, lng             sql.NullFloat64
		openNow              sql.NullBool
		price                string
		types, photos, hours string
		cachedAt, expiresAt  int64
	)
	if err := row.Scan(
		&r.PlaceID, &r.Name, &r.FormattedAddress, &r.Neighborhood, &cuisine, &types,
		&rating, &r.UserRatingsTotal, &price, &minP, &maxP, &r.Currency,
		&lat, &lng, &photos, &hours, &openNow, &r.PhoneNumber, &r.Website,
		&r.SearchQuery, &r.SearchNeighborhood, &cachedAt, &expiresAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan restaurant")
	}

	var err error
	if r.Types, err = decodeList([]byte(types)); err != nil {
		return nil, err
	}
	if r.Photos, err = decodeList([]byte(photos)); err != nil {
		return nil, err
	}
	if r.OpeningHours, err = decodeList([]byte(hours)); err != nil {
		return nil, err
	}

	if cuisine.Valid {
		r.Cuisine = &cuisine.String
	}
	r.Rating = nullFloat(rating)
	r.MinPrice = nullFloat(minP)
	r.MaxPrice = nullFloat(maxP)
	if openNow.Valid {
		r.OpenNow = &openNow.Bool
	}
	r.Location = joinLocation(nullFloat(lat), nullFloat(lng))
	r.PriceLevel = model.PriceLevel(price)
	r.CachedAt = time.UnixMilli(cachedAt).UTC()
	r.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &r, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
