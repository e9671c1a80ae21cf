package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgstore is the persistent cache tier: a Postgres K/V table with per-entry
// expiry. Writes flow through an in-memory spill buffer so bursts of
// write-backs never block the request path.
type pgstore struct {
	db      *pgxpool.Pool
	writes  chan kventry
	metrics *cacheMetrics
}

type kventry struct {
	key     string
	value   []byte
	expires time.Time
}

func newPGStore(ctx context.Context, dsn string, metrics *cacheMetrics) (*pgstore, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	_, err = db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS discovery_cache (
			key     TEXT PRIMARY KEY,
			value   BYTEA NOT NULL,
			expires TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	s := &pgstore{
		db:      db,
		writes:  make(chan kventry),
		metrics: metrics,
	}
	go s.writer()

	return s, nil
}

// writer drains the spill buffer. One upsert at a time keeps the pool free
// for reads.
func (s *pgstore) writer() {
	for e := range accumulate(s.writes, &slicebuffer[kventry]{}) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := s.db.Exec(ctx, `
			INSERT INTO discovery_cache (key, value, expires) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = $2, expires = $3;
		`, e.key, e.value, e.expires)
		cancel()
		if err != nil {
			Log(ctx).Warn("problem persisting cache entry", "key", e.key, "err", err)
			s.metrics.cacheWriteErrInc()
		}
	}
}

func (s *pgstore) get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	var value []byte
	var expires time.Time
	err := s.db.QueryRow(ctx,
		"SELECT value, expires FROM discovery_cache WHERE key = $1", key,
	).Scan(&value, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, errNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	ttl := time.Until(expires)
	if ttl <= 0 {
		return nil, 0, errNotFound
	}
	return value, ttl, nil
}

// set enqueues a write. It never blocks on the database.
func (s *pgstore) set(key string, value []byte, ttl time.Duration) {
	s.writes <- kventry{key: key, value: value, expires: time.Now().Add(ttl)}
}

func (s *pgstore) delete(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM discovery_cache WHERE key = $1", key)
	return err
}

func (s *pgstore) deleteMatching(ctx context.Context, prefix string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM discovery_cache WHERE key LIKE $1", prefix+"%")
	return tag.RowsAffected(), err
}
