package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const cacheEntriesSchema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		kind       TEXT        NOT NULL,
		key        TEXT        NOT NULL,
		payload    BYTEA       NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL,
		source     TEXT        NOT NULL DEFAULT 'live',
		expires_at TIMESTAMPTZ,
		PRIMARY KEY (kind, key)
	)
`

// CacheEntryRepository stores cache entries in Postgres. It implements
// cache.Backend so the Store applies the same TTL rules as on disk.
type CacheEntryRepository struct {
	db *Database
}

// EnsureSchema creates the cache_entries table if needed
func (r *CacheEntryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, cacheEntriesSchema); err != nil {
		return fmt.Errorf("failed to create cache_entries table: %w", err)
	}
	return nil
}

// Read returns the stored entry for (kind, key)
func (r *CacheEntryRepository) Read(ctx context.Context, kind, key string) (*cache.Entry, error) {
	query := `
		SELECT kind, key, payload, fetched_at, source
		FROM cache_entries
		WHERE kind = $1 AND key = $2
	`

	e := &cache.Entry{}
	err := r.db.Pool.QueryRow(ctx, query, kind, key).Scan(
		&e.Kind, &e.Key, &e.Payload, &e.FetchedAt, &e.Source,
	)
	if err == pgx.ErrNoRows {
		metrics.RecordDBQuery("select", "cache_entries", "miss")
		return nil, cache.ErrNotExist
	}
	if err != nil {
		metrics.RecordDBQuery("select", "cache_entries", "error")
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	metrics.RecordDBQuery("select", "cache_entries", "success")

	if !json.Valid(e.Payload) {
		return nil, fmt.Errorf("%w: payload is not JSON", cache.ErrCorrupt)
	}

	return e, nil
}

// Write inserts or replaces an entry in a single statement
func (r *CacheEntryRepository) Write(ctx context.Context, e *cache.Entry, ttl time.Duration) error {
	query := `
		INSERT INTO cache_entries (kind, key, payload, fetched_at, source, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, key) DO UPDATE SET
			payload = EXCLUDED.payload,
			fetched_at = EXCLUDED.fetched_at,
			source = EXCLUDED.source,
			expires_at = EXCLUDED.expires_at
	`

	var expiresAt *time.Time
	if ttl > 0 {
		t := e.FetchedAt.Add(ttl)
		expiresAt = &t
	}

	_, err := r.db.Pool.Exec(ctx, query, e.Kind, e.Key, e.Payload, e.FetchedAt, e.Source, expiresAt)
	if err != nil {
		metrics.RecordDBQuery("upsert", "cache_entries", "error")
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	metrics.RecordDBQuery("upsert", "cache_entries", "success")

	log.Debug().
		Str("kind", e.Kind).
		Str("key", e.Key).
		Int("bytes", len(e.Payload)).
		Msg("Cache entry stored")

	return nil
}

// Delete removes one entry
func (r *CacheEntryRepository) Delete(ctx context.Context, kind, key string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE kind = $1 AND key = $2`, kind, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cache.ErrNotExist
	}
	return nil
}

// DeleteKind removes every entry of kind
func (r *CacheEntryRepository) DeleteKind(ctx context.Context, kind string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE kind = $1`, kind); err != nil {
		return fmt.Errorf("failed to delete cache kind: %w", err)
	}
	return nil
}

// PurgeExpired removes rows whose expiry has passed and returns how many
func (r *CacheEntryRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of entries per kind
func (r *CacheEntryRepository) Count(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT kind, COUNT(*) FROM cache_entries GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan cache count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
