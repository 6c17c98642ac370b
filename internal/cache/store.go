// Package cache is the keyed, TTL'd store for upstream payloads. A Store
// applies the freshness policy; a Backend only persists bytes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mlb_daily/ingestion/internal/metrics"

	"github.com/rs/zerolog"
)

// Store applies TTLs, forced refresh and corruption handling over a Backend
type Store struct {
	backend      Backend
	ttls         map[string]time.Duration
	now          func() time.Time
	forceRefresh bool
	logger       zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithTTLs overrides the TTL of the given kinds
func WithTTLs(overrides map[string]time.Duration) Option {
	return func(s *Store) { s.ttls = MergeTTLs(overrides) }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithForceRefresh makes every Get a MISS while still writing through
func WithForceRefresh(force bool) Option {
	return func(s *Store) { s.forceRefresh = force }
}

// WithLogger sets the logger used for corruption and write failures
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store over backend
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		ttls:    MergeTTLs(nil),
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the freshness window of kind; unknown kinds are never fresh
func (s *Store) TTL(kind string) time.Duration {
	return s.ttls[kind]
}

// ForceRefresh reports whether reads are bypassed
func (s *Store) ForceRefresh() bool {
	return s.forceRefresh
}

// Get returns the entry iff it exists and is younger than TTL(kind).
// Corrupt entries are deleted and reported as a miss.
func (s *Store) Get(ctx context.Context, kind, key string) (*Entry, bool) {
	if s.forceRefresh {
		metrics.RecordCacheMiss(kind, "force_refresh")
		return nil, false
	}

	start := time.Now()
	e, err := s.backend.Read(ctx, kind, key)
	metrics.RecordCacheOperation("get", time.Since(start).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, ErrNotExist):
		metrics.RecordCacheMiss(kind, "absent")
		return nil, false
	case errors.Is(err, ErrCorrupt):
		s.dropCorrupt(ctx, kind, key, err)
		return nil, false
	default:
		s.logger.Warn().Err(err).Str("kind", kind).Str("key", key).Msg("cache read failed")
		metrics.RecordCacheMiss(kind, "error")
		return nil, false
	}

	if e.Kind != kind || e.Key != key {
		metrics.RecordCacheMiss(kind, "key_mismatch")
		return nil, false
	}

	age := s.now().Sub(e.FetchedAt)
	if age >= s.TTL(kind) {
		metrics.RecordCacheMiss(kind, "expired")
		return nil, false
	}

	metrics.RecordCacheHit(kind)
	return e, true
}

// Put stores payload under (kind, key) with fetched_at = now
func (s *Store) Put(ctx context.Context, kind, key string, payload []byte) error {
	e := &Entry{
		Kind:      kind,
		Key:       key,
		Payload:   payload,
		FetchedAt: s.now().UTC(),
		Source:    "live",
	}

	start := time.Now()
	err := s.backend.Write(ctx, e, s.TTL(kind))
	metrics.RecordCacheOperation("put", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("cache put %s/%s: %w", kind, key, err)
	}
	return nil
}

// GetJSON decodes a fresh entry into v. A payload that does not decode into
// v is treated as corrupt.
func (s *Store) GetJSON(ctx context.Context, kind, key string, v interface{}) (*Entry, bool) {
	e, ok := s.Get(ctx, kind, key)
	if !ok {
		return nil, false
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		s.dropCorrupt(ctx, kind, key, fmt.Errorf("%w: %v", ErrCorrupt, err))
		return nil, false
	}
	return e, true
}

// PutJSON encodes v and stores it
func (s *Store) PutJSON(ctx context.Context, kind, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s/%s: %w", kind, key, err)
	}
	return s.Put(ctx, kind, key, data)
}

// Forget removes the given keys of kind, or the whole kind when no key is given
func (s *Store) Forget(ctx context.Context, kind string, keys ...string) error {
	if len(keys) == 0 {
		if err := s.backend.DeleteKind(ctx, kind); err != nil {
			return fmt.Errorf("cache forget %s: %w", kind, err)
		}
		return nil
	}
	for _, key := range keys {
		if err := s.backend.Delete(ctx, kind, key); err != nil && !errors.Is(err, ErrNotExist) {
			return fmt.Errorf("cache forget %s/%s: %w", kind, key, err)
		}
	}
	return nil
}

func (s *Store) dropCorrupt(ctx context.Context, kind, key string, cause error) {
	s.logger.Warn().Err(cause).Str("kind", kind).Str("key", key).Msg("dropping corrupt cache entry")
	metrics.RecordCacheMiss(kind, "corrupt")
	if err := s.backend.Delete(ctx, kind, key); err != nil && !errors.Is(err, ErrNotExist) {
		s.logger.Warn().Err(err).Str("kind", kind).Str("key", key).Msg("failed to delete corrupt cache entry")
	}
}
