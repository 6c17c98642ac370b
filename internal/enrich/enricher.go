// Package enrich assembles pitcher and team composites from the Stats API
// and Statcast, reading and writing through the cache and falling back
// step by step when upstream data is missing.
package enrich

import (
	"context"
	"sync"
	"time"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// StatsSource is the subset of the Stats API client enrichment uses
type StatsSource interface {
	Roster(ctx context.Context, teamID, season int) ([]models.RosterEntry, error)
	Person(ctx context.Context, personID int) (models.PitcherRef, error)
	PitcherSeason(ctx context.Context, pitcherID, season int) (models.StatBag, error)
	PitcherGameLog(ctx context.Context, pitcherID, season int) ([]models.GameLine, error)
	PitcherSplits(ctx context.Context, pitcherID, season int) (models.SplitPair, error)
	TeamSeason(ctx context.Context, teamID, season int, group string) (models.StatBag, error)
	TeamSplits(ctx context.Context, teamID, season int) (models.SplitPair, error)
	TeamGameLog(ctx context.Context, teamID, season int, group string) ([]models.GameLine, error)
}

// StatcastSource is the subset of the Statcast client enrichment uses
type StatcastSource interface {
	AllTeamsQuality(ctx context.Context, season int, asOf string, windowDays int) (*models.StatcastDocument, error)
}

// Recorder receives one call per data acquisition so a run can report
// freshness per kind.
type Recorder interface {
	Record(kind, source string, rows int, fetchedAt time.Time)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, int, time.Time) {}

// Options tune enrichment
type Options struct {
	StatcastWindowDays int
	CloserPolicy       string
	RecentDays         int // look-back for recent OPS and recent saves
	FatigueGames       int // team games considered for reliever fatigue
}

// DefaultOptions returns the standard enrichment tuning
func DefaultOptions() Options {
	return Options{
		StatcastWindowDays: 30,
		CloserPolicy:       models.CloserSeasonSaves,
		RecentDays:         15,
		FatigueGames:       3,
	}
}

// Enricher builds PitcherSeason, TeamSeason and BullpenAggregate values.
// One Enricher serves one run: results are memoized so doubleheaders and
// repeated starters are enriched once.
type Enricher struct {
	stats    StatsSource
	statcast StatcastSource
	store    *cache.Store
	opts     Options
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time

	sf   singleflight.Group
	mu   sync.Mutex
	memo map[string]interface{}
}

// New creates an Enricher. recorder may be nil.
func New(stats StatsSource, statcast StatcastSource, store *cache.Store, opts Options, recorder Recorder, logger zerolog.Logger) *Enricher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	def := DefaultOptions()
	if opts.StatcastWindowDays <= 0 {
		opts.StatcastWindowDays = def.StatcastWindowDays
	}
	if opts.CloserPolicy == "" {
		opts.CloserPolicy = def.CloserPolicy
	}
	if opts.RecentDays <= 0 {
		opts.RecentDays = def.RecentDays
	}
	if opts.FatigueGames <= 0 {
		opts.FatigueGames = def.FatigueGames
	}
	return &Enricher{
		stats:    stats,
		statcast: statcast,
		store:    store,
		opts:     opts,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		memo:     make(map[string]interface{}),
	}
}

// SetClock replaces time.Now, for tests
func (e *Enricher) SetClock(now func() time.Time) {
	e.now = now
}

// once runs fn at most once per key for the lifetime of the Enricher
func (e *Enricher) once(key string, fn func() interface{}) interface{} {
	e.mu.Lock()
	if v, ok := e.memo[key]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	v, _, _ := e.sf.Do(key, func() (interface{}, error) {
		v := fn()
		e.mu.Lock()
		e.memo[key] = v
		e.mu.Unlock()
		return v, nil
	})
	return v
}

// acquired describes where a value came from
type acquired struct {
	source    string
	fetchedAt time.Time
}

// fetch reads (kind, key) from the cache or calls load and writes the result
// through. Failures and missing data are never cached.
func fetch[T any](ctx context.Context, e *Enricher, kind, key string, load func(context.Context) (T, error)) (T, acquired, error) {
	var cached T
	if entry, ok := e.store.GetJSON(ctx, kind, key, &cached); ok {
		return cached, acquired{source: models.ProvenanceCache, fetchedAt: entry.FetchedAt}, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, acquired{source: models.ProvenanceFallback}, err
	}

	if err := e.store.PutJSON(ctx, kind, key, v); err != nil {
		e.logger.Warn().Err(err).Str("kind", kind).Str("key", key).Msg("cache write failed")
	}
	return v, acquired{source: models.ProvenanceLive, fetchedAt: e.now().UTC()}, nil
}

func (e *Enricher) record(kind string, a acquired, rows int) {
	e.recorder.Record(kind, a.source, rows, a.fetchedAt)
}
