// Package schedule turns the upstream schedule for one date into game shells
// with fully resolved probable starters.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/models"

	"github.com/rs/zerolog"
)

// Source fetches the raw schedule
type Source interface {
	Schedule(ctx context.Context, upstreamDate string) ([]models.Game, error)
}

// PitcherResolver fills name and throwing hand for a probable starter
type PitcherResolver interface {
	PitcherInfo(ctx context.Context, ref models.PitcherRef) (models.PitcherRef, string)
}

// Result is an assembled schedule plus where it came from
type Result struct {
	Games     []models.Game
	Source    string
	FetchedAt time.Time
}

// Assembler builds the day's game shells
type Assembler struct {
	source   Source
	pitchers PitcherResolver
	store    *cache.Store
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAssembler creates an Assembler. pitchers may be nil, in which case
// probable starters keep the hand the schedule reported.
func NewAssembler(source Source, pitchers PitcherResolver, store *cache.Store, logger zerolog.Logger) *Assembler {
	return &Assembler{
		source:   source,
		pitchers: pitchers,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Assemble returns the games for upstreamDate ordered by start time. An off
// day is an empty, non-nil slice. The error is non-nil only when the
// schedule could not be obtained at all.
func (a *Assembler) Assemble(ctx context.Context, upstreamDate string) (Result, error) {
	res := Result{Source: models.ProvenanceCache}

	var games []models.Game
	entry, ok := a.store.GetJSON(ctx, cache.KindSchedule, upstreamDate, &games)
	if ok {
		res.FetchedAt = entry.FetchedAt
	} else {
		fetched, err := a.source.Schedule(ctx, upstreamDate)
		if err != nil {
			return Result{Games: []models.Game{}, Source: models.ProvenanceFallback}, fmt.Errorf("schedule %s: %w", upstreamDate, err)
		}
		games = fetched
		res.Source = models.ProvenanceLive
		res.FetchedAt = a.now().UTC()
		if err := a.store.PutJSON(ctx, cache.KindSchedule, upstreamDate, games); err != nil {
			a.logger.Warn().Err(err).Str("kind", cache.KindSchedule).Msg("cache write failed")
		}
	}
	if games == nil {
		games = []models.Game{}
	}

	for i := range games {
		g := &games[i]
		g.StartInstant = g.StartInstant.UTC()
		g.ProbableAway = a.resolve(ctx, g.ProbableAway)
		g.ProbableHome = a.resolve(ctx, g.ProbableHome)
	}

	sort.SliceStable(games, func(i, j int) bool {
		if !games[i].StartInstant.Equal(games[j].StartInstant) {
			return games[i].StartInstant.Before(games[j].StartInstant)
		}
		return games[i].GameID < games[j].GameID
	})

	a.logger.Info().
		Str("upstream_date", upstreamDate).
		Int("games", len(games)).
		Str("source", res.Source).
		Msg("Schedule assembled")

	res.Games = games
	return res, nil
}

// resolve leaves TBD (nil) untouched; it never blocks on an unannounced starter
func (a *Assembler) resolve(ctx context.Context, ref *models.PitcherRef) *models.PitcherRef {
	if ref == nil || a.pitchers == nil {
		return ref
	}
	if ref.Throws != "" && ref.Throws != models.ThrowsUnknown {
		return ref
	}
	info, _ := a.pitchers.PitcherInfo(ctx, *ref)
	if info.PitcherID == 0 {
		info.PitcherID = ref.PitcherID
	}
	return &info
}
