package enrich

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/client"
	"mlb_daily/ingestion/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	errMissing = &client.UpstreamError{Kind: client.KindMissing, Endpoint: "fake", StatusCode: 404}
	errDown    = &client.UpstreamError{Kind: client.KindTransient, Endpoint: "fake", StatusCode: 500}
)

// fakeStats serves canned values keyed by id/season and counts calls
type fakeStats struct {
	mu    sync.Mutex
	calls map[string]int

	people        map[int]models.PitcherRef
	pitcherSeason map[string]models.StatBag
	pitcherLogs   map[string][]models.GameLine
	pitcherSplits map[string]models.SplitPair
	splitsErr     error
	rosters       map[int][]models.RosterEntry
	teamSeason    map[string]models.StatBag
	teamSplits    map[string]models.SplitPair
	teamLogs      map[string][]models.GameLine
}

func newFakeStats() *fakeStats {
	return &fakeStats{
		calls:         make(map[string]int),
		people:        make(map[int]models.PitcherRef),
		pitcherSeason: make(map[string]models.StatBag),
		pitcherLogs:   make(map[string][]models.GameLine),
		pitcherSplits: make(map[string]models.SplitPair),
		rosters:       make(map[int][]models.RosterEntry),
		teamSeason:    make(map[string]models.StatBag),
		teamSplits:    make(map[string]models.SplitPair),
		teamLogs:      make(map[string][]models.GameLine),
	}
}

func idSeason(id, season int) string { return fmt.Sprintf("%d/%d", id, season) }

func (f *fakeStats) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeStats) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStats) Roster(_ context.Context, teamID, _ int) ([]models.RosterEntry, error) {
	f.count("roster")
	r, ok := f.rosters[teamID]
	if !ok {
		return nil, errMissing
	}
	return r, nil
}

func (f *fakeStats) Person(_ context.Context, id int) (models.PitcherRef, error) {
	f.count("person")
	p, ok := f.people[id]
	if !ok {
		return models.PitcherRef{}, errMissing
	}
	return p, nil
}

func (f *fakeStats) PitcherSeason(_ context.Context, id, season int) (models.StatBag, error) {
	f.count("pitcher_season")
	b, ok := f.pitcherSeason[idSeason(id, season)]
	if !ok {
		return nil, errMissing
	}
	return b, nil
}

func (f *fakeStats) PitcherGameLog(_ context.Context, id, season int) ([]models.GameLine, error) {
	f.count("pitcher_game_log")
	l, ok := f.pitcherLogs[idSeason(id, season)]
	if !ok {
		return nil, errMissing
	}
	return l, nil
}

func (f *fakeStats) PitcherSplits(_ context.Context, id, season int) (models.SplitPair, error) {
	f.count("pitcher_splits")
	if f.splitsErr != nil {
		return models.SplitPair{}, f.splitsErr
	}
	p, ok := f.pitcherSplits[idSeason(id, season)]
	if !ok {
		return models.SplitPair{}, errMissing
	}
	return p, nil
}

func (f *fakeStats) TeamSeason(_ context.Context, teamID, season int, _ string) (models.StatBag, error) {
	f.count("team_season")
	b, ok := f.teamSeason[idSeason(teamID, season)]
	if !ok {
		return nil, errMissing
	}
	return b, nil
}

func (f *fakeStats) TeamSplits(_ context.Context, teamID, season int) (models.SplitPair, error) {
	f.count("team_splits")
	p, ok := f.teamSplits[idSeason(teamID, season)]
	if !ok {
		return models.SplitPair{}, errMissing
	}
	return p, nil
}

func (f *fakeStats) TeamGameLog(_ context.Context, teamID, season int, _ string) ([]models.GameLine, error) {
	f.count("team_game_log")
	l, ok := f.teamLogs[idSeason(teamID, season)]
	if !ok {
		return nil, errMissing
	}
	return l, nil
}

type fakeStatcast struct {
	mu    sync.Mutex
	calls int
	doc   *models.StatcastDocument
	err   error
}

func (f *fakeStatcast) AllTeamsQuality(_ context.Context, season int, _ string, windowDays int) (*models.StatcastDocument, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.doc == nil {
		return defaultStatcastDocument(season, windowDays), f.err
	}
	return f.doc, f.err
}

// recorded captures Recorder calls
type recorded struct {
	mu      sync.Mutex
	sources map[string][]string
}

func (r *recorded) Record(kind, source string, _ int, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sources == nil {
		r.sources = make(map[string][]string)
	}
	r.sources[kind] = append(r.sources[kind], source)
}

func (r *recorded) Sources(kind string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[kind]
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	backend, err := cache.NewFSBackend(t.TempDir())
	require.NoError(t, err)
	return cache.NewStore(backend)
}

func newTestEnricher(stats StatsSource, sc StatcastSource, store *cache.Store, rec Recorder) *Enricher {
	return New(stats, sc, store, DefaultOptions(), rec, zerolog.Nop())
}

func splitLine(avg, ops float64, sample int) *models.SplitLine {
	l := models.NewSplitLine(avg, ops, models.Ptr(sample), models.SourceMeasured)
	return &l
}
