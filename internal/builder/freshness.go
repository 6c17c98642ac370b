package builder

import (
	"sync"
	"time"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/models"
)

// kindTally accumulates every acquisition of one kind during a run
type kindTally struct {
	rows     int
	live     int
	cached   int
	fallback int
	latest   time.Time
}

// freshnessTracker implements enrich.Recorder for one run
type freshnessTracker struct {
	mu    sync.Mutex
	kinds map[string]*kindTally
	loc   *time.Location
	now   time.Time
}

func newFreshnessTracker(now time.Time, loc *time.Location) *freshnessTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &freshnessTracker{
		kinds: make(map[string]*kindTally),
		loc:   loc,
		now:   now,
	}
}

// Record notes one acquisition of kind
func (f *freshnessTracker) Record(kind, source string, rows int, fetchedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.kinds[kind]
	if !ok {
		t = &kindTally{}
		f.kinds[kind] = t
	}
	switch source {
	case models.ProvenanceLive:
		t.live++
	case models.ProvenanceCache:
		t.cached++
	default:
		t.fallback++
	}
	if source != models.ProvenanceFallback {
		t.rows += rows
	}
	if fetchedAt.After(t.latest) {
		t.latest = fetchedAt
	}
}

// source collapses a tally: any live wins, then cache, else fallback
func (t *kindTally) source() string {
	switch {
	case t.live > 0:
		return models.ProvenanceLive
	case t.cached > 0:
		return models.ProvenanceCache
	default:
		return models.ProvenanceFallback
	}
}

// Freshness renders the tracked kinds. The composite flag is true when the
// schedule, pitchers, teams and Statcast each contributed real rows.
func (f *freshnessTracker) Freshness(deadline bool) models.Freshness {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := models.Freshness{Kinds: make(map[string]models.KindFreshness, len(f.kinds)), Deadline: deadline}
	today := f.now.In(f.loc).Format("2006-01-02")
	for kind, t := range f.kinds {
		out.Kinds[kind] = models.KindFreshness{
			Rows:         t.rows,
			TodayUpdated: !t.latest.IsZero() && t.latest.In(f.loc).Format("2006-01-02") == today,
			Source:       t.source(),
		}
	}

	contributed := func(kinds ...string) bool {
		for _, k := range kinds {
			kf, ok := out.Kinds[k]
			if !ok || kf.Rows == 0 || kf.Source == models.ProvenanceFallback {
				return false
			}
		}
		return true
	}
	out.FourOfFour = !deadline &&
		contributed(cache.KindSchedule) &&
		contributed(cache.KindPitcherSeason, cache.KindPitcherSplits) &&
		contributed(cache.KindTeamSeason) &&
		contributed(cache.KindStatcastAllTeams)
	return out
}
