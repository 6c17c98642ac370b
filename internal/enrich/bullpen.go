package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/client"
	"mlb_daily/ingestion/internal/models"

	"golang.org/x/sync/errgroup"
)

// relieverFanout bounds concurrent per-reliever lookups; the HTTP limiter
// still applies underneath.
const relieverFanout = 8

// reliever is one bullpen arm with its season line
type reliever struct {
	entry models.RosterEntry
	bag   models.StatBag
	log   []models.GameLine
	// logErr is set when the game log could not be read
	logErr error
}

func (r *reliever) saves() int { return r.bag.IntOr("saves", 0) }
func (r *reliever) holds() int { return r.bag.IntOr("holds", 0) }

// isReliever applies the games-started share heuristic
func isReliever(bag models.StatBag) bool {
	games, ok := bag.Int("gamesPitched")
	if !ok {
		games, ok = bag.Int("gamesPlayed")
	}
	if !ok || games <= 0 {
		return false
	}
	return float64(bag.IntOr("gamesStarted", 0))/float64(games) < 0.5
}

func (e *Enricher) enrichBullpen(ctx context.Context, teamID, season int, upstreamDate string) *models.BullpenAggregate {
	key := cache.Key(teamID, upstreamDate)

	var cached models.BullpenAggregate
	if entry, ok := e.store.GetJSON(ctx, cache.KindBullpen, key, &cached); ok {
		cached.Provenance = models.ProvenanceCache
		e.recorder.Record(cache.KindBullpen, models.ProvenanceCache, cached.RelieverCount, entry.FetchedAt)
		return &cached
	}

	bp := &models.BullpenAggregate{TeamID: teamID, Season: season, Provenance: models.ProvenanceLive}

	roster, got, err := fetch(ctx, e, cache.KindTeamRoster, cache.Key(teamID, season), func(ctx context.Context) ([]models.RosterEntry, error) {
		return e.stats.Roster(ctx, teamID, season)
	})
	e.record(cache.KindTeamRoster, got, len(roster))
	if err != nil {
		e.logger.Debug().Err(err).Int("team_id", teamID).Msg("roster unavailable, bullpen omitted")
		bp.Provenance = models.ProvenanceFallback
		bp.Missing = []string{"roster"}
		e.recorder.Record(cache.KindBullpen, models.ProvenanceFallback, 0, e.now().UTC())
		return bp
	}

	relievers, failed := e.loadRelievers(ctx, roster, season)
	if failed > 0 {
		bp.Missing = append(bp.Missing, "reliever_season")
	}
	bp.RelieverCount = len(relievers)
	aggregateRelievers(bp, relievers)

	needLogs := e.opts.CloserPolicy == models.CloserRecentSaves
	teamGames, teamErr := e.lastTeamGames(ctx, teamID, season, upstreamDate)
	if teamErr == nil || needLogs {
		e.loadRelieverLogs(ctx, relievers, season)
	}

	closer := seasonCloser(relievers)
	if needLogs {
		if c, ok := e.recentCloser(relievers, upstreamDate); ok {
			closer = c
		}
	}
	if closer != nil {
		bp.CloserName = models.Ptr(closer.entry.FullName)
	}
	if setup := setupMan(relievers, closer); setup != nil {
		bp.SetupName = models.Ptr(setup.entry.FullName)
	}

	if teamErr != nil {
		bp.Missing = append(bp.Missing, "fatigue")
	} else if note, ok := fatigueNote(relievers, teamGames); ok {
		bp.FatigueNote = models.Ptr(note)
	} else {
		bp.Missing = append(bp.Missing, "fatigue")
	}

	if len(relievers) == 0 {
		bp.Provenance = models.ProvenanceFallback
		e.recorder.Record(cache.KindBullpen, models.ProvenanceFallback, 0, e.now().UTC())
		return bp
	}

	// Only complete aggregates are cached; partial ones are rebuilt next run
	if len(bp.Missing) == 0 {
		if err := e.store.PutJSON(ctx, cache.KindBullpen, key, bp); err != nil {
			e.logger.Warn().Err(err).Str("kind", cache.KindBullpen).Str("key", key).Msg("cache write failed")
		}
	}
	e.recorder.Record(cache.KindBullpen, models.ProvenanceLive, bp.RelieverCount, e.now().UTC())
	return bp
}

// loadRelievers fetches the season line of every rostered pitcher and keeps
// the relievers, ordered by player ID. failed counts pitchers whose line
// could not be read for a reason other than "no data".
func (e *Enricher) loadRelievers(ctx context.Context, roster []models.RosterEntry, season int) ([]*reliever, int) {
	var (
		mu     sync.Mutex
		out    []*reliever
		failed int
	)

	g := new(errgroup.Group)
	g.SetLimit(relieverFanout)
	for _, entry := range roster {
		if !entry.IsPitcher {
			continue
		}
		entry := entry
		g.Go(func() error {
			bag, _, err := fetch(ctx, e, cache.KindPitcherSeason, cache.Key(entry.PlayerID, season), func(ctx context.Context) (models.StatBag, error) {
				return e.stats.PitcherSeason(ctx, entry.PlayerID, season)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if client.OutcomeOf(err) == client.OutcomeFail {
					failed++
				}
				return nil
			}
			if isReliever(bag) {
				out = append(out, &reliever{entry: entry, bag: bag})
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].entry.PlayerID < out[j].entry.PlayerID })
	return out, failed
}

func (e *Enricher) loadRelieverLogs(ctx context.Context, relievers []*reliever, season int) {
	g := new(errgroup.Group)
	g.SetLimit(relieverFanout)
	for _, r := range relievers {
		r := r
		g.Go(func() error {
			r.log, _, r.logErr = e.pitcherGameLog(ctx, r.entry.PlayerID, season)
			return nil
		})
	}
	_ = g.Wait()
}

// aggregateRelievers sums the counting stats and recomputes the rates
func aggregateRelievers(bp *models.BullpenAggregate, relievers []*reliever) {
	var outs models.Innings
	var er, bb, k, h, hr, hbp, bf int
	for _, r := range relievers {
		ip, ok := r.bag.Innings("inningsPitched")
		if !ok {
			continue
		}
		outs += ip
		er += r.bag.IntOr("earnedRuns", 0)
		bb += r.bag.IntOr("baseOnBalls", 0)
		k += r.bag.IntOr("strikeOuts", 0)
		h += r.bag.IntOr("hits", 0)
		hr += r.bag.IntOr("homeRuns", 0)
		hbp += r.bag.IntOr("hitByPitch", 0)
		bf += r.bag.IntOr("battersFaced", 0)
	}

	if v, ok := models.ERA(er, outs); ok {
		bp.ERA = models.Ptr(models.Round(v, 2))
	}
	if v, ok := models.FIP(hr, bb, hbp, k, outs); ok {
		bp.FIP = models.Ptr(models.Round(v, 2))
	}
	if v, ok := models.WHIP(bb, h, outs); ok {
		bp.WHIP = models.Ptr(models.Round(v, 2))
	}
	if v, ok := models.Rate(k-bb, bf); ok {
		bp.KMinusBBPct = models.Ptr(models.Round(100*v, 1))
	}
}

// seasonCloser is the reliever with the most season saves, nil when nobody
// has a save. Ties go to the lower player ID.
func seasonCloser(relievers []*reliever) *reliever {
	var best *reliever
	for _, r := range relievers {
		if r.saves() == 0 {
			continue
		}
		if best == nil || r.saves() > best.saves() {
			best = r
		}
	}
	return best
}

// recentCloser picks the reliever with the most saves in the look-back
// window. ok is false on zero saves or a tie, or when any log is missing.
func (e *Enricher) recentCloser(relievers []*reliever, upstreamDate string) (*reliever, bool) {
	var best *reliever
	bestSaves, tied := 0, false
	for _, r := range relievers {
		if r.logErr != nil {
			return nil, false
		}
		recent, err := e.window(upstreamDate, r.log)
		if err != nil {
			return nil, false
		}
		saves := 0
		for _, l := range recent {
			saves += l.Saves
		}
		switch {
		case saves > bestSaves:
			best, bestSaves, tied = r, saves, false
		case saves == bestSaves && saves > 0:
			tied = true
		}
	}
	if best == nil || tied {
		return nil, false
	}
	return best, true
}

// setupMan is the reliever with the most holds other than the closer
func setupMan(relievers []*reliever, closer *reliever) *reliever {
	var best *reliever
	for _, r := range relievers {
		if r == closer || r.holds() == 0 {
			continue
		}
		if best == nil || r.holds() > best.holds() {
			best = r
		}
	}
	return best
}

// teamGame identifies one completed team game
type teamGame struct {
	date   string
	gamePk int
}

// lastTeamGames returns the team's most recent completed games before
// upstreamDate, up to FatigueGames of them.
func (e *Enricher) lastTeamGames(ctx context.Context, teamID, season int, upstreamDate string) ([]teamGame, error) {
	lines, _, err := e.teamGameLog(ctx, teamID, season, client.GroupHitting)
	if err != nil {
		return nil, err
	}
	recent, err := e.window(upstreamDate, lines)
	if err != nil {
		return nil, err
	}
	if len(recent) > e.opts.FatigueGames {
		recent = recent[:e.opts.FatigueGames]
	}
	games := make([]teamGame, 0, len(recent))
	for _, l := range recent {
		games = append(games, teamGame{date: l.Date, gamePk: l.GamePk})
	}
	return games, nil
}

// fatigueNote describes relievers who pitched in two or more of the team's
// last games. ok is false when there are no team games or a reliever's log
// is missing.
func fatigueNote(relievers []*reliever, games []teamGame) (string, bool) {
	if len(games) == 0 {
		return "", false
	}

	var tired []string
	for _, r := range relievers {
		if r.logErr != nil {
			return "", false
		}
		n := appearances(r.log, games)
		if n >= 2 {
			tired = append(tired, fmt.Sprintf("%s (%d)", r.entry.FullName, n))
		}
	}

	if len(tired) == 0 {
		return fmt.Sprintf("no relievers in 2+ of last %d games", len(games)), true
	}
	return fmt.Sprintf("%d in 2+ of last %d games: %s", len(tired), len(games), strings.Join(tired, ", ")), true
}

// appearances counts the games a reliever pitched in. Game logs without a
// gamePk are matched by date.
func appearances(log []models.GameLine, games []teamGame) int {
	n := 0
	for _, g := range games {
		for _, l := range log {
			if (g.gamePk != 0 && l.GamePk == g.gamePk) || (g.gamePk == 0 && l.Date == g.date) {
				n++
				break
			}
		}
	}
	return n
}
