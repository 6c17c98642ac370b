package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/calendar"
	"mlb_daily/ingestion/internal/client"
	"mlb_daily/ingestion/internal/models"
)

var errNoWOBAInputs = errors.New("season line lacks wOBA inputs")

// recentLines is the cached recent_ops value
type recentLines struct {
	Last5  models.RecentOPS `json:"last_5"`
	Last10 models.RecentOPS `json:"last_10"`
}

// EnrichTeam returns the team's offensive composite and bullpen aggregate
// for the day. Both results are non-nil.
func (e *Enricher) EnrichTeam(ctx context.Context, teamID, season int, upstreamDate string) (*models.TeamSeason, *models.BullpenAggregate) {
	ts := e.once(fmt.Sprintf("team:%d:%d:%s", teamID, season, upstreamDate), func() interface{} {
		return e.enrichTeam(ctx, teamID, season, upstreamDate)
	}).(*models.TeamSeason)
	bp := e.once(fmt.Sprintf("bullpen:%d:%d:%s", teamID, season, upstreamDate), func() interface{} {
		return e.enrichBullpen(ctx, teamID, season, upstreamDate)
	}).(*models.BullpenAggregate)
	return ts, bp
}

func (e *Enricher) enrichTeam(ctx context.Context, teamID, season int, upstreamDate string) *models.TeamSeason {
	ts := &models.TeamSeason{TeamID: teamID, Season: season}

	bag, got, err := fetch(ctx, e, cache.KindTeamSeason, cache.Key(teamID, season, client.GroupHitting), func(ctx context.Context) (models.StatBag, error) {
		return e.stats.TeamSeason(ctx, teamID, season, client.GroupHitting)
	})
	var seasonAVG, seasonOPS *float64
	if err != nil {
		e.logger.Debug().Err(err).Int("team_id", teamID).Msg("team season unavailable")
		e.record(cache.KindTeamSeason, got, 0)
		ts.Provenance.Season = models.ProvenanceUnavailable
		ts.Provenance.Missing = append(ts.Provenance.Missing, "season", "woba")
	} else {
		e.record(cache.KindTeamSeason, got, 1)
		ts.Provenance.Season = got.source
		if v, ok := bag.Float("avg"); ok {
			ts.AVG = models.Ptr(models.Round(v, 3))
			seasonAVG = models.Ptr(v)
		}
		if v, ok := bag.Float("ops"); ok {
			ts.OPS = models.Ptr(models.Round(v, 3))
			seasonOPS = models.Ptr(v)
		}
		ts.Runs = intPtr(bag, "runs")
		ts.HR = intPtr(bag, "homeRuns")

		if woba, ok := e.teamWOBA(ctx, teamID, season, bag); ok {
			ts.WOBA = models.Ptr(models.Round(woba, 3))
		} else {
			ts.Provenance.Missing = append(ts.Provenance.Missing, "woba")
		}
	}

	pair, source := e.teamSplits(ctx, teamID, season, seasonAVG, seasonOPS)
	ts.VsLHP, ts.VsRHP = pair.Left, pair.Right
	ts.Provenance.SplitsSource = source

	recent, src, err := e.recentOPS(ctx, teamID, season, upstreamDate)
	ts.Provenance.RecentOPS = src
	if err != nil {
		ts.Provenance.Missing = append(ts.Provenance.Missing, "recent_ops")
	} else {
		ts.Last5OPS = models.Ptr(recent.Last5)
		ts.Last10OPS = models.Ptr(recent.Last10)
	}

	doc, docSource := e.StatcastDocument(ctx, season, upstreamDate)
	if q, ok := doc.Teams[teamID]; ok {
		ts.BarrelPct = models.Ptr(q.BarrelPct)
		ts.HardHitPct = models.Ptr(q.HardHitPct)
		if q.Source == models.SourceDefault {
			ts.Provenance.Statcast = models.SourceDefault
		} else {
			ts.Provenance.Statcast = docSource
		}
	} else {
		ts.Provenance.Statcast = models.ProvenanceUnavailable
		ts.Provenance.Missing = append(ts.Provenance.Missing, "statcast")
	}

	return ts
}

// teamWOBA reads the derived value from team_woba or computes it from the
// season line and stores it.
func (e *Enricher) teamWOBA(ctx context.Context, teamID, season int, bag models.StatBag) (float64, bool) {
	v, got, err := fetch(ctx, e, cache.KindTeamWOBA, cache.Key(teamID, season), func(context.Context) (float64, error) {
		in := models.WOBAInput{
			AB:      bag.IntOr("atBats", 0),
			H:       bag.IntOr("hits", 0),
			Doubles: bag.IntOr("doubles", 0),
			Triples: bag.IntOr("triples", 0),
			HR:      bag.IntOr("homeRuns", 0),
			BB:      bag.IntOr("baseOnBalls", 0),
			IBB:     bag.IntOr("intentionalWalks", 0),
			HBP:     bag.IntOr("hitByPitch", 0),
			SF:      bag.IntOr("sacFlies", 0),
		}
		woba, ok := models.WOBA(in)
		if !ok {
			return 0, errNoWOBAInputs
		}
		return woba, nil
	})
	e.record(cache.KindTeamWOBA, got, boolRows(err == nil))
	return v, err == nil
}

func (e *Enricher) teamSplits(ctx context.Context, teamID, season int, seasonAVG, seasonOPS *float64) (models.SplitPair, string) {
	var current acquired
	measured := false

	steps := []splitStep{
		{
			label: models.SourceMeasured,
			load: func(ctx context.Context) (models.SplitPair, error) {
				pair, got, err := fetch(ctx, e, cache.KindTeamSplits, cache.Key(teamID, season), func(ctx context.Context) (models.SplitPair, error) {
					return e.stats.TeamSplits(ctx, teamID, season)
				})
				current = got
				measured = err == nil && !pair.Empty()
				return pair, err
			},
		},
		{
			label: models.SourcePriorSeason,
			load: func(ctx context.Context) (models.SplitPair, error) {
				pair, _, err := fetch(ctx, e, cache.KindTeamSplits, cache.Key(teamID, season-1), func(ctx context.Context) (models.SplitPair, error) {
					return e.stats.TeamSplits(ctx, teamID, season-1)
				})
				return pair, err
			},
		},
		estimatedStep(seasonAVG, seasonOPS),
		leagueAverageStep(),
	}

	pair, source := splitChain(ctx, "team", steps)
	if measured {
		e.record(cache.KindTeamSplits, current, 1)
	} else {
		e.record(cache.KindTeamSplits, acquired{source: models.ProvenanceFallback}, 0)
	}
	return pair, source
}

func (e *Enricher) teamGameLog(ctx context.Context, teamID, season int, group string) ([]models.GameLine, acquired, error) {
	lines, got, err := fetch(ctx, e, cache.KindTeamGameLog, cache.Key(teamID, season, group), func(ctx context.Context) ([]models.GameLine, error) {
		return e.stats.TeamGameLog(ctx, teamID, season, group)
	})
	e.record(cache.KindTeamGameLog, got, boolRows(err == nil))
	return lines, got, err
}

// recentOPS aggregates the last 5 and 10 completed games within the
// look-back window ending the day before upstreamDate.
func (e *Enricher) recentOPS(ctx context.Context, teamID, season int, upstreamDate string) (recentLines, string, error) {
	v, got, err := fetch(ctx, e, cache.KindRecentOPS, cache.Key(teamID, upstreamDate), func(ctx context.Context) (recentLines, error) {
		lines, _, err := e.teamGameLog(ctx, teamID, season, client.GroupHitting)
		if err != nil {
			return recentLines{}, err
		}
		window, err := e.window(upstreamDate, lines)
		if err != nil {
			return recentLines{}, err
		}
		return recentLines{
			Last5:  compositeOPS(window, 5),
			Last10: compositeOPS(window, 10),
		}, nil
	})
	e.record(cache.KindRecentOPS, got, boolRows(err == nil))
	return v, got.source, err
}

// window returns game lines dated in [upstreamDate-RecentDays, upstreamDate-1],
// most recent first.
func (e *Enricher) window(upstreamDate string, lines []models.GameLine) ([]models.GameLine, error) {
	from, err := calendar.AddDays(upstreamDate, -e.opts.RecentDays)
	if err != nil {
		return nil, err
	}
	to, err := calendar.AddDays(upstreamDate, -1)
	if err != nil {
		return nil, err
	}

	var out []models.GameLine
	for _, l := range lines {
		if l.Date >= from && l.Date <= to {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].GamePk > out[j].GamePk
	})
	return out, nil
}

// compositeOPS sums up to n lines and computes OBP + SLG over the total
func compositeOPS(lines []models.GameLine, n int) models.RecentOPS {
	if len(lines) > n {
		lines = lines[:n]
	}
	var total models.BattingLine
	for _, l := range lines {
		total.Add(l.Batting)
	}
	out := models.RecentOPS{SampleSize: len(lines)}
	if ops, ok := total.OPS(); ok {
		out.OPS = models.Ptr(models.Round(ops, 3))
	}
	return out
}

// StatcastDocument returns the all-teams batted-ball document for the window
// ending the day before upstreamDate. An all-default result is not cached.
func (e *Enricher) StatcastDocument(ctx context.Context, season int, upstreamDate string) (*models.StatcastDocument, string) {
	type result struct {
		doc    *models.StatcastDocument
		source string
	}
	r := e.once("statcast:"+upstreamDate, func() interface{} {
		doc, source := e.statcastDocument(ctx, season, upstreamDate)
		return result{doc: doc, source: source}
	}).(result)
	return r.doc, r.source
}

func (e *Enricher) statcastDocument(ctx context.Context, season int, upstreamDate string) (*models.StatcastDocument, string) {
	key := cache.Key(upstreamDate, e.opts.StatcastWindowDays)

	var cached models.StatcastDocument
	if entry, ok := e.store.GetJSON(ctx, cache.KindStatcastAllTeams, key, &cached); ok && len(cached.Teams) > 0 {
		e.recorder.Record(cache.KindStatcastAllTeams, models.ProvenanceCache, cached.MeasuredCount(), entry.FetchedAt)
		return &cached, models.ProvenanceCache
	}

	doc, err := e.statcast.AllTeamsQuality(ctx, season, upstreamDate, e.opts.StatcastWindowDays)
	if doc == nil {
		doc = defaultStatcastDocument(season, e.opts.StatcastWindowDays)
	}
	if err != nil || doc.MeasuredCount() == 0 {
		e.logger.Warn().Err(err).Str("upstream_date", upstreamDate).Msg("statcast unavailable, using league defaults")
		e.recorder.Record(cache.KindStatcastAllTeams, models.ProvenanceFallback, 0, e.now().UTC())
		return doc, models.ProvenanceFallback
	}

	if err := e.store.PutJSON(ctx, cache.KindStatcastAllTeams, key, doc); err != nil {
		e.logger.Warn().Err(err).Str("kind", cache.KindStatcastAllTeams).Msg("cache write failed")
	}
	e.recorder.Record(cache.KindStatcastAllTeams, models.ProvenanceLive, doc.MeasuredCount(), e.now().UTC())
	return doc, models.ProvenanceLive
}

func defaultStatcastDocument(season, windowDays int) *models.StatcastDocument {
	doc := &models.StatcastDocument{
		Season:     season,
		WindowDays: windowDays,
		Teams:      make(map[int]models.StatcastQuality, 30),
	}
	for _, t := range models.LeagueTeams() {
		doc.Teams[t.TeamID] = models.DefaultStatcastQuality()
	}
	return doc
}

func boolRows(ok bool) int {
	if ok {
		return 1
	}
	return 0
}
