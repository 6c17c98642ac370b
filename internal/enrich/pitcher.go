package enrich

import (
	"context"
	"errors"
	"fmt"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/client"
	"mlb_daily/ingestion/internal/models"
)

var errNoSeasonLine = errors.New("season line has no avg/ops")

// PitcherInfo returns name and throwing hand from cache or the Stats API.
// On failure the schedule's reference is returned unchanged.
func (e *Enricher) PitcherInfo(ctx context.Context, ref models.PitcherRef) (models.PitcherRef, string) {
	info, got, err := fetch(ctx, e, cache.KindPitcherInfo, cache.Key(ref.PitcherID), func(ctx context.Context) (models.PitcherRef, error) {
		return e.stats.Person(ctx, ref.PitcherID)
	})
	e.record(cache.KindPitcherInfo, got, boolRows(err == nil))
	if err != nil {
		e.logger.Debug().Err(err).Int("pitcher_id", ref.PitcherID).Msg("pitcher info unavailable")
		if ref.Throws == "" {
			ref.Throws = models.ThrowsUnknown
		}
		return ref, models.ProvenanceFallback
	}
	if info.FullName == "" {
		info.FullName = ref.FullName
	}
	return info, got.source
}

// EnrichPitcher returns the season composite of a probable starter. The
// result is always non-nil; unknown metrics are nil.
func (e *Enricher) EnrichPitcher(ctx context.Context, ref models.PitcherRef, season int) *models.PitcherSeason {
	key := fmt.Sprintf("pitcher:%d:%d", ref.PitcherID, season)
	return e.once(key, func() interface{} {
		return e.enrichPitcher(ctx, ref, season)
	}).(*models.PitcherSeason)
}

func (e *Enricher) enrichPitcher(ctx context.Context, ref models.PitcherRef, season int) *models.PitcherSeason {
	info, infoSource := e.PitcherInfo(ctx, ref)

	ps := &models.PitcherSeason{
		PitcherID: ref.PitcherID,
		FullName:  info.FullName,
		Throws:    info.Throws,
		Season:    season,
		Provenance: models.PitcherProvenance{
			Status: models.ProvenanceOK,
			Info:   infoSource,
		},
	}

	bag, got, err := fetch(ctx, e, cache.KindPitcherSeason, cache.Key(ref.PitcherID, season), func(ctx context.Context) (models.StatBag, error) {
		return e.stats.PitcherSeason(ctx, ref.PitcherID, season)
	})
	if err != nil {
		// Sentinel: identity only, every metric absent
		e.logger.Debug().Err(err).Int("pitcher_id", ref.PitcherID).Str("outcome", client.OutcomeOf(err).String()).Msg("pitcher season unavailable")
		e.record(cache.KindPitcherSeason, got, 0)
		ps.Provenance.Status = models.ProvenanceUnavailable
		ps.Provenance.Season = models.ProvenanceUnavailable
		ps.Provenance.Missing = []string{"season", "splits", "qs_rate"}
		return ps
	}
	e.record(cache.KindPitcherSeason, got, 1)
	ps.Provenance.Season = got.source

	applySeasonLine(ps, bag)

	if rate, src, ok := e.qualityStartRate(ctx, ref.PitcherID, season); ok {
		ps.QSRate = rate
		ps.Provenance.GameLog = src
	} else {
		ps.Provenance.GameLog = src
		ps.Provenance.Missing = append(ps.Provenance.Missing, "qs_rate")
	}

	seasonAVG, seasonOPS := floatPtr(bag, "avg"), floatPtr(bag, "ops")
	pair, source := e.pitcherSplits(ctx, ref.PitcherID, season, seasonAVG, seasonOPS)
	ps.VsLeft, ps.VsRight = pair.Left, pair.Right
	ps.Provenance.SplitsSource = source

	return ps
}

// applySeasonLine fills the basic and derived metrics from a season stat bag
func applySeasonLine(ps *models.PitcherSeason, bag models.StatBag) {
	ps.Wins = intPtr(bag, "wins")
	ps.Losses = intPtr(bag, "losses")
	ps.GamesStarted = intPtr(bag, "gamesStarted")

	ip, hasIP := bag.Innings("inningsPitched")
	if hasIP {
		ps.InningsPitched = models.Ptr(ip.String())
	}

	if era, ok := bag.Float("era"); ok {
		ps.ERA = models.Ptr(models.Round(era, 2))
	} else if er, ok := bag.Int("earnedRuns"); ok && hasIP {
		if v, ok := models.ERA(er, ip); ok {
			ps.ERA = models.Ptr(models.Round(v, 2))
		}
	}

	if whip, ok := bag.Float("whip"); ok {
		ps.WHIP = models.Ptr(models.Round(whip, 2))
	} else if hasIP {
		bb, okBB := bag.Int("baseOnBalls")
		h, okH := bag.Int("hits")
		if okBB && okH {
			if v, ok := models.WHIP(bb, h, ip); ok {
				ps.WHIP = models.Ptr(models.Round(v, 2))
			}
		}
	}

	hr, okHR := bag.Int("homeRuns")
	bb, okBB := bag.Int("baseOnBalls")
	k, okK := bag.Int("strikeOuts")
	hbp := bag.IntOr("hitByPitch", 0)
	if okHR && okBB && okK && hasIP {
		if v, ok := models.FIP(hr, bb, hbp, k, ip); ok {
			ps.FIP = models.Ptr(models.Round(v, 2))
		}
	}

	if bf, ok := bag.Int("battersFaced"); ok && okK && okBB {
		kRate, okKR := models.Rate(k, bf)
		bbRate, okBR := models.Rate(bb, bf)
		if okKR && okBR {
			ps.KPct = models.Ptr(models.Round(100*kRate, 1))
			ps.BBPct = models.Ptr(models.Round(100*bbRate, 1))
			ps.KMinusBBPct = models.Ptr(models.Round(100*(kRate-bbRate), 1))
		}
	}

	// Optional fields: only what the bag carries directly
	if v, ok := bag.Float("babip"); ok {
		ps.BABIP = models.Ptr(models.Round(v, 3))
	}
	if sm, ok := bag.Int("swingAndMisses"); ok {
		if pitches, ok := bag.Int("numberOfPitches"); ok {
			if r, ok := models.Rate(sm, pitches); ok {
				ps.SwStrPct = models.Ptr(models.Round(100*r, 1))
			}
		}
	}
	if v, ok := bag.Float("groundBallPercentage"); ok {
		ps.GBPct = models.Ptr(models.Round(pct(v), 1))
	}
	if v, ok := bag.Float("flyBallPercentage"); ok {
		ps.FBPct = models.Ptr(models.Round(pct(v), 1))
	}
}

// qualityStartRate computes QS / starts from the game log. ok is false when
// there is no game log or no starts.
func (e *Enricher) qualityStartRate(ctx context.Context, pitcherID, season int) (*float64, string, bool) {
	lines, got, err := e.pitcherGameLog(ctx, pitcherID, season)
	if err != nil {
		return nil, got.source, false
	}

	starts, qs := 0, 0
	for _, l := range lines {
		if l.GamesStarted == 0 {
			continue
		}
		starts++
		if l.IsQualityStart() {
			qs++
		}
	}
	rate, ok := models.Rate(qs, starts)
	if !ok {
		return nil, got.source, false
	}
	return models.Ptr(models.Round(rate, 3)), got.source, true
}

func (e *Enricher) pitcherGameLog(ctx context.Context, pitcherID, season int) ([]models.GameLine, acquired, error) {
	lines, got, err := fetch(ctx, e, cache.KindPitcherGameLog, cache.Key(pitcherID, season), func(ctx context.Context) ([]models.GameLine, error) {
		return e.stats.PitcherGameLog(ctx, pitcherID, season)
	})
	e.record(cache.KindPitcherGameLog, got, boolRows(err == nil))
	return lines, got, err
}

// pitcherSplits runs the fallback chain: current season, prior season,
// estimation from the season line, league average.
func (e *Enricher) pitcherSplits(ctx context.Context, pitcherID, season int, seasonAVG, seasonOPS *float64) (models.SplitPair, string) {
	var current acquired
	measured := false

	steps := []splitStep{
		{
			label: models.SourceMeasured,
			load: func(ctx context.Context) (models.SplitPair, error) {
				pair, got, err := fetch(ctx, e, cache.KindPitcherSplits, cache.Key(pitcherID, season), func(ctx context.Context) (models.SplitPair, error) {
					return e.stats.PitcherSplits(ctx, pitcherID, season)
				})
				current = got
				measured = err == nil && !pair.Empty()
				return pair, err
			},
		},
		{
			label: models.SourcePriorSeason,
			load: func(ctx context.Context) (models.SplitPair, error) {
				pair, _, err := fetch(ctx, e, cache.KindPitcherSplits, cache.Key(pitcherID, season-1), func(ctx context.Context) (models.SplitPair, error) {
					return e.stats.PitcherSplits(ctx, pitcherID, season-1)
				})
				return pair, err
			},
		},
		estimatedStep(seasonAVG, seasonOPS),
		leagueAverageStep(),
	}

	pair, source := splitChain(ctx, "pitcher", steps)
	if measured {
		e.record(cache.KindPitcherSplits, current, 1)
	} else {
		e.record(cache.KindPitcherSplits, acquired{source: models.ProvenanceFallback}, 0)
	}
	return pair, source
}

func intPtr(bag models.StatBag, key string) *int {
	if v, ok := bag.Int(key); ok {
		return models.Ptr(v)
	}
	return nil
}

func floatPtr(bag models.StatBag, key string) *float64 {
	if v, ok := bag.Float(key); ok {
		return models.Ptr(v)
	}
	return nil
}

// pct normalizes a rate that may arrive as a fraction or as points
func pct(v float64) float64 {
	if v <= 1 {
		return 100 * v
	}
	return v
}
