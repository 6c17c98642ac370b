// Package builder orchestrates one daily run: resolve the date, assemble the
// schedule, enrich every game and write the canonical model.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/calendar"
	"mlb_daily/ingestion/internal/enrich"
	"mlb_daily/ingestion/internal/metrics"
	"mlb_daily/ingestion/internal/models"
	"mlb_daily/ingestion/internal/schedule"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidRequest means the target date could not be resolved
	ErrInvalidRequest = errors.New("invalid build request")
	// ErrOutputIO means the model could not be written
	ErrOutputIO = errors.New("cannot write model")
	// ErrUpstreamUnreachable means the schedule could not be fetched; the
	// (empty) model was still written
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

// Upstream is everything the builder needs from the Stats API
type Upstream interface {
	enrich.StatsSource
	schedule.Source
}

// Options configure a Builder
type Options struct {
	OutputDir       string
	Concurrency     int
	Deadline        time.Duration
	LeagueZone      string
	CutoffHour      int
	Season          int // 0 derives the season from the upstream date
	Enrich          enrich.Options
	StatsAPIBaseURL string
	StatcastBaseURL string
}

// Result is a finished run
type Result struct {
	Model *models.CanonicalDailyModel
	Path  string
}

// Builder produces canonical daily models
type Builder struct {
	stats    Upstream
	statcast enrich.StatcastSource
	store    *cache.Store
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a Builder
func New(stats Upstream, statcast enrich.StatcastSource, store *cache.Store, opts Options, logger zerolog.Logger) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "models"
	}
	if opts.LeagueZone == "" {
		opts.LeagueZone = calendar.DefaultLeagueZone
	}
	return &Builder{
		stats:    stats,
		statcast: statcast,
		store:    store,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces time.Now, for tests
func (b *Builder) SetClock(now func() time.Time) {
	b.now = now
}

// Build runs the pipeline for userDate (empty = today) in timezone and
// writes the model. A model is written whenever the returned error is nil or
// wraps ErrUpstreamUnreachable.
func (b *Builder) Build(ctx context.Context, userDate, timezone string) (*Result, error) {
	start := b.now()

	target, err := calendar.Resolve(calendar.Request{
		UserDate:    userDate,
		Timezone:    timezone,
		LeagueZone:  b.opts.LeagueZone,
		CutoffHour:  b.opts.CutoffHour,
		RequestedAt: start,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	runCtx := ctx
	if b.opts.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.opts.Deadline)
		defer cancel()
	}

	runID := uuid.NewString()
	logger := b.logger.With().
		Str("run_id", runID).
		Str("upstream_date", target.UpstreamDate).
		Logger()

	season := b.opts.Season
	if season == 0 {
		season = target.Season()
	}

	logger.Info().
		Str("user_date", target.UserDate).
		Str("timezone", target.TZ).
		Bool("shifted", target.Shifted).
		Int("season", season).
		Bool("force_refresh", b.store.ForceRefresh()).
		Msg("Starting daily build")

	loc, err := time.LoadLocation(target.TZ)
	if err != nil {
		loc = time.UTC
	}
	tracker := newFreshnessTracker(start, loc)
	enr := enrich.New(b.stats, b.statcast, b.store, b.opts.Enrich, tracker, logger)
	enr.SetClock(b.now)

	warnings := append([]string{}, target.Warnings...)

	sched, schedErr := schedule.NewAssembler(b.stats, enr, b.store, logger).Assemble(runCtx, target.UpstreamDate)
	rows := len(sched.Games)
	if schedErr != nil {
		logger.Error().Err(schedErr).Msg("Schedule unavailable, writing empty model")
		warnings = append(warnings, "schedule unavailable: "+schedErr.Error())
		metrics.RecordError("builder", "schedule_unavailable")
	}
	tracker.Record(cache.KindSchedule, sched.Source, rows, sched.FetchedAt)

	blocks := b.enrichGames(runCtx, enr, sched.Games, season, target.UpstreamDate)

	deadline := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	if deadline {
		logger.Warn().Dur("deadline", b.opts.Deadline).Msg("Run deadline exceeded, model is partial")
		warnings = append(warnings, "run deadline exceeded; model is partial")
	}

	model := &models.CanonicalDailyModel{
		Version:     models.ModelVersion,
		Sport:       models.Sport,
		RunID:       runID,
		Date:        target.UpstreamDate,
		UserDate:    target.UserDate,
		Timezone:    target.TZ,
		Shifted:     target.Shifted,
		GeneratedAt: b.now().UTC().Truncate(time.Second),
		Sources: models.Sources{
			StatsAPI: b.opts.StatsAPIBaseURL,
			Statcast: b.opts.StatcastBaseURL,
			Season:   season,
		},
		Freshness: tracker.Freshness(deadline),
		Summary:   models.NewSummary(blocks),
		Warnings:  warnings,
		Games:     blocks,
	}

	duration := time.Since(start).Seconds()
	if err := model.Validate(); err != nil {
		metrics.RecordBuild("error", duration, len(blocks), model.Summary.TBDRate, false)
		return nil, fmt.Errorf("%w: %v", ErrOutputIO, err)
	}

	path, err := WriteModel(b.opts.OutputDir, model)
	if err != nil {
		metrics.RecordBuild("error", duration, len(blocks), model.Summary.TBDRate, false)
		logger.Error().Err(err).Msg("Failed to write model")
		return nil, err
	}

	status := "success"
	if schedErr != nil || deadline {
		status = "partial"
	}
	metrics.RecordBuild(status, duration, len(blocks), model.Summary.TBDRate, model.Freshness.FourOfFour)

	logger.Info().
		Str("path", path).
		Int("games", model.Summary.GameCount).
		Float64("tbd_rate", model.Summary.TBDRate).
		Bool("four_of_four", model.Freshness.FourOfFour).
		Float64("duration_s", duration).
		Msg("Daily model written")

	res := &Result{Model: model, Path: path}
	if schedErr != nil && !deadline {
		return res, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, schedErr)
	}
	return res, nil
}

// enrichGames fans out per game with at most Concurrency games in flight
func (b *Builder) enrichGames(ctx context.Context, enr *enrich.Enricher, games []models.Game, season int, upstreamDate string) []models.GameBlock {
	blocks := make([]models.GameBlock, len(games))

	g := new(errgroup.Group)
	g.SetLimit(b.opts.Concurrency)
	for i := range games {
		i := i
		g.Go(func() error {
			blocks[i] = b.gameBlock(ctx, enr, games[i], season, upstreamDate)
			return nil
		})
	}
	_ = g.Wait()

	return blocks
}

func (b *Builder) gameBlock(ctx context.Context, enr *enrich.Enricher, game models.Game, season int, upstreamDate string) models.GameBlock {
	block := models.GameBlock{
		ID:           game.GameID,
		StartInstant: game.StartInstant.UTC(),
		Venue:        game.Venue,
		Status:       game.Status,
		Provenance:   models.GameProvenance{Missing: []string{}},
	}

	block.Pitchers.Home = pitcherBlock(ctx, enr, game.ProbableHome, season)
	block.Pitchers.Away = pitcherBlock(ctx, enr, game.ProbableAway, season)
	block.Home = teamBlock(ctx, enr, game.Home, season, upstreamDate)
	block.Away = teamBlock(ctx, enr, game.Away, season, upstreamDate)

	addMissing := func(prefix string, fields []string) {
		for _, f := range fields {
			block.Provenance.Missing = append(block.Provenance.Missing, prefix+"."+f)
		}
	}
	for side, p := range map[string]models.PitcherBlock{"home": block.Pitchers.Home, "away": block.Pitchers.Away} {
		if !p.IsTBD() {
			addMissing("pitchers."+side, p.Provenance.Missing)
		}
	}
	for side, t := range map[string]models.TeamBlock{"home": block.Home, "away": block.Away} {
		addMissing(side+".season", t.Season.Provenance.Missing)
		addMissing(side+".bullpen", t.Bullpen.Missing)
	}
	sort.Strings(block.Provenance.Missing)

	return block
}

// pitcherBlock enriches an announced starter; TBD is terminal and never enriched
func pitcherBlock(ctx context.Context, enr *enrich.Enricher, ref *models.PitcherRef, season int) models.PitcherBlock {
	if ref == nil {
		return models.TBDPitcher()
	}
	return models.NewPitcherBlock(enr.EnrichPitcher(ctx, *ref, season))
}

func teamBlock(ctx context.Context, enr *enrich.Enricher, team models.Team, season int, upstreamDate string) models.TeamBlock {
	ts, bp := enr.EnrichTeam(ctx, team.TeamID, season, upstreamDate)
	return models.TeamBlock{Team: team, Season: ts, Bullpen: bp}
}
