package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mlb_daily/ingestion/internal/builder"
	"mlb_daily/ingestion/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrBusy is returned when a run is requested while another is in flight
var ErrBusy = errors.New("a build is already running")

// Runner builds one daily model
type Runner interface {
	Build(ctx context.Context, userDate, timezone string) (*builder.Result, error)
}

// Purger drops expired cache rows
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler triggers the daily build on a cron schedule evaluated in the
// user's timezone, and optionally purges expired cache rows on a ticker.
type Scheduler struct {
	cronExpr string
	timezone string
	runner   Runner
	logger   zerolog.Logger

	purger        Purger
	purgeInterval time.Duration

	cron     *cron.Cron
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	running  sync.Mutex
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cronExpr, timezone string, runner Runner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cronExpr: cronExpr,
		timezone: timezone,
		runner:   runner,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// WithPurger enables periodic cache housekeeping
func (s *Scheduler) WithPurger(p Purger, interval time.Duration) *Scheduler {
	s.purger = p
	s.purgeInterval = interval
	return s
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	loc, err := time.LoadLocation(s.timezone)
	if err != nil {
		return fmt.Errorf("failed to load scheduler timezone %q: %w", s.timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(loc))
	if _, err := s.cron.AddFunc(s.cronExpr, func() {
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrBusy) {
			s.logger.Error().Err(err).Msg("Scheduled build failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule daily build: %w", err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.cronExpr).
		Str("timezone", s.timezone).
		Msg("Daily build scheduled")

	if s.purger != nil && s.purgeInterval > 0 {
		s.ticker = time.NewTicker(s.purgeInterval)
		go s.purgeLoop(ctx)
		s.logger.Info().Dur("interval", s.purgeInterval).Msg("Cache purge started")
	}

	return nil
}

// Stop stops the scheduler and waits for a running build to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("Stopping scheduler...")

		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.ticker != nil {
			s.ticker.Stop()
		}

		close(s.stopChan)
		s.logger.Info().Msg("Scheduler stopped")
	})
}

// RunOnce builds today's model unless a build is already in flight
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.TryLock() {
		s.logger.Warn().Msg("Previous build still running, skipping trigger")
		return ErrBusy
	}
	defer s.running.Unlock()

	start := time.Now()
	res, err := s.runner.Build(ctx, "", s.timezone)
	if err != nil && res == nil {
		metrics.RecordError("scheduler", "build_failed")
		return err
	}

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.
		Str("path", res.Path).
		Int("games", res.Model.Summary.GameCount).
		Dur("duration", time.Since(start)).
		Msg("Scheduled build complete")
	return err
}

func (s *Scheduler) purgeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Context cancelled, stopping cache purge")
			return
		case <-s.stopChan:
			return
		case now := <-s.ticker.C:
			n, err := s.purger.PurgeExpired(ctx, now)
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to purge expired cache entries")
				continue
			}
			s.logger.Debug().Int64("rows", n).Msg("Expired cache entries purged")
		}
	}
}
