// Package defaulter runs the periodic sweep that persists the missed
// classification of overdue doses.
package defaulter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Marker persists Missed for every overdue pending dose and reports how many
// subjects and doses changed.
type Marker interface {
	MarkMissed(ctx context.Context) (subjects, doses int, err error)
}

// Sweeper runs a Marker on a cron schedule evaluated in the facility's time
// zone.
type Sweeper struct {
	marker  Marker
	spec    string
	loc     *time.Location
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	c       *cron.Cron
	cancel  context.CancelFunc
	lastRun time.Time
}

// NewSweeper returns a sweeper for spec, a standard five-field cron
// expression. An empty spec yields a sweeper whose Start is a no-op.
func NewSweeper(marker Marker, spec string, loc *time.Location, logger zerolog.Logger) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Sweeper{
		marker:  marker,
		spec:    spec,
		loc:     loc,
		timeout: 10 * time.Minute,
		logger:  logger.With().Str("component", "defaulter").Logger(),
	}
}

// Start registers the sweep and starts the cron loop. ctx bounds every run.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.spec == "" {
		s.logger.Info().Msg("defaulter sweep disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return fmt.Errorf("defaulter sweep already started")
	}

	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
		cron.WithLogger(cronLogger{s.logger}),
	)
	runCtx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid sweep spec %q: %w", s.spec, err)
	}
	s.c, s.cancel = c, cancel
	c.Start()

	s.logger.Info().Str("spec", s.spec).Str("timezone", s.loc.String()).Msg("defaulter sweep scheduled")
	return nil
}

// Stop halts the cron loop and waits for a running sweep until ctx expires.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("defaulter sweep did not finish before shutdown")
	}
	cancel()
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	subjects, doses, err := s.marker.MarkMissed(ctx)
	if err != nil {
		s.logger.Error().Err(err).
			Int("subjects", subjects).
			Dur("elapsed", time.Since(start)).
			Msg("defaulter sweep failed")
		return
	}

	s.mu.Lock()
	s.lastRun = start
	s.mu.Unlock()

	s.logger.Info().
		Int("subjects", subjects).
		Int("doses", doses).
		Dur("elapsed", time.Since(start)).
		Msg("defaulter sweep completed")
}

// LastRun is the start time of the most recent successful sweep.
func (s *Sweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
