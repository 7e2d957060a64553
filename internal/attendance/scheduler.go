package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
)

const (
	// DefaultSweepDelay is how long after the window closes the daily sweep runs.
	DefaultSweepDelay = 5 * time.Minute

	scheduledSweepTimeout = 5 * time.Minute
	secondsPerDay         = 24 * 60 * 60
)

// CronSpec returns the six-field cron expression ("sec min hour * * *") that
// fires delay after the window end, wrapping past midnight.
func CronSpec(window WindowSpec, delay time.Duration) string {
	secs := (window.End.minutes()*60 + int(delay/time.Second)) % secondsPerDay
	if secs < 0 {
		secs += secondsPerDay
	}
	return fmt.Sprintf("%d %d %d * * *", secs%60, (secs/60)%60, secs/3600)
}

// Scheduler runs the absence sweep once a day after the window closes.
type Scheduler struct {
	sweeper    *Sweeper
	identities database.IdentityReader
	window     WindowSpec
	delay      time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler creates a stopped scheduler. A delay of zero or less uses DefaultSweepDelay.
func NewScheduler(sweeper *Sweeper, identities database.IdentityReader, window WindowSpec, delay time.Duration, logger *zap.Logger) *Scheduler {
	if delay <= 0 {
		delay = DefaultSweepDelay
	}
	return &Scheduler{
		sweeper:    sweeper,
		identities: identities,
		window:     window,
		delay:      delay,
		logger:     logging.OrNop(logger),
		now:        time.Now,
	}
}

// Spec returns the cron expression the scheduler registers.
func (s *Scheduler) Spec() string {
	return CronSpec(s.window, s.delay)
}

// Start registers the daily job in the window's time zone and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.NewWithLocation(s.window.location())
	if err := c.AddFunc(s.Spec(), s.runScheduled); err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("absence sweep scheduled",
		zap.String("cron", s.Spec()),
		zap.String("timezone", s.window.location().String()))
	return nil
}

// Stop halts the cron loop. Running jobs are not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), scheduledSweepTimeout)
	defer cancel()
	if _, err := s.RunOnce(ctx, s.now()); err != nil {
		s.logger.Error("scheduled sweep failed", zap.Error(err))
	}
}

// RunOnce is the body of the daily job: it sweeps the day whose window closed
// delay ago, and does nothing when that window is still open.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (int, error) {
	day := Today(now.Add(-s.delay), s.window)
	if state := Classify(now, s.window, day); state != WindowAfter {
		s.logger.Info("skipping sweep, window not closed",
			zap.Stringer("day", day),
			zap.String("window_state", string(state)))
		return 0, nil
	}

	identities, err := s.identities.ListIdentities(ctx, database.IdentityFilter{})
	if err != nil {
		return 0, fmt.Errorf("load identities: %w", err)
	}
	return s.sweeper.SweepTriggered(ctx, TriggerSchedule, day, identities)
}
