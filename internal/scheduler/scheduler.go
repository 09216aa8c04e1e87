// Package scheduler runs the expiry sweep on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dhanushfitness/managementTool-sub002/internal/expiry"
)

// DefaultSchedule runs the sweep shortly after local midnight.
const DefaultSchedule = "5 0 * * *"

// ErrAlreadyRunning reports a trigger while a sweep is in progress.
var ErrAlreadyRunning = errors.New("sweep already running")

// Sweeper is the job being scheduled.
type Sweeper interface {
	Run(ctx context.Context) (expiry.Summary, error)
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithLocation evaluates the cron expression in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRunTimeout bounds a single sweep run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// Scheduler triggers the sweep on schedule and on demand, never overlapping runs.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	loc      *time.Location
	timeout  time.Duration
	logger   *log.Logger

	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a Scheduler. schedule is a standard five-field cron expression.
func New(sweeper Sweeper, schedule string, opts ...Option) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	s := &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		loc:      time.UTC,
		timeout:  30 * time.Minute,
		logger:   log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithLocation(s.loc))
	if _, err := s.cron.AddFunc(s.schedule, s.scheduled); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	return s, nil
}

// Start begins evaluating the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Printf("scheduler started (schedule=%q, location=%s)", s.schedule, s.loc)
}

// Stop halts the schedule, cancels an in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Printf("scheduler stopped")
}

// Next returns the next scheduled activation.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Trigger runs the sweep immediately. It fails with ErrAlreadyRunning rather than queueing.
func (s *Scheduler) Trigger(ctx context.Context) (expiry.Summary, error) {
	if !s.running.TryLock() {
		return expiry.Summary{}, ErrAlreadyRunning
	}
	defer s.running.Unlock()

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.sweeper.Run(runCtx)
}

func (s *Scheduler) scheduled() {
	summary, err := s.Trigger(s.ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.logger.Printf("skipping scheduled sweep: previous run still in progress")
	case err != nil:
		s.logger.Printf("scheduled sweep failed: %v", err)
	default:
		s.logger.Printf("scheduled sweep done: expired=%d notified=%d failed=%d", summary.Expired, summary.Notified, summary.Failed)
	}
}
