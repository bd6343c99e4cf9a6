// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/conthop/backend/internal/app/metrics"
	"github.com/conthop/backend/internal/logging"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to the Job interface.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f JobFunc) Name() string { return f.JobName }

func (f JobFunc) Run(ctx context.Context) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx)
}

// Scheduler dispatches jobs on cron specs. Runs of the same job never
// overlap.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
	log  *logging.Logger
	now  func() time.Time
}

// NewScheduler creates a scheduler in loc. A nil loc uses UTC.
func NewScheduler(loc *time.Location, log *logging.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logging.New("jobs", "info", "json")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:  ctx,
		stop: cancel,
		log:  log,
		now:  time.Now,
	}
}

// Add registers job under a cron expression. An empty expression leaves the job disabled.
func (s *Scheduler) Add(schedule string, job Job) error {
	if schedule == "" {
		s.log.WithField("job", job.Name()).Info("scheduled job disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Dispatch(s.ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), schedule, err)
	}
	s.log.WithField("job", job.Name()).WithField("schedule", schedule).Info("scheduled job registered")
	return nil
}

// Dispatch runs job once and records its outcome.
func (s *Scheduler) Dispatch(ctx context.Context, job Job) error {
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	start := s.now()
	err := job.Run(ctx)
	metrics.RecordJobRun(job.Name(), s.now().Sub(start), err == nil)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("job", job.Name()).Warn("scheduled job failed")
		return err
	}
	s.log.WithContext(ctx).WithField("job", job.Name()).Debug("scheduled job finished")
	return nil
}

// Len reports the number of registered entries.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

// Start begins dispatching in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels running jobs and waits for them up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stop()
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduled jobs still running at shutdown")
	}
}
