package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/yegors/landing-tracker/internal/runner"
	"github.com/yegors/landing-tracker/pkg/logger"
)

// Job is a task with its own period
type Job struct {
	Task   runner.Task
	Period time.Duration
}

type slot struct {
	job  Job
	next time.Time
}

// Sequencer runs jobs one at a time so no two components touch the store together
type Sequencer struct {
	slots  []*slot
	logger *logger.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a sequencer; jobs run in the order given
func New(jobs []Job, log *logger.Logger) (*Sequencer, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("sequencer has no jobs")
	}
	slots := make([]*slot, 0, len(jobs))
	for _, j := range jobs {
		if j.Period <= 0 {
			return nil, fmt.Errorf("job %s: period must be positive", j.Task.Name())
		}
		slots = append(slots, &slot{job: j})
	}
	return &Sequencer{
		slots:  slots,
		logger: log.Named("sequencer"),
		now:    time.Now,
		sleep:  sleepContext,
	}, nil
}

// Tick runs every job that is due at now, in order, and returns how many ran
func (s *Sequencer) Tick(ctx context.Context) int {
	ran := 0
	for _, sl := range s.slots {
		if err := ctx.Err(); err != nil {
			return ran
		}
		now := s.now()
		if now.Before(sl.next) {
			continue
		}

		start := now
		if err := sl.job.Task.RunCycle(ctx); err != nil {
			s.logger.Error("Job failed",
				logger.String("job", sl.job.Task.Name()),
				logger.Error(err))
		} else {
			s.logger.Debug("Job complete",
				logger.String("job", sl.job.Task.Name()),
				logger.Duration("took", s.now().Sub(start)))
		}
		sl.next = start.Add(sl.job.Period)
		ran++
	}
	return ran
}

// Next returns when the earliest job is due
func (s *Sequencer) Next() time.Time {
	next := s.slots[0].next
	for _, sl := range s.slots[1:] {
		if sl.next.Before(next) {
			next = sl.next
		}
	}
	return next
}

// Run ticks until ctx is done, sleeping until the next job is due
func (s *Sequencer) Run(ctx context.Context) error {
	s.logger.Info("Starting sequencer", logger.Int("jobs", len(s.slots)))
	for {
		s.Tick(ctx)
		if err := s.sleep(ctx, s.Next().Sub(s.now())); err != nil {
			s.logger.Info("Stopping sequencer")
			return nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
