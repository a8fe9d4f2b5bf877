package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/landing-tracker/pkg/logger"
)

// Task is one cycle of a pipeline component
type Task interface {
	Name() string
	RunCycle(ctx context.Context) error
}

// Service runs a task on a fixed period
type Service struct {
	task     Task
	interval time.Duration
	logger   *logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.RWMutex
	lastRun  time.Time
	lastErr  error
	runCount int
}

// Status is the outcome of the most recent cycle
type Status struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"last_run"`
	LastErr  string        `json:"last_error,omitempty"`
	Runs     int           `json:"runs"`
}

// NewService creates a periodic runner for the task
func NewService(task Task, interval time.Duration, log *logger.Logger) *Service {
	return &Service{
		task:     task,
		interval: interval,
		logger:   log.Named(task.Name()),
		stopCh:   make(chan struct{}),
	}
}

// Start runs one cycle immediately and then one per interval in the background
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting service", logger.Duration("interval", s.interval))

	// Initial cycle
	s.runOnce(ctx)

	// Start background loop
	s.wg.Add(1)
	go s.loop(ctx)

	return nil
}

// Stop stops the background loop and waits for the running cycle to finish
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// Run starts the service and blocks until ctx is done
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Status returns the outcome of the most recent cycle
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Name:     s.task.Name(),
		Interval: s.interval,
		LastRun:  s.lastRun,
		Runs:     s.runCount,
	}
	if s.lastErr != nil {
		st.LastErr = s.lastErr.Error()
	}
	return st
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	start := time.Now()
	err := s.task.RunCycle(ctx)
	if err != nil {
		s.logger.Error("Cycle failed", logger.Error(err))
	} else {
		s.logger.Debug("Cycle complete", logger.Duration("took", time.Since(start)))
	}

	s.mu.Lock()
	s.lastRun = start
	s.lastErr = err
	s.runCount++
	s.mu.Unlock()
}

// Group runs several tasks one after another as a single task. A failing
// task does not stop the ones after it.
type Group struct {
	name  string
	tasks []Task
}

// NewGroup creates a task group
func NewGroup(name string, tasks ...Task) *Group {
	return &Group{name: name, tasks: tasks}
}

// Name identifies the group
func (g *Group) Name() string { return g.name }

// RunCycle runs every task once and returns the errors joined
func (g *Group) RunCycle(ctx context.Context) error {
	var errs []error
	for _, t := range g.tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.RunCycle(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}
