package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
	"github.com/DanielTromp/atlas/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler runs incremental syncs on a cron schedule.
// A tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	spaces   []string
	engine   driving.SyncEngine

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	lastRun time.Time
	lastErr error
}

// NewScheduler validates a standard five-field cron expression.
// Descriptors such as "@hourly" or "@every 15m" are accepted too.
func NewScheduler(expr string, spaces []string, engine driving.SyncEngine) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cron expression %q: %v", domain.ErrInvalidInput, expr, err)
	}
	return &Scheduler{
		expr:     expr,
		schedule: schedule,
		spaces:   spaces,
		engine:   engine,
	}, nil
}

// Next returns the first activation after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// LastRun returns when the last tick finished and its error.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := cronLogger{}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.tick(runCtx) }))
	c.Start()
	logger.Info("Scheduler started: %q, next run %s", s.expr, s.Next(time.Now()).Format(time.RFC3339))

	select {
	case <-ctx.Done():
	case <-stopCh:
	}

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	logger.Info("Scheduler stopped")
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.stopCh == nil {
		return nil
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	logger.Info("Scheduled incremental sync starting")
	stats, err := s.engine.IncrementalSync(ctx, s.spaces, nil)
	for _, st := range stats {
		logger.Info("Space %s: %d processed, %d skipped, %d failed",
			st.SpaceKey, st.PagesProcessed, st.PagesSkipped, st.PagesFailed)
	}
	if err != nil {
		logger.Error("Scheduled sync failed: %v", err)
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()
}

// cronLogger routes cron's own messages through the process logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.L().Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.L().Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
