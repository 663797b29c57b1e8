package maturity

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/invest-engine/invest"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "@every 5m"

// Scheduler runs the Sweeper on a cron schedule. A scheduled sweep that is
// still running when the next tick fires causes that tick to be skipped.
//
// USAGE:
//
//	scheduler := maturity.NewScheduler(sweeper, "@every 5m", logger)
//	if err := scheduler.Start(); err != nil { ... }
//	defer scheduler.Stop()
type Scheduler struct {
	sweeper  *Sweeper
	schedule string
	logger   *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewScheduler(sweeper *Sweeper, schedule string, logger *zap.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{sweeper: sweeper, schedule: schedule, logger: logger}
}

// Start registers the sweep job and starts the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.schedule, func() {
		// Errors are already logged and recorded by the sweeper.
		_, _ = s.sweeper.Sweep(ctx, invest.TriggerScheduled)
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron, s.cancel = c, cancel
	s.logger.Info("maturity scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop cancels a running sweep and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.cron, s.cancel = nil, nil
	s.logger.Info("maturity scheduler stopped")
}

// RunNow runs a manual sweep in the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context) (Summary, error) {
	return s.sweeper.Sweep(ctx, invest.TriggerManual)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
