package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is the unit of work the scheduler drives on each tick.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler triggers pipeline runs on a cron spec. Runs never overlap:
// if a cycle is still going when the next tick fires, the tick is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *zap.Logger
	running chan struct{}
}

func NewScheduler(r Runner, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		runner:  r,
		logger:  logger,
		running: make(chan struct{}, 1),
	}
}

// Start registers the job and launches the cron loop. An initial run is
// kicked off immediately so the store has data before the first tick.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.runOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("cron", spec))

	go s.runOnce(ctx)
	return nil
}

// Stop halts the cron loop and waits for in-flight work. The startup run
// launched by Start is outside cron's job tracking, so Stop also drains
// the run slot to cover it.
func (s *Scheduler) Stop() {
	timeout := time.After(30 * time.Second)

	select {
	case <-s.cron.Stop().Done():
	case <-timeout:
		s.logger.Warn("Timed out waiting for scheduled jobs to stop")
		return
	}

	select {
	case s.running <- struct{}{}:
		<-s.running
	case <-timeout:
		s.logger.Warn("Timed out waiting for an in-flight run to stop")
		return
	}

	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		s.logger.Warn("Previous pipeline run still in progress, skipping tick")
		return
	}

	if err := s.runner.Run(ctx); err != nil {
		s.logger.Error("Scheduled pipeline run failed", zap.Error(err))
	}
}
