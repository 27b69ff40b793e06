package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/curatorhq/curator/internal/config"
)

type Scheduler struct {
	config   *config.SchedulerConfig
	logger   *zap.Logger
	pipeline *Pipeline
	ticker   *time.Ticker
	stopCh   chan struct{}
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, pipeline *Pipeline) *Scheduler {
	return &Scheduler{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.FetchInterval)
	if err != nil {
		s.logger.Error("Invalid fetch interval", zap.String("interval", s.config.FetchInterval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler", zap.String("fetch_interval", s.config.FetchInterval))

	s.ticker = time.NewTicker(interval)

	// Run first cycle immediately
	go func() {
		s.logger.Info("Running initial ingest cycle")
		s.pipeline.RunCycle(ctx)
	}()

	// Start periodic cycles
	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.pipeline.RunCycle(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Scheduler shutdown completed")
}
