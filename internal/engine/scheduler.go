package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler flushes the engine on a fixed interval.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	stopChan chan struct{}
}

// NewScheduler creates a periodic flush scheduler.
func NewScheduler(engine *Engine, flushInterval, timeout time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: flushInterval,
		timeout:  timeout,
		logger:   logger.With().Str("component", "flush-scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins the flush loop.
func (s *Scheduler) Start() {
	go s.run()
	s.logger.Info().Dur("interval", s.interval).Msg("Flush scheduler started")
}

// Stop stops the flush loop. It does not run a final flush; shutdown calls
// the ordinary flush path itself so errors surface there.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.logger.Info().Msg("Flush scheduler stopped")
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			if _, err := s.engine.Flush(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled flush failed")
			}
			cancel()
		case <-s.stopChan:
			return
		}
	}
}
