// Copyright 2025 Takhin Data, Inc.

// Package scheduler runs named background jobs on their own goroutines,
// generalizing the ticker-driven loops used throughout this broker (the
// consumer-group rebalance checker, the log cleaner) into one reusable
// component.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs one-shot and periodic named jobs.
type Scheduler struct {
	logger *zap.Logger

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// New creates a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Run launches fn once, immediately, on its own goroutine. A no-op after
// Shutdown.
func (s *Scheduler) Run(name string, fn func()) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		s.logger.Warn("ignoring job scheduled after shutdown", zap.String("job", name))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Schedule launches fn repeatedly, every period, until cancel is called.
// Shutdown does not stop a periodic job that is already running. A no-op
// after Shutdown.
func (s *Scheduler) Schedule(name string, period time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		s.logger.Warn("ignoring periodic job scheduled after shutdown", zap.String("job", name))
		return func() {}
	}
	stop := make(chan struct{})
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// Shutdown stops the scheduler from accepting any new job. Jobs already
// running are left to finish on their own; callers that need to wait for
// them use Wait.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
}

// Wait blocks until every job launched before Shutdown has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
