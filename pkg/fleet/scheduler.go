/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/printradar/pkg/inventory"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
)

var (
	errSchedulerStarted = errors.New("scheduler already started")
	errInventoryLoad    = errors.New("failed to load inventory")
)

// CycleRunner runs one polling cycle. *Orchestrator implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context, devices []models.Device) (CycleReport, error)
}

// ReportFunc observes every finished cycle.
type ReportFunc func(report CycleReport, err error)

// Scheduler runs a cycle on every tick of the poll interval. A tick that
// arrives while the previous cycle is still running is skipped.
type Scheduler struct {
	runner   CycleRunner
	source   inventory.Source
	tenantID string
	interval time.Duration
	clock    Clock
	logger   logger.Logger
	onReport ReportFunc

	running atomic.Bool
	skipped atomic.Int64
	cycles  atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTenant limits every cycle to one tenant's devices.
func WithTenant(tenantID string) SchedulerOption {
	return func(s *Scheduler) {
		s.tenantID = tenantID
	}
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerClock sets the clock that drives the ticker.
func WithSchedulerClock(c Clock) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(log logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithReportFunc registers a callback for finished cycles.
func WithReportFunc(fn ReportFunc) SchedulerOption {
	return func(s *Scheduler) {
		s.onReport = fn
	}
}

// NewScheduler creates a Scheduler that polls the devices source returns.
func NewScheduler(runner CycleRunner, source inventory.Source, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		source:   source,
		interval: defaultPollInterval,
		clock:    realClock{},
		logger:   logger.NewTestLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs the first cycle immediately and then one per interval until
// ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errSchedulerStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.logger.Info().
		Str("tenant_id", s.tenantID).
		Dur("interval", s.interval).
		Msg("Starting fleet scheduler")

	s.wg.Add(1)

	go s.loop(ctx)

	return nil
}

// Stop cancels the running cycle and waits for it to return or for ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Int64("cycles", s.cycles.Load()).Msg("Fleet scheduler stopped")

		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running cycle: %w", ctx.Err())
	}
}

// Skipped returns how many ticks were dropped because a cycle was running.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Cycles returns how many cycles have completed.
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

// RunOnce loads the inventory and runs a single cycle synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleReport, error) {
	devices, err := s.source.ActiveDevices(ctx, s.tenantID)
	if err != nil {
		return CycleReport{}, fmt.Errorf("%w: %w", errInventoryLoad, err)
	}

	report, err := s.runner.RunCycle(ctx, devices)

	s.cycles.Add(1)

	return report, err
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn().Str("tenant_id", s.tenantID).Msg("Previous cycle still running, skipping tick")

		return
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		report, err := s.RunOnce(ctx)

		switch {
		case errors.Is(err, errInventoryLoad):
			s.logger.Error().Err(err).Str("tenant_id", s.tenantID).Msg("Skipping cycle")
		case err != nil:
			s.logger.Warn().Err(err).
				Int("succeeded", report.Succeeded).
				Int("failed", report.Failed).
				Int("abandoned", report.Abandoned).
				Msg("Cycle did not complete")
		}

		if s.onReport != nil {
			s.onReport(report, err)
		}
	}()
}
