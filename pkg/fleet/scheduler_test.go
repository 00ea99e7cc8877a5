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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/printradar/pkg/inventory"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
)

// blockingRunner holds every cycle until release is closed or ctx ends.
type blockingRunner struct {
	calls   atomic.Int64
	release chan struct{}
	devices chan int
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		release: make(chan struct{}),
		devices: make(chan int, 16),
	}
}

func (r *blockingRunner) RunCycle(ctx context.Context, devices []models.Device) (CycleReport, error) {
	r.calls.Add(1)
	r.devices <- len(devices)

	select {
	case <-r.release:
		return CycleReport{Devices: len(devices), Succeeded: len(devices)}, nil
	case <-ctx.Done():
		return CycleReport{Devices: len(devices), Aborted: true}, ErrCycleAborted
	}
}

func setupSchedulerClock(t *testing.T, interval time.Duration) (*MockClock, chan time.Time) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	ticks := make(chan time.Time)

	ticker := NewMockTicker(ctrl)
	ticker.EXPECT().Chan().Return((<-chan time.Time)(ticks)).AnyTimes()
	ticker.EXPECT().Stop().Times(1)

	clock := NewMockClock(ctrl)
	clock.EXPECT().Ticker(interval).Return(ticker).Times(1)

	return clock, ticks
}

func staticSource(t *testing.T, n int) inventory.Source {
	t.Helper()

	src, err := inventory.NewStatic(testDevices(n))
	require.NoError(t, err)

	return src
}

func TestSchedulerSkipsTickWhileCycleRuns(t *testing.T) {
	clock, ticks := setupSchedulerClock(t, time.Minute)
	runner := newBlockingRunner()

	var reports atomic.Int64

	s := NewScheduler(runner, staticSource(t, 3),
		WithInterval(time.Minute),
		WithSchedulerClock(clock),
		WithSchedulerLogger(logger.NewTestLogger()),
		WithReportFunc(func(CycleReport, error) { reports.Add(1) }),
	)

	require.NoError(t, s.Start(context.Background()))

	// first cycle starts immediately
	assert.Equal(t, 3, <-runner.devices)

	ticks <- time.Now()

	require.Eventually(t, func() bool { return s.Skipped() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), runner.calls.Load())

	close(runner.release)
	require.Eventually(t, func() bool { return reports.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !s.running.Load() }, time.Second, 5*time.Millisecond)

	ticks <- time.Now()

	assert.Equal(t, 3, <-runner.devices)
	require.Eventually(t, func() bool { return reports.Load() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int64(2), s.Cycles())
	assert.Equal(t, int64(1), s.Skipped())
}

func TestSchedulerStopCancelsRunningCycle(t *testing.T) {
	clock, _ := setupSchedulerClock(t, time.Minute)
	runner := newBlockingRunner()

	var (
		mu      sync.Mutex
		lastErr error
	)

	s := NewScheduler(runner, staticSource(t, 1),
		WithInterval(time.Minute),
		WithSchedulerClock(clock),
		WithReportFunc(func(_ CycleReport, err error) {
			mu.Lock()
			lastErr = err
			mu.Unlock()
		}),
	)

	require.NoError(t, s.Start(context.Background()))
	<-runner.devices

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, s.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()

	require.ErrorIs(t, lastErr, ErrCycleAborted)
}

func TestSchedulerStartTwice(t *testing.T) {
	clock, _ := setupSchedulerClock(t, time.Minute)
	runner := newBlockingRunner()
	close(runner.release)

	s := NewScheduler(runner, staticSource(t, 1), WithInterval(time.Minute), WithSchedulerClock(clock))

	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), errSchedulerStarted)
	require.NoError(t, s.Stop(context.Background()))
}

func TestSchedulerRunOnceTenantScope(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := inventory.NewMockSource(ctrl)
	src.EXPECT().ActiveDevices(gomock.Any(), "acme").Return(testDevices(2), nil)

	runner := newBlockingRunner()
	close(runner.release)

	s := NewScheduler(runner, src, WithTenant("acme"))

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
}

func TestSchedulerRunOnceInventoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := inventory.NewMockSource(ctrl)
	src.EXPECT().ActiveDevices(gomock.Any(), "").Return(nil, errors.New("relation printers does not exist"))

	runner := newBlockingRunner()

	s := NewScheduler(runner, src)

	_, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, errInventoryLoad)
	assert.Zero(t, runner.calls.Load())
}
