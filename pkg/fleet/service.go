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

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/printradar/pkg/alerts"
	"github.com/carverauto/printradar/pkg/logger"
)

// Listener is a background subscription with an explicit lifetime.
// *sink.ResolutionListener implements it.
type Listener interface {
	Start() error
	Stop()
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Service runs the scheduler together with the suppression window sweeper
// and an optional resolution listener. It implements lifecycle.Service.
type Service struct {
	scheduler *Scheduler
	window    *alerts.Window
	listener  Listener
	closers   []closer
	logger    logger.Logger

	stopOnce sync.Once
	stopErr  error
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithListener runs l for the lifetime of the service.
func WithListener(l Listener) ServiceOption {
	return func(s *Service) {
		s.listener = l
	}
}

// WithCloser registers fn to run on Stop after the scheduler has stopped.
// Closers run concurrently.
func WithCloser(name string, fn func(context.Context) error) ServiceOption {
	return func(s *Service) {
		s.closers = append(s.closers, closer{name: name, fn: fn})
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewService creates a Service.
func NewService(scheduler *Scheduler, window *alerts.Window, opts ...ServiceOption) *Service {
	s := &Service{
		scheduler: scheduler,
		window:    window,
		logger:    logger.NewTestLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start starts every component and blocks until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	if s.window != nil {
		s.window.Start(ctx)
	}

	if s.listener != nil {
		if err := s.listener.Start(); err != nil {
			return fmt.Errorf("failed to start resolution listener: %w", err)
		}
	}

	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	return ctx.Err()
}

// Stop stops the scheduler first so no new writes start, then the
// listener, the window and every closer.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})

	return s.stopErr
}

func (s *Service) stop(ctx context.Context) error {
	var errs error

	if err := s.scheduler.Stop(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	if s.listener != nil {
		s.listener.Stop()
	}

	if s.window != nil {
		s.window.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex

	for _, c := range s.closers {
		g.Go(func() error {
			if err := c.fn(gctx); err != nil {
				s.logger.Warn().Err(err).Str("component", c.name).Msg("Failed to close component")

				mu.Lock()
				errs = errors.Join(errs, fmt.Errorf("%s: %w", c.name, err))
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()

	return errs
}
