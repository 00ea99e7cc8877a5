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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/printradar/pkg/logger"
)

const defaultStopTimeout = 10 * time.Second

var errServiceStopTimeout = errors.New("timed out stopping service")

// Service is a long-running component with an explicit start and stop.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServiceOptions configures RunService.
type ServiceOptions struct {
	ServiceName string
	Service     Service
	StopTimeout time.Duration
	Logger      logger.Logger
}

// RunService starts the service and blocks until the context is cancelled,
// SIGINT/SIGTERM is received, or Start returns an error. The service is then
// stopped within StopTimeout.
func RunService(ctx context.Context, opts *ServiceOptions) error {
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	log := opts.Logger

	startErr := make(chan error, 1)

	go func() {
		startErr <- opts.Service.Start(ctx)
	}()

	var runErr error

	select {
	case <-ctx.Done():
		if log != nil {
			log.Info().Str("service", opts.ServiceName).Msg("Shutdown signal received")
		}
	case err := <-startErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("%s failed: %w", opts.ServiceName, err)
		}
	}

	timeout := opts.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errServiceStopTimeout
		}

		runErr = errors.Join(runErr, fmt.Errorf("failed to stop %s: %w", opts.ServiceName, err))
	}

	if log != nil {
		log.Info().Str("service", opts.ServiceName).Msg("Service stopped")
	}

	return runErr
}
