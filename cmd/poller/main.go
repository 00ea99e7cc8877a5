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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/carverauto/printradar/pkg/config"
	"github.com/carverauto/printradar/pkg/fleet"
	"github.com/carverauto/printradar/pkg/lifecycle"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/version"
)

var (
	errFailedToLoadConfig = errors.New("failed to load config")
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	// Parse command line flags
	configPath := flag.String("config", "/etc/printradar/poller.json", "Path to poller config file")
	envFile := flag.String("env-file", ".env", "Optional KEY=VALUE file loaded before the config")
	once := flag.Bool("once", false, "Run a single polling cycle, print its report and exit")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current())

		return nil
	}

	ctx := context.Background()

	// Step 1: Load configuration
	cfgLoader := config.NewConfig(nil)

	if err := cfgLoader.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	var cfg fleet.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	// Step 2: Create logger from loaded config
	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	pollerLogger, err := lifecycle.CreateComponentLogger("poller", logConfig)
	if err != nil {
		return err
	}

	pollerLogger.Info().Str("version", version.Current().String()).Msg("Starting printradar poller")

	// Step 3: Telemetry exporters, when configured
	setupTelemetry(ctx, &cfg, pollerLogger)

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			pollerLogger.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	// Step 4: Wire the pipeline
	app, err := build(ctx, &cfg, pollerLogger)
	if err != nil {
		return err
	}

	if *once {
		return runOnce(ctx, app)
	}

	return lifecycle.RunService(ctx, &lifecycle.ServiceOptions{
		ServiceName: cfg.ServiceName,
		Service:     app.service,
		StopTimeout: cfg.GracePeriod.Std() + cfg.ProbeTimeout.Std() + stopSlack,
		Logger:      pollerLogger,
	})
}

func runOnce(ctx context.Context, app *application) error {
	app.window.Start(ctx)

	report, cycleErr := app.scheduler.RunOnce(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopSlack)
	defer cancel()

	stopErr := app.service.Stop(stopCtx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(report); err != nil {
		return errors.Join(cycleErr, stopErr, err)
	}

	return errors.Join(cycleErr, stopErr)
}

func setupTelemetry(ctx context.Context, cfg *fleet.Config, log logger.Logger) {
	otelCfg := cfg.OTel
	if otelCfg == nil && cfg.Logging != nil && cfg.Logging.OTel.Enabled {
		otelCfg = &cfg.Logging.OTel
	}

	if otelCfg == nil || !otelCfg.Enabled {
		return
	}

	if _, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version.GetVersion(),
		OTel:           otelCfg,
	}); err != nil && !errors.Is(err, logger.ErrOTelMetricsDisabled) {
		log.Warn().Err(err).Msg("Failed to initialize OTel metrics")
	}

	if _, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version.GetVersion(),
		OTel:           otelCfg,
	}); err != nil && !errors.Is(err, logger.ErrOTelTracingDisabled) {
		log.Warn().Err(err).Msg("Failed to initialize OTel tracing")
	}
}
