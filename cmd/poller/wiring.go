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
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/printradar/pkg/alerts"
	"github.com/carverauto/printradar/pkg/fleet"
	"github.com/carverauto/printradar/pkg/inventory"
	"github.com/carverauto/printradar/pkg/localcounter"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/normalize"
	"github.com/carverauto/printradar/pkg/probe"
	"github.com/carverauto/printradar/pkg/sink"
	"github.com/carverauto/printradar/pkg/tenant"
)

const stopSlack = 5 * time.Second

var errTenantMismatch = errors.New("tenant_id does not match collector certificate")

type application struct {
	service   *fleet.Service
	scheduler *fleet.Scheduler
	window    *alerts.Window
}

// resolveIdentity returns the tenant this poller polls for and the collector
// it reports as. A collector certificate takes precedence over the hostname.
func resolveIdentity(ctx context.Context, cfg *fleet.Config) (*tenant.Info, error) {
	if cfg.CollectorCert == "" {
		return &tenant.Info{TenantID: cfg.TenantID, CollectorID: fleet.CollectorHostname(ctx)}, nil
	}

	info, err := tenant.FromCertFile(cfg.CollectorCert)
	if err != nil {
		return nil, err
	}

	if cfg.TenantID != "" && cfg.TenantID != info.TenantID {
		return nil, fmt.Errorf("%w: %q != %q", errTenantMismatch, cfg.TenantID, info.TenantID)
	}

	return info, nil
}

// backends are the storage and messaging endpoints selected by config.
type backends struct {
	source     inventory.Source
	store      sink.Sink
	loader     sink.OpenAlertLoader
	nc         *nats.Conn
	dispatcher *sink.Dispatcher
	closers    []fleet.ServiceOption
}

func openBackends(ctx context.Context, cfg *fleet.Config, log logger.Logger) (*backends, error) {
	b := &backends{}

	var pgStore *sink.Postgres

	if cfg.Postgres != nil {
		pool, err := sink.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}

		pgStore = sink.NewPostgres(pool, log)
		b.closers = append(b.closers, fleet.WithCloser("postgres", func(context.Context) error {
			return pgStore.Close()
		}))

		if len(cfg.Devices) == 0 {
			b.source = inventory.NewPostgres(pool)
		}
	}

	if b.source == nil {
		static, err := inventory.NewStatic(cfg.Devices)
		if err != nil {
			return nil, err
		}

		b.source = static
	}

	if pgStore != nil && !cfg.DryRun {
		b.store = pgStore
		b.loader = pgStore
	} else {
		mem := sink.NewMemory()
		b.store = mem
		b.loader = mem
	}

	if cfg.NATS == nil || cfg.DryRun {
		return b, nil
	}

	nc, err := sink.ConnectNATS(cfg.NATS, log)
	if err != nil {
		return nil, err
	}

	dispatcher, err := sink.NewDispatcher(ctx, nc, cfg.NATS, log)
	if err != nil {
		nc.Close()

		return nil, err
	}

	b.nc = nc
	b.dispatcher = dispatcher
	b.store = &sink.Notifying{Store: b.store, Dispatcher: dispatcher, Logger: log}
	b.closers = append(b.closers, fleet.WithCloser("nats", func(ctx context.Context) error {
		flushErr := dispatcher.Flush(ctx)

		return errors.Join(flushErr, nc.Drain())
	}))

	return b, nil
}

func build(ctx context.Context, cfg *fleet.Config, log logger.Logger) (*application, error) {
	id, err := resolveIdentity(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("identity", id.String()).
		Str("tenant_id", id.TenantID).
		Msg("Resolved poller identity")

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	window := alerts.NewWindow(cfg.SuppressionWindow.Std(),
		alerts.WithSweepInterval(cfg.SweepInterval.Std()),
		alerts.WithWindowLogger(log),
	)

	open, err := b.loader.OpenAlerts(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not load open alerts, suppression starts empty")
	} else {
		log.Info().Int("open_alerts", window.Seed(open)).Msg("Seeded suppression window")
	}

	evalOpts := []alerts.Option{alerts.WithLogger(log)}
	if b.dispatcher != nil {
		evalOpts = append(evalOpts, alerts.WithRecoveryHook(b.dispatcher.PublishRecovery))
	}

	evaluator := alerts.NewEvaluator(window, &cfg.Thresholds, evalOpts...)

	probeOpts := []probe.Option{
		probe.WithPingTimeout(cfg.PingTimeout.Std()),
		probe.WithLogger(log),
	}

	if cfg.DisablePing {
		probeOpts = append(probeOpts, probe.WithoutPing())
	}

	variables := cfg.VariableTable()

	prober, err := probe.New(probe.NewICMPPinger(cfg.PrivilegedICMP), probe.NewSNMPTransport(log), variables, probeOpts...)
	if err != nil {
		return nil, err
	}

	orchOpts := []fleet.Option{
		fleet.WithConcurrencyLimit(cfg.ConcurrencyLimit),
		fleet.WithProbeTimeout(cfg.ProbeTimeout.Std()),
		fleet.WithGracePeriod(cfg.GracePeriod.Std()),
		fleet.WithRateLimit(cfg.DispatchRate, cfg.DispatchBurst),
		fleet.WithCollectorID(id.CollectorID),
		fleet.WithLogger(log),
	}

	if cfg.NeedsLocalCounter() {
		orchOpts = append(orchOpts, fleet.WithLocalCounter(localcounter.NewCUPSPageLog(cfg.LocalCounter.PageLogPath)))
	}

	orch, err := fleet.New(prober, normalize.New(variables), evaluator, b.store, orchOpts...)
	if err != nil {
		return nil, err
	}

	scheduler := fleet.NewScheduler(orch, b.source,
		fleet.WithTenant(id.TenantID),
		fleet.WithInterval(cfg.PollInterval.Std()),
		fleet.WithSchedulerLogger(log),
	)

	svcOpts := append([]fleet.ServiceOption{fleet.WithServiceLogger(log)}, b.closers...)
	if b.nc != nil {
		svcOpts = append(svcOpts, fleet.WithListener(sink.NewResolutionListener(b.nc, window, id.TenantID, log)))
	}

	return &application{
		service:   fleet.NewService(scheduler, window, svcOpts...),
		scheduler: scheduler,
		window:    window,
	}, nil
}
