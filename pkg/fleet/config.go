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
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/printradar/pkg/alerts"
	"github.com/carverauto/printradar/pkg/localcounter"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
	"github.com/carverauto/printradar/pkg/probe"
	"github.com/carverauto/printradar/pkg/sink"
)

var (
	errInventoryRequired   = errors.New("either devices or postgres must be configured")
	errInvalidConcurrency  = errors.New("concurrency_limit must not be negative")
	errInvalidDispatchRate = errors.New("dispatch_rate must not be negative")
)

const (
	defaultServiceName       = "printradar-poller"
	defaultPollInterval      = 5 * time.Minute
	defaultConcurrencyLimit  = 20
	defaultProbeTimeout      = 2 * time.Second
	defaultPingTimeout       = 2 * time.Second
	defaultGracePeriod       = 5 * time.Second
	defaultSuppressionWindow = alerts.DefaultWindow
	defaultSweepInterval     = 5 * time.Minute
)

// LocalCounterConfig locates the spooler page log.
type LocalCounterConfig struct {
	PageLogPath string `json:"page_log_path,omitempty"`
}

// Config is the poller service configuration.
type Config struct {
	ServiceName string `json:"service_name"`

	// TenantID scopes the poller to one tenant. Empty polls every tenant
	// unless CollectorCert names one.
	TenantID      string `json:"tenant_id,omitempty"`
	CollectorCert string `json:"collector_cert,omitempty"`

	PollInterval     models.Duration `json:"poll_interval"`
	ConcurrencyLimit int             `json:"concurrency_limit"`
	ProbeTimeout     models.Duration `json:"probe_timeout"`
	PingTimeout      models.Duration `json:"ping_timeout"`
	DisablePing      bool            `json:"disable_ping,omitempty"`
	PrivilegedICMP   bool            `json:"privileged_icmp,omitempty"`
	GracePeriod      models.Duration `json:"grace_period"`

	// DispatchRate caps device dispatches per second across the pool. Zero
	// disables the limit.
	DispatchRate  float64 `json:"dispatch_rate,omitempty"`
	DispatchBurst int     `json:"dispatch_burst,omitempty"`

	SuppressionWindow models.Duration         `json:"suppression_window"`
	SweepInterval     models.Duration         `json:"sweep_interval,omitempty"`
	Thresholds        alerts.StaticThresholds `json:"thresholds"`

	// Variables adds to or replaces entries of the default variable table.
	Variables    []probe.Variable   `json:"variables,omitempty"`
	LocalCounter LocalCounterConfig `json:"local_counter,omitempty"`

	Devices  []models.Device      `json:"devices,omitempty"`
	Postgres *sink.PostgresConfig `json:"postgres,omitempty"`
	NATS     *sink.NATSConfig     `json:"nats,omitempty"`

	// DryRun keeps results in memory instead of the database.
	DryRun bool `json:"dry_run,omitempty"`

	Logging *logger.Config     `json:"logging,omitempty"`
	OTel    *logger.OTelConfig `json:"otel,omitempty"`
}

// Validate implements config.Validator interface.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}

	if len(c.Devices) == 0 && c.Postgres == nil {
		return errInventoryRequired
	}

	if c.ConcurrencyLimit < 0 {
		return errInvalidConcurrency
	}

	if c.ConcurrencyLimit == 0 {
		c.ConcurrencyLimit = defaultConcurrencyLimit
	}

	if c.DispatchRate < 0 {
		return errInvalidDispatchRate
	}

	if c.DispatchRate > 0 && c.DispatchBurst <= 0 {
		c.DispatchBurst = c.ConcurrencyLimit
	}

	setDefaultDuration(&c.PollInterval, defaultPollInterval)
	setDefaultDuration(&c.ProbeTimeout, defaultProbeTimeout)
	setDefaultDuration(&c.PingTimeout, defaultPingTimeout)
	setDefaultDuration(&c.GracePeriod, defaultGracePeriod)
	setDefaultDuration(&c.SuppressionWindow, defaultSuppressionWindow)
	setDefaultDuration(&c.SweepInterval, defaultSweepInterval)

	if c.LocalCounter.PageLogPath == "" {
		c.LocalCounter.PageLogPath = localcounter.DefaultPageLogPath
	}

	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	if err := c.VariableTable().Validate(); err != nil {
		return fmt.Errorf("variables: %w", err)
	}

	return nil
}

// VariableTable returns the default table with the configured overrides.
func (c *Config) VariableTable() probe.VariableTable {
	return probe.DefaultVariables().Merge(c.Variables)
}

// NeedsLocalCounter reports whether any static device reads the spooler.
func (c *Config) NeedsLocalCounter() bool {
	if c.Postgres != nil {
		return true
	}

	for i := range c.Devices {
		if c.Devices[i].IsLocalCounterSource {
			return true
		}
	}

	return false
}

func setDefaultDuration(d *models.Duration, def time.Duration) {
	if *d <= 0 {
		*d = models.Duration(def)
	}
}
