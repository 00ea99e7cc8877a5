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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/printradar/pkg/alerts"
	"github.com/carverauto/printradar/pkg/localcounter"
	"github.com/carverauto/printradar/pkg/models"
	"github.com/carverauto/printradar/pkg/probe"
	"github.com/carverauto/printradar/pkg/sink"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := Config{Devices: testDevices(1)}

	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaultServiceName, cfg.ServiceName)
	assert.Equal(t, defaultConcurrencyLimit, cfg.ConcurrencyLimit)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval.Std())
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.PingTimeout.Std())
	assert.Equal(t, 5*time.Second, cfg.GracePeriod.Std())
	assert.Equal(t, time.Hour, cfg.SuppressionWindow.Std())
	assert.Equal(t, localcounter.DefaultPageLogPath, cfg.LocalCounter.PageLogPath)
	assert.Equal(t, alerts.DefaultThresholds(), cfg.Thresholds.Thresholds("acme"))
	assert.Zero(t, cfg.DispatchBurst)
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "no inventory",
			cfg:     Config{},
			wantErr: errInventoryRequired,
		},
		{
			name:    "negative concurrency",
			cfg:     Config{Devices: testDevices(1), ConcurrencyLimit: -1},
			wantErr: errInvalidConcurrency,
		},
		{
			name:    "negative dispatch rate",
			cfg:     Config{Devices: testDevices(1), DispatchRate: -5},
			wantErr: errInvalidDispatchRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfigValidateRejectsBadVariables(t *testing.T) {
	cfg := Config{
		Devices:   testDevices(1),
		Variables: []probe.Variable{{Name: "fuser_level", Role: probe.RoleConsumableLevel, Consumable: models.ConsumableFuser}},
	}

	require.Error(t, cfg.Validate())
}

func TestConfigVariableTableMergesOverrides(t *testing.T) {
	cfg := Config{
		Devices: testDevices(1),
		Variables: []probe.Variable{
			{Name: "fuser_level", OID: ".1.3.6.1.2.1.43.11.1.1.9.1.4", Role: probe.RoleConsumableLevel, Consumable: models.ConsumableFuser},
			{Name: "fuser_max", OID: ".1.3.6.1.2.1.43.11.1.1.8.1.4", Role: probe.RoleConsumableMax, Consumable: models.ConsumableFuser},
		},
	}

	require.NoError(t, cfg.Validate())

	table := cfg.VariableTable()
	assert.Len(t, table, len(probe.DefaultVariables())+2)

	v, ok := table.ByRole(probe.RoleConsumableLevel, models.ConsumableFuser)
	require.True(t, ok)
	assert.Equal(t, "fuser_level", v.Name)
}

func TestConfigDispatchBurstDefaultsToConcurrency(t *testing.T) {
	cfg := Config{Devices: testDevices(1), ConcurrencyLimit: 8, DispatchRate: 50}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.DispatchBurst)
}

func TestConfigNeedsLocalCounter(t *testing.T) {
	cfg := Config{Devices: testDevices(2)}
	assert.False(t, cfg.NeedsLocalCounter())

	cfg.Devices[1].IsLocalCounterSource = true
	assert.True(t, cfg.NeedsLocalCounter())

	assert.True(t, (&Config{Postgres: &sink.PostgresConfig{}}).NeedsLocalCounter())
}
