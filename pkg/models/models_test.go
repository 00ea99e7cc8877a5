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

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"90s"`, want: 90 * time.Second},
		{name: "nanoseconds", input: `2000000000`, want: 2 * time.Second},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}

func TestStatusJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(StatusPowerSave)
	require.NoError(t, err)
	assert.JSONEq(t, `"power_save"`, string(b))

	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"Disconnected"`), &s))
	assert.Equal(t, StatusDisconnected, s)

	require.NoError(t, json.Unmarshal([]byte(`"bogus"`), &s))
	assert.Equal(t, StatusUnknown, s)
}

func TestDeviceDefaults(t *testing.T) {
	d := Device{ID: "p1", Name: "front-desk"}

	assert.Equal(t, uint16(161), d.SNMPPort())
	assert.Equal(t, "front-desk", d.QueueName())

	d.Port = 1161
	d.LocalQueueName = "HP_LaserJet"

	assert.Equal(t, uint16(1161), d.SNMPPort())
	assert.Equal(t, "HP_LaserJet", d.QueueName())
}
