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

package status

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carverauto/printradar/pkg/models"
)

func online(code *int) *models.MetricSnapshot {
	return &models.MetricSnapshot{DeviceID: "dev-1", Online: true, StatusCode: code}
}

func ptr(v int) *int { return &v }

func TestResolveTable(t *testing.T) {
	tests := []struct {
		code int
		want models.Status
	}{
		{1, models.StatusUnknown},
		{2, models.StatusUnknown},
		{3, models.StatusOnline},
		{4, models.StatusUnknown},
		{5, models.StatusPrinting},
		{6, models.StatusPrinting},
		{7, models.StatusOnline},
		{8, models.StatusDisconnected},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(online(ptr(tt.code))), "code %d", tt.code)
	}
}

func TestResolveIsTotal(t *testing.T) {
	valid := map[models.Status]bool{
		models.StatusUnknown:      true,
		models.StatusOnline:       true,
		models.StatusPrinting:     true,
		models.StatusDisconnected: true,
	}

	for code := 0; code <= 99; code++ {
		got := Resolve(online(ptr(code)))
		assert.True(t, valid[got], "code %d resolved to %s", code, got)

		if code == 0 || code > 8 {
			assert.Equal(t, models.StatusUnknown, got, "code %d", code)
		}
	}

	for _, code := range []int{-1, math.MinInt32, math.MaxInt32} {
		assert.Equal(t, models.StatusUnknown, Resolve(online(ptr(code))))
	}

	assert.Equal(t, models.StatusUnknown, Resolve(online(nil)))
}

func TestResolveOfflineWins(t *testing.T) {
	snap := online(ptr(3))
	snap.Online = false

	assert.Equal(t, models.StatusOffline, Resolve(snap))
	assert.Equal(t, models.StatusOffline, Resolve(nil))
}

func TestResolveDeviceDownIsError(t *testing.T) {
	snap := online(ptr(5))
	snap.DeviceState = ptr(5)
	assert.Equal(t, models.StatusError, Resolve(snap))

	snap.DeviceState = ptr(2) // running
	assert.Equal(t, models.StatusPrinting, Resolve(snap))
}
