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

	"github.com/carverauto/printradar/pkg/models"
)

func TestStateCacheFallsBackToInventory(t *testing.T) {
	cache := newStateCache()

	device := models.Device{
		ID:           "printer-1",
		LastStatus:   models.StatusPtr(models.StatusError),
		LastSnapshot: &models.MetricSnapshot{DeviceID: "printer-1", Online: true},
	}

	status, snap := cache.previous(&device)
	require.NotNil(t, status)
	require.NotNil(t, snap)
	assert.Equal(t, models.StatusError, *status)

	// callers may not alias the inventory snapshot
	snap.Online = false
	assert.True(t, device.LastSnapshot.Online)

	fresh := models.OfflineSnapshot("printer-1", time.Now())
	cache.store(&device, models.StatusOffline, &fresh)

	status, snap = cache.previous(&device)
	assert.Equal(t, models.StatusOffline, *status)
	assert.False(t, snap.Online)
}

func TestStateCacheUnknownDevice(t *testing.T) {
	status, snap := newStateCache().previous(&models.Device{ID: "new"})
	assert.Nil(t, status)
	assert.Nil(t, snap)
}

func TestStateCacheRetain(t *testing.T) {
	cache := newStateCache()
	snap := models.MetricSnapshot{}

	for _, id := range []string{"a", "b", "c"} {
		cache.store(&models.Device{ID: id, TenantID: "acme"}, models.StatusOnline, &snap)
	}

	kept := []*models.Device{{ID: "a", TenantID: "acme"}, {ID: "c", TenantID: "acme"}}

	assert.Equal(t, 1, cache.retain(kept))
	assert.Equal(t, 2, cache.len())
}

func TestStateCacheRetainKeepsOtherTenants(t *testing.T) {
	cache := newStateCache()
	snap := models.MetricSnapshot{}

	cache.store(&models.Device{ID: "acme-1", TenantID: "acme"}, models.StatusOffline, &snap)
	cache.store(&models.Device{ID: "acme-2", TenantID: "acme"}, models.StatusOnline, &snap)
	cache.store(&models.Device{ID: "globex-1", TenantID: "globex"}, models.StatusOffline, &snap)

	assert.Equal(t, 1, cache.retain([]*models.Device{{ID: "globex-2", TenantID: "globex"}}))
	assert.Equal(t, 2, cache.len())

	status, _ := cache.previous(&models.Device{ID: "acme-1", TenantID: "acme"})
	require.NotNil(t, status)
	assert.Equal(t, models.StatusOffline, *status)

	assert.Zero(t, cache.retain(nil))
	assert.Equal(t, 2, cache.len())
}
