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
	"sync"

	"github.com/carverauto/printradar/pkg/models"
)

type deviceState struct {
	tenantID string
	status   models.Status
	snapshot models.MetricSnapshot
}

// stateCache holds the last persisted status and snapshot per device so
// transitions survive between cycles without a database read.
type stateCache struct {
	mu      sync.RWMutex
	devices map[string]deviceState
}

func newStateCache() *stateCache {
	return &stateCache{devices: make(map[string]deviceState)}
}

// previous returns the last known state of device, falling back to what the
// inventory loaded from the database.
func (s *stateCache) previous(device *models.Device) (*models.Status, *models.MetricSnapshot) {
	s.mu.RLock()
	st, ok := s.devices[device.ID]
	s.mu.RUnlock()

	if ok {
		snap := st.snapshot

		return models.StatusPtr(st.status), &snap
	}

	var status *models.Status
	if device.LastStatus != nil {
		status = models.StatusPtr(*device.LastStatus)
	}

	var snap *models.MetricSnapshot
	if device.LastSnapshot != nil {
		cp := *device.LastSnapshot
		snap = &cp
	}

	return status, snap
}

func (s *stateCache) store(device *models.Device, status models.Status, snapshot *models.MetricSnapshot) {
	s.mu.Lock()
	s.devices[device.ID] = deviceState{tenantID: device.TenantID, status: status, snapshot: *snapshot}
	s.mu.Unlock()
}

// retain drops devices that are no longer in the inventory. Only tenants
// present in devices are pruned; state of other tenants is kept, so one
// Orchestrator can serve cycles scoped to different tenants.
func (s *stateCache) retain(devices []*models.Device) int {
	keep := make(map[string]struct{}, len(devices))
	tenants := make(map[string]struct{})

	for i := range devices {
		keep[devices[i].ID] = struct{}{}
		tenants[devices[i].TenantID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0

	for id, st := range s.devices {
		if _, scoped := tenants[st.tenantID]; !scoped {
			continue
		}

		if _, ok := keep[id]; !ok {
			delete(s.devices, id)
			dropped++
		}
	}

	return dropped
}

func (s *stateCache) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.devices)
}
