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

package sink

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/printradar/pkg/models"
)

// DeviceRecord is the state Memory keeps per device.
type DeviceRecord struct {
	Status    models.Status
	Snapshot  models.MetricSnapshot
	CheckedAt time.Time
	Writes    int
}

// Memory is an in-process Sink, used for dry runs and tests.
type Memory struct {
	mu      sync.RWMutex
	devices map[string]*DeviceRecord
	alerts  map[string]models.Alert
	order   []string
	closed  bool
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{
		devices: make(map[string]*DeviceRecord),
		alerts:  make(map[string]models.Alert),
	}
}

// SaveStatus implements Sink.
func (m *Memory) SaveStatus(ctx context.Context, deviceID string, status models.Status, snapshot *models.MetricSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := validateStatus(deviceID, snapshot); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	rec, ok := m.devices[deviceID]
	if !ok {
		rec = &DeviceRecord{}
		m.devices[deviceID] = rec
	}

	rec.Status = status
	rec.Snapshot = cloneSnapshot(snapshot)
	rec.CheckedAt = snapshot.CollectedAt
	rec.Writes++

	return nil
}

// RaiseAlert implements Sink. Repeated IDs are ignored.
func (m *Memory) RaiseAlert(ctx context.Context, alert *models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := validateAlert(alert); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if _, ok := m.alerts[alert.ID]; ok {
		return nil
	}

	m.alerts[alert.ID] = *alert
	m.order = append(m.order, alert.ID)

	return nil
}

// Ping implements Pinger.
func (m *Memory) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	return nil
}

// OpenAlerts implements OpenAlertLoader.
func (m *Memory) OpenAlerts(_ context.Context) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Alert

	for _, id := range m.order {
		a := m.alerts[id]
		if a.IsOpen() {
			out = append(out, a)
		}
	}

	return out, nil
}

// ResolveAlert marks an alert resolved and reports whether it was open.
func (m *Memory) ResolveAlert(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok || !a.IsOpen() {
		return false
	}

	a.State = models.AlertStateResolved
	m.alerts[id] = a

	return true
}

// Device returns the last record saved for deviceID.
func (m *Memory) Device(deviceID string) (DeviceRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.devices[deviceID]
	if !ok {
		return DeviceRecord{}, false
	}

	return *rec, true
}

// DeviceIDs returns the IDs with a saved status, sorted.
func (m *Memory) DeviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Alerts returns every alert in the order it was raised.
func (m *Memory) Alerts() []models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Alert, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.alerts[id])
	}

	return out
}

// Close rejects further writes.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	return nil
}

func cloneSnapshot(s *models.MetricSnapshot) models.MetricSnapshot {
	out := *s
	if s.Consumables != nil {
		out.Consumables = append([]models.ConsumableLevel(nil), s.Consumables...)
	}

	return out
}
