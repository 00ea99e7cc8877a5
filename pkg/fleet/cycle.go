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
	"sort"
	"sync"
	"time"

	"github.com/carverauto/printradar/pkg/models"
)

type inflight struct {
	device  *models.Device
	started time.Time
}

// cycle tracks the devices of one RunCycle. Once closed, late results are
// discarded so an abandoned device never reports twice.
type cycle struct {
	mu       sync.Mutex
	report   *CycleReport
	inflight map[string]inflight
	closed   bool
}

func newCycle(report *CycleReport) *cycle {
	return &cycle{
		report:   report,
		inflight: make(map[string]inflight),
	}
}

func (c *cycle) begin(device *models.Device, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	c.inflight[device.ID] = inflight{device: device, started: at}

	return true
}

func (c *cycle) finish(outcome DeviceOutcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	delete(c.inflight, outcome.DeviceID)
	c.report.add(outcome)

	return true
}

// abandon closes the cycle and records every in-flight device as abandoned.
func (c *cycle) abandon(now time.Time) []DeviceOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	out := make([]DeviceOutcome, 0, len(c.inflight))

	for id, f := range c.inflight {
		o := DeviceOutcome{
			DeviceID: id,
			TenantID: f.device.TenantID,
			Outcome:  OutcomeAbandoned,
			Reason:   ReasonAbandoned,
			Duration: now.Sub(f.started),
			Err:      errGracePeriodExpired,
		}

		c.report.add(o)
		out = append(out, o)
	}

	c.inflight = make(map[string]inflight)

	return out
}

func (c *cycle) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *cycle) sortOutcomes() {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.Slice(c.report.Outcomes, func(i, j int) bool {
		return c.report.Outcomes[i].DeviceID < c.report.Outcomes[j].DeviceID
	})
}
