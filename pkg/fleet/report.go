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
	"time"

	"github.com/carverauto/printradar/pkg/models"
)

// Outcome is the result class of one device pipeline.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Failure reasons recorded on DeviceOutcome.
const (
	ReasonTimeout     = "timeout"
	ReasonUnreachable = "unreachable"
	ReasonMalformed   = "malformed"
	ReasonFault       = "fault"
	ReasonSinkWrite   = "sink_write"
	ReasonAbandoned   = "grace_period_expired"
)

// DeviceOutcome is the structured result of one device pipeline.
type DeviceOutcome struct {
	DeviceID string        `json:"device_id"`
	TenantID string        `json:"tenant_id"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Status   models.Status `json:"status"`
	Alerts   int           `json:"alerts"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// CycleReport summarizes one RunCycle.
type CycleReport struct {
	Collector string                   `json:"collector,omitempty"`
	Started   time.Time                `json:"started"`
	Finished  time.Time                `json:"finished"`
	Devices   int                      `json:"devices"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	Abandoned int                      `json:"abandoned"`
	Skipped   int                      `json:"skipped"`
	Aborted   bool                     `json:"aborted"`
	Outcomes  []DeviceOutcome          `json:"outcomes"`
	Durations map[string]time.Duration `json:"durations"`
}

// Duration is the wall time of the cycle.
func (r *CycleReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Outcome returns the outcome recorded for deviceID.
func (r *CycleReport) Outcome(deviceID string) (DeviceOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.DeviceID == deviceID {
			return o, true
		}
	}

	return DeviceOutcome{}, false
}

func (r *CycleReport) add(o DeviceOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Durations[o.DeviceID] = o.Duration

	switch o.Outcome {
	case OutcomeSucceeded:
		r.Succeeded++
	case OutcomeFailed:
		r.Failed++
	case OutcomeAbandoned:
		r.Abandoned++
	}
}
