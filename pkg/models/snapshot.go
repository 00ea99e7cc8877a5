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
	"time"
)

// RawType is the protocol type a raw value was received as.
type RawType string

const (
	RawInteger     RawType = "integer"
	RawCounter     RawType = "counter"
	RawGauge       RawType = "gauge"
	RawTimeTicks   RawType = "timeticks"
	RawOctetString RawType = "octet_string"
	RawObjectID    RawType = "object_id"
	RawOther       RawType = "other"
)

// RawValue is a single variable as received from the device. Numeric types
// carry their decimal representation in Text, octet strings their bytes.
type RawValue struct {
	Type RawType `json:"type"`
	Text string  `json:"text"`
}

// RawSample is the unparsed result of one probe. It is produced by the probe
// and consumed by the normalizer in the same pipeline; it is never stored.
type RawSample struct {
	DeviceID    string              `json:"device_id"`
	Online      bool                `json:"online"`
	Values      map[string]RawValue `json:"values,omitempty"`
	Missing     []string            `json:"missing,omitempty"`
	CollectedAt time.Time           `json:"collected_at"`
	Latency     time.Duration       `json:"latency"`
}

// ConsumableKind names a depletable printer resource.
type ConsumableKind string

const (
	ConsumableToner ConsumableKind = "toner"
	ConsumableDrum  ConsumableKind = "drum"
	ConsumableWaste ConsumableKind = "waste"
	ConsumableFuser ConsumableKind = "fuser"
	ConsumableInk   ConsumableKind = "ink"
)

// ConsumableKinds is the fixed output order for consumables in a snapshot.
//
//nolint:gochecknoglobals // ordering table
var ConsumableKinds = []ConsumableKind{
	ConsumableToner,
	ConsumableDrum,
	ConsumableWaste,
	ConsumableFuser,
	ConsumableInk,
}

// ConsumableLevel is the level of a single consumable. Nil fields are unknown.
type ConsumableLevel struct {
	Kind             ConsumableKind `json:"kind"`
	Current          *int64         `json:"current,omitempty"`
	Max              *int64         `json:"max,omitempty"`
	PercentRemaining *int           `json:"percent_remaining,omitempty"`
}

// Page count sources.
const (
	PageCountSourceSNMP  = "snmp"
	PageCountSourceLocal = "local"
)

// MetricSnapshot is the typed, normalized view of a single poll.
type MetricSnapshot struct {
	DeviceID        string            `json:"device_id"`
	Online          bool              `json:"online"`
	StatusCode      *int              `json:"status_code,omitempty"`
	DeviceState     *int              `json:"device_state,omitempty"`
	PageCount       *int64            `json:"page_count,omitempty"`
	PageCountSource string            `json:"page_count_source,omitempty"`
	Model           string            `json:"model,omitempty"`
	Serial          string            `json:"serial,omitempty"`
	UptimeTicks     *int64            `json:"uptime_ticks,omitempty"`
	Consumables     []ConsumableLevel `json:"consumables,omitempty"`
	CollectedAt     time.Time         `json:"collected_at"`
}

// Consumable returns the level for kind, if present.
func (m *MetricSnapshot) Consumable(kind ConsumableKind) (ConsumableLevel, bool) {
	for _, c := range m.Consumables {
		if c.Kind == kind {
			return c, true
		}
	}

	return ConsumableLevel{}, false
}

// OfflineSnapshot is the snapshot recorded for a device that could not be reached.
func OfflineSnapshot(deviceID string, at time.Time) MetricSnapshot {
	return MetricSnapshot{
		DeviceID:    deviceID,
		Online:      false,
		CollectedAt: at,
	}
}
