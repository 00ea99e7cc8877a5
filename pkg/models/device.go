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

// Package models holds the printer fleet domain types shared by the probe,
// normalizer, evaluator, orchestrator and sinks.
package models

import (
	"time"
)

// SNMP protocol versions accepted on a device.
const (
	SNMPVersion1  = "v1"
	SNMPVersion2c = "v2c"
)

const defaultSNMPPort = 161

// Device represents a printer owned by a tenant.
// Registration is handled elsewhere; the engine only writes LastStatus and
// LastCheckedAt back through the sink.
type Device struct {
	ID                   string    `json:"id"`
	TenantID             string    `json:"tenant_id"`
	Name                 string    `json:"name"`
	Address              string    `json:"address"`
	Port                 uint16    `json:"port,omitempty"`
	Community            string    `json:"community,omitempty"`
	SNMPVersion          string    `json:"snmp_version,omitempty"`
	IsLocalCounterSource bool      `json:"is_local_counter_source,omitempty"`
	LocalQueueName       string    `json:"local_queue_name,omitempty"`
	Active               bool      `json:"active"`
	LastStatus           *Status   `json:"last_status,omitempty"`
	LastCheckedAt        time.Time `json:"last_checked_at,omitempty"`

	// LastSnapshot is the snapshot persisted by the previous cycle, when the
	// inventory source can provide it.
	LastSnapshot *MetricSnapshot `json:"last_snapshot,omitempty"`
}

// SNMPPort returns the configured management port or 161.
func (d *Device) SNMPPort() uint16 {
	if d.Port == 0 {
		return defaultSNMPPort
	}

	return d.Port
}

// QueueName is the local print queue used for counter lookups.
func (d *Device) QueueName() string {
	if d.LocalQueueName != "" {
		return d.LocalQueueName
	}

	return d.Name
}
