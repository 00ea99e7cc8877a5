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

// AlertKind identifies the condition an alert was raised for.
type AlertKind string

const (
	AlertOffline            AlertKind = "offline"
	AlertLowConsumable      AlertKind = "low_consumable"
	AlertCriticalConsumable AlertKind = "critical_consumable"
	AlertErrorStatus        AlertKind = "error_status"
	AlertCustom             AlertKind = "custom"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertState tracks the lifecycle of an alert. The engine only creates open
// alerts; acknowledgement and resolution happen in external workflows.
type AlertState string

const (
	AlertStateOpen         AlertState = "open"
	AlertStateAcknowledged AlertState = "acknowledged"
	AlertStateResolved     AlertState = "resolved"
)

// Alert is a condition raised against a device.
type Alert struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name,omitempty"`
	Address    string     `json:"address,omitempty"`
	Kind       AlertKind  `json:"kind"`
	Severity   Severity   `json:"severity"`
	Subject    string     `json:"subject,omitempty"` // consumable kind for consumable alerts
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	State      AlertState `json:"state"`
}

// IsOpen reports whether the alert has not been resolved.
func (a *Alert) IsOpen() bool {
	return a.State != AlertStateResolved
}
