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

// Package status resolves a MetricSnapshot to a single device Status.
package status

import "github.com/carverauto/printradar/pkg/models"

// hrDeviceStatus down(5): the host resources view reports the device failed.
const deviceStateDown = 5

// hrPrinterStatus codes as reported by the Host Resources MIB.
//
//nolint:gochecknoglobals // single lookup table
var printerStatus = map[int]models.Status{
	1: models.StatusUnknown,      // other
	2: models.StatusUnknown,      // unknown
	3: models.StatusOnline,       // idle
	4: models.StatusUnknown,      // connecting / warmup
	5: models.StatusPrinting,     // printing
	6: models.StatusPrinting,     // processing
	7: models.StatusOnline,       // ready
	8: models.StatusDisconnected, // disconnected
}

// Resolve maps snap to exactly one Status. It is total: any status code,
// including none, yields a value.
func Resolve(snap *models.MetricSnapshot) models.Status {
	if snap == nil || !snap.Online {
		return models.StatusOffline
	}

	if snap.DeviceState != nil && *snap.DeviceState == deviceStateDown {
		return models.StatusError
	}

	return FromCode(snap.StatusCode)
}

// FromCode looks up a printer status code. Unknown or absent codes map to
// StatusUnknown.
func FromCode(code *int) models.Status {
	if code == nil {
		return models.StatusUnknown
	}

	if s, ok := printerStatus[*code]; ok {
		return s
	}

	return models.StatusUnknown
}
