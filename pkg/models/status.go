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
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the normalized state of a printer. Exactly one value is active
// per device at a time.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
	StatusError
	StatusPrinting
	StatusPaused
	StatusPowerSave
	StatusMaintenance
	StatusDisconnected
)

//nolint:gochecknoglobals // lookup tables
var statusNames = map[Status]string{
	StatusUnknown:      "unknown",
	StatusOnline:       "online",
	StatusOffline:      "offline",
	StatusError:        "error",
	StatusPrinting:     "printing",
	StatusPaused:       "paused",
	StatusPowerSave:    "power_save",
	StatusMaintenance:  "maintenance",
	StatusDisconnected: "disconnected",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return statusNames[StatusUnknown]
}

// ParseStatus maps a stored status name back to a Status. Unrecognized
// names are reported as StatusUnknown.
func ParseStatus(name string) Status {
	name = strings.ToLower(strings.TrimSpace(name))

	for status, n := range statusNames {
		if n == name {
			return status
		}
	}

	return StatusUnknown
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}

	*s = ParseStatus(name)

	return nil
}

// StatusPtr returns a pointer to s.
func StatusPtr(s Status) *Status {
	return &s
}
