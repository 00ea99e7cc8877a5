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

package alerts

import (
	"errors"
	"fmt"
)

var errInvalidThresholds = errors.New("invalid thresholds")

// Default consumable thresholds, in percent remaining.
const (
	DefaultLowThreshold      = 20
	DefaultCriticalThreshold = 10
)

// Thresholds are the consumable percentages at or below which alerts fire.
type Thresholds struct {
	Low      int `json:"low"`
	Critical int `json:"critical"`
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: DefaultLowThreshold, Critical: DefaultCriticalThreshold}
}

// Validate checks that both thresholds are percentages and critical does not
// exceed low.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.Low > 100 || t.Critical < 0 || t.Critical > 100 {
		return fmt.Errorf("%w: thresholds must be within 0..100 (low=%d critical=%d)",
			errInvalidThresholds, t.Low, t.Critical)
	}

	if t.Critical > t.Low {
		return fmt.Errorf("%w: critical (%d) above low (%d)", errInvalidThresholds, t.Critical, t.Low)
	}

	return nil
}

// ThresholdProvider supplies thresholds per tenant.
type ThresholdProvider interface {
	Thresholds(tenantID string) Thresholds
}

// StaticThresholds serves thresholds from configuration.
type StaticThresholds struct {
	Default Thresholds            `json:"default"`
	Tenants map[string]Thresholds `json:"tenants,omitempty"`
}

// Thresholds returns the tenant override or the default.
func (s *StaticThresholds) Thresholds(tenantID string) Thresholds {
	if t, ok := s.Tenants[tenantID]; ok {
		return t
	}

	return s.Default
}

// Validate applies the built-in default when none is configured and checks
// every entry.
func (s *StaticThresholds) Validate() error {
	if s.Default == (Thresholds{}) {
		s.Default = DefaultThresholds()
	}

	if err := s.Default.Validate(); err != nil {
		return fmt.Errorf("default: %w", err)
	}

	for tenantID, t := range s.Tenants {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tenant %s: %w", tenantID, err)
		}
	}

	return nil
}
