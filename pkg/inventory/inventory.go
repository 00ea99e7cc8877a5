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

//go:generate mockgen -destination=mock_inventory.go -package=inventory github.com/carverauto/printradar/pkg/inventory Source

// Package inventory supplies the set of devices each polling cycle covers.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/carverauto/printradar/pkg/models"
)

var (
	errDuplicateDevice = errors.New("duplicate device id")
	errDeviceID        = errors.New("device id is required")
	errDeviceTenant    = errors.New("device tenant is required")
)

// Source lists the active devices of a tenant, or of every tenant when
// tenantID is empty.
type Source interface {
	ActiveDevices(ctx context.Context, tenantID string) ([]models.Device, error)
}

// Static serves devices declared in configuration. Every listed device is
// treated as active.
type Static struct {
	devices []models.Device
}

// NewStatic validates devices and returns a Static source.
func NewStatic(devices []models.Device) (*Static, error) {
	seen := make(map[string]struct{}, len(devices))
	out := make([]models.Device, 0, len(devices))

	for i := range devices {
		d := devices[i]

		if d.ID == "" {
			return nil, fmt.Errorf("device %d: %w", i, errDeviceID)
		}

		if d.TenantID == "" {
			return nil, fmt.Errorf("device %s: %w", d.ID, errDeviceTenant)
		}

		if _, ok := seen[d.ID]; ok {
			return nil, fmt.Errorf("%w: %s", errDuplicateDevice, d.ID)
		}

		seen[d.ID] = struct{}{}
		d.Active = true
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}

		return out[i].ID < out[j].ID
	})

	return &Static{devices: out}, nil
}

// ActiveDevices implements Source.
func (s *Static) ActiveDevices(ctx context.Context, tenantID string) ([]models.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Device, 0, len(s.devices))

	for i := range s.devices {
		if tenantID == "" || s.devices[i].TenantID == tenantID {
			out = append(out, s.devices[i])
		}
	}

	return out, nil
}
