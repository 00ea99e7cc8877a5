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

package probe

import (
	"fmt"
	"strings"

	"github.com/carverauto/printradar/pkg/models"
)

// Role tells the normalizer what a variable means.
type Role string

const (
	RoleModel           Role = "model"
	RoleSerial          Role = "serial"
	RoleUptime          Role = "uptime"
	RoleStatus          Role = "status"
	RoleDeviceState     Role = "device_state"
	RolePageCount       Role = "page_count"
	RoleConsumableLevel Role = "consumable_level"
	RoleConsumableMax   Role = "consumable_max"
)

// Variable is one named entry of the batched read.
type Variable struct {
	Name       string                `json:"name"`
	OID        string                `json:"oid"`
	Role       Role                  `json:"role"`
	Consumable models.ConsumableKind `json:"consumable,omitempty"`
}

// VariableTable is the ordered list of variables requested from every device.
type VariableTable []Variable

// Default variable names.
const (
	VarModel       = "model"
	VarSerial      = "serial"
	VarUptime      = "uptime"
	VarStatus      = "printer_status"
	VarDeviceState = "device_status"
	VarPageCount   = "page_count"
	VarTonerLevel  = "toner_level"
	VarTonerMax    = "toner_max"
	VarDrumLevel   = "drum_level"
	VarDrumMax     = "drum_max"
	VarWasteLevel  = "waste_level"
	VarWasteMax    = "waste_max"
)

// DefaultVariables returns the Host Resources and Printer MIB variables read
// from every device unless configuration overrides them. Supply indexes follow
// the common layout of toner at 1, drum at 2 and waste at 3.
func DefaultVariables() VariableTable {
	return VariableTable{
		{Name: VarModel, OID: ".1.3.6.1.2.1.25.3.2.1.3.1", Role: RoleModel},
		{Name: VarSerial, OID: ".1.3.6.1.2.1.43.5.1.1.17.1", Role: RoleSerial},
		{Name: VarUptime, OID: ".1.3.6.1.2.1.1.3.0", Role: RoleUptime},
		{Name: VarStatus, OID: ".1.3.6.1.2.1.25.3.5.1.1.1", Role: RoleStatus},
		{Name: VarDeviceState, OID: ".1.3.6.1.2.1.25.3.2.1.5.1", Role: RoleDeviceState},
		{Name: VarPageCount, OID: ".1.3.6.1.2.1.43.10.2.1.4.1.1", Role: RolePageCount},
		{Name: VarTonerLevel, OID: ".1.3.6.1.2.1.43.11.1.1.9.1.1", Role: RoleConsumableLevel, Consumable: models.ConsumableToner},
		{Name: VarTonerMax, OID: ".1.3.6.1.2.1.43.11.1.1.8.1.1", Role: RoleConsumableMax, Consumable: models.ConsumableToner},
		{Name: VarDrumLevel, OID: ".1.3.6.1.2.1.43.11.1.1.9.1.2", Role: RoleConsumableLevel, Consumable: models.ConsumableDrum},
		{Name: VarDrumMax, OID: ".1.3.6.1.2.1.43.11.1.1.8.1.2", Role: RoleConsumableMax, Consumable: models.ConsumableDrum},
		{Name: VarWasteLevel, OID: ".1.3.6.1.2.1.43.11.1.1.9.1.3", Role: RoleConsumableLevel, Consumable: models.ConsumableWaste},
		{Name: VarWasteMax, OID: ".1.3.6.1.2.1.43.11.1.1.8.1.3", Role: RoleConsumableMax, Consumable: models.ConsumableWaste},
	}
}

// NormalizeOID returns oid in the leading-dot form gosnmp reports.
func NormalizeOID(oid string) string {
	oid = strings.TrimSpace(oid)
	if oid == "" || strings.HasPrefix(oid, ".") {
		return oid
	}

	return "." + oid
}

// Validate checks that names are unique and every entry is usable.
func (t VariableTable) Validate() error {
	seen := make(map[string]struct{}, len(t))

	for i, v := range t {
		if v.Name == "" {
			return fmt.Errorf("%w (entry %d)", errEmptyName, i)
		}

		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("%w: %s", errDuplicateVariable, v.Name)
		}

		seen[v.Name] = struct{}{}

		if NormalizeOID(v.OID) == "" {
			return fmt.Errorf("%w: %s", errEmptyOID, v.Name)
		}

		switch v.Role {
		case RoleModel, RoleSerial, RoleUptime, RoleStatus, RoleDeviceState, RolePageCount:
		case RoleConsumableLevel, RoleConsumableMax:
			if v.Consumable == "" {
				return fmt.Errorf("%w: %s", errMissingConsumable, v.Name)
			}
		default:
			return fmt.Errorf("%w %q: %s", errUnknownRole, v.Role, v.Name)
		}
	}

	return nil
}

// Merge returns a copy of t where entries in overrides replace entries of
// the same name and new names are appended in order.
func (t VariableTable) Merge(overrides []Variable) VariableTable {
	out := make(VariableTable, len(t), len(t)+len(overrides))
	copy(out, t)

	index := make(map[string]int, len(out))
	for i, v := range out {
		index[v.Name] = i
	}

	for _, v := range overrides {
		if i, ok := index[v.Name]; ok {
			out[i] = v
			continue
		}

		index[v.Name] = len(out)
		out = append(out, v)
	}

	return out
}

// OIDs returns the request list in table order.
func (t VariableTable) OIDs() []string {
	oids := make([]string, len(t))
	for i, v := range t {
		oids[i] = NormalizeOID(v.OID)
	}

	return oids
}

// ByRole returns the first variable with role r and, for consumable roles, kind.
func (t VariableTable) ByRole(r Role, kind models.ConsumableKind) (Variable, bool) {
	for _, v := range t {
		if v.Role == r && v.Consumable == kind {
			return v, true
		}
	}

	return Variable{}, false
}
