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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/printradar/pkg/models"
)

func TestDefaultVariablesValid(t *testing.T) {
	require.NoError(t, DefaultVariables().Validate())
}

func TestVariableTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   VariableTable
		wantErr error
	}{
		{
			name:    "duplicate name",
			table:   VariableTable{{Name: "a", OID: "1.3", Role: RoleModel}, {Name: "a", OID: "1.4", Role: RoleSerial}},
			wantErr: errDuplicateVariable,
		},
		{
			name:    "empty oid",
			table:   VariableTable{{Name: "a", Role: RoleModel}},
			wantErr: errEmptyOID,
		},
		{
			name:    "consumable without kind",
			table:   VariableTable{{Name: "a", OID: "1.3", Role: RoleConsumableLevel}},
			wantErr: errMissingConsumable,
		},
		{
			name:    "unknown role",
			table:   VariableTable{{Name: "a", OID: "1.3", Role: "color"}},
			wantErr: errUnknownRole,
		},
		{
			name:    "empty name",
			table:   VariableTable{{OID: "1.3", Role: RoleModel}},
			wantErr: errEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.table.Validate(), tt.wantErr)
		})
	}
}

func TestVariableTableMerge(t *testing.T) {
	merged := DefaultVariables().Merge([]Variable{
		{Name: VarTonerLevel, OID: "1.3.6.1.4.1.11.2.3.9.4.2.1.4.1.10.1.1.18.1.0", Role: RoleConsumableLevel, Consumable: models.ConsumableToner},
		{Name: "fuser_level", OID: "1.3.6.1.2.1.43.11.1.1.9.1.4", Role: RoleConsumableLevel, Consumable: models.ConsumableFuser},
	})

	require.NoError(t, merged.Validate())
	assert.Len(t, merged, len(DefaultVariables())+1)

	toner, ok := merged.ByRole(RoleConsumableLevel, models.ConsumableToner)
	require.True(t, ok)
	assert.Equal(t, ".1.3.6.1.4.1.11.2.3.9.4.2.1.4.1.10.1.1.18.1.0", NormalizeOID(toner.OID))

	oids := merged.OIDs()
	assert.Equal(t, ".1.3.6.1.2.1.43.11.1.1.9.1.4", oids[len(oids)-1])
}
