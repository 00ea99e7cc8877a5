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

package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/printradar/pkg/models"
)

var errFakeRowMismatch = errors.New("fake row mismatch")

func TestStaticFiltersByTenant(t *testing.T) {
	src, err := NewStatic([]models.Device{
		{ID: "p2", TenantID: "globex", Address: "192.0.2.20"},
		{ID: "p1", TenantID: "acme", Address: "192.0.2.10"},
		{ID: "p3", TenantID: "acme", Address: "192.0.2.11"},
	})
	require.NoError(t, err)

	all, err := src.ActiveDevices(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p1", all[0].ID)
	assert.True(t, all[0].Active)

	acme, err := src.ActiveDevices(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	none, err := src.ActiveDevices(context.Background(), "initech")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStaticRejectsInvalidDevices(t *testing.T) {
	_, err := NewStatic([]models.Device{{ID: "p1", TenantID: "acme"}, {ID: "p1", TenantID: "acme"}})
	require.ErrorIs(t, err, errDuplicateDevice)

	_, err = NewStatic([]models.Device{{TenantID: "acme"}})
	require.ErrorIs(t, err, errDeviceID)

	_, err = NewStatic([]models.Device{{ID: "p1"}})
	require.ErrorIs(t, err, errDeviceTenant)
}

type fakeDeviceRow struct {
	values []interface{}
}

func (r *fakeDeviceRow) Scan(dest ...interface{}) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("%w: dest=%d values=%d", errFakeRowMismatch, len(dest), len(r.values))
	}

	for i, d := range dest {
		v := r.values[i]

		switch ptr := d.(type) {
		case *string:
			*ptr = v.(string)
		case *bool:
			*ptr = v.(bool)
		case **string:
			if v != nil {
				s := v.(string)
				*ptr = &s
			}
		case **int32:
			if v != nil {
				n := v.(int32)
				*ptr = &n
			}
		case **int64:
			if v != nil {
				n := v.(int64)
				*ptr = &n
			}
		case **bool:
			if v != nil {
				b := v.(bool)
				*ptr = &b
			}
		case **time.Time:
			if v != nil {
				ts := v.(time.Time)
				*ptr = &ts
			}
		case *[]byte:
			if v != nil {
				*ptr = v.([]byte)
			}
		default:
			return fmt.Errorf("%w: unexpected dest %T at %d", errFakeRowMismatch, d, i)
		}
	}

	return nil
}

func TestScanDeviceWithSnapshot(t *testing.T) {
	checked := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	row := &fakeDeviceRow{values: []interface{}{
		"p1", "acme", "Front Desk", "192.0.2.10",
		int32(1161), "private", "v1", true, "front-desk",
		"offline", checked,
		false, int32(3), nil, int64(1200), "local", "HP", nil, nil,
		[]byte(`[{"kind":"toner","percent_remaining":5}]`), checked,
	}}

	d, err := scanDevice(row)
	require.NoError(t, err)

	assert.Equal(t, uint16(1161), d.SNMPPort())
	assert.Equal(t, "private", d.Community)
	assert.Equal(t, "front-desk", d.QueueName())
	require.NotNil(t, d.LastStatus)
	assert.Equal(t, models.StatusOffline, *d.LastStatus)

	require.NotNil(t, d.LastSnapshot)
	assert.False(t, d.LastSnapshot.Online)
	assert.Equal(t, 3, *d.LastSnapshot.StatusCode)
	assert.Nil(t, d.LastSnapshot.DeviceState)
	assert.Equal(t, int64(1200), *d.LastSnapshot.PageCount)

	toner, ok := d.LastSnapshot.Consumable(models.ConsumableToner)
	require.True(t, ok)
	assert.Equal(t, 5, *toner.PercentRemaining)
}

func TestScanDeviceWithoutHistory(t *testing.T) {
	row := &fakeDeviceRow{values: []interface{}{
		"p1", "acme", "Front Desk", "192.0.2.10",
		nil, nil, nil, false, nil,
		nil, nil,
		nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
	}}

	d, err := scanDevice(row)
	require.NoError(t, err)

	assert.Equal(t, uint16(161), d.SNMPPort())
	assert.Nil(t, d.LastStatus)
	assert.Nil(t, d.LastSnapshot)
	assert.True(t, d.LastCheckedAt.IsZero())
}
