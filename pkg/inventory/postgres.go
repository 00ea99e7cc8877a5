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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/printradar/pkg/models"
)

const selectActiveDevicesSQL = `
SELECT p.id,
	p.tenant_id,
	p.name,
	p.address,
	p.port,
	p.community,
	p.snmp_version,
	p.is_local_counter_source,
	p.local_queue_name,
	p.last_status,
	p.last_checked_at,
	m.online,
	m.status_code,
	m.device_state,
	m.page_count,
	m.page_count_source,
	m.model,
	m.serial,
	m.uptime_ticks,
	m.consumables,
	m.collected_at
FROM printers p
LEFT JOIN LATERAL (
	SELECT *
	FROM printer_metrics pm
	WHERE pm.printer_id = p.id
	ORDER BY pm.collected_at DESC
	LIMIT 1
) m ON TRUE
WHERE p.active
	AND ($1 = '' OR p.tenant_id = $1)
ORDER BY p.tenant_id, p.id`

// Querier is the subset of *pgxpool.Pool used by Postgres.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Postgres reads the device inventory from the printers table, along with
// the most recent metrics row for each printer.
type Postgres struct {
	db Querier
}

// NewPostgres returns a Postgres source over db.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

// ActiveDevices implements Source.
func (p *Postgres) ActiveDevices(ctx context.Context, tenantID string) ([]models.Device, error) {
	rows, err := p.db.Query(ctx, selectActiveDevicesSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query active devices: %w", err)
	}
	defer rows.Close()

	var out []models.Device

	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active devices: %w", err)
	}

	return out, nil
}

type deviceRow struct {
	port          *int32
	community     *string
	snmpVersion   *string
	queueName     *string
	lastStatus    *string
	lastCheckedAt *time.Time

	online          *bool
	statusCode      *int32
	deviceState     *int32
	pageCount       *int64
	pageCountSource *string
	model           *string
	serial          *string
	uptimeTicks     *int64
	consumables     []byte
	collectedAt     *time.Time
}

func scanDevice(row rowScanner) (models.Device, error) {
	var (
		d models.Device
		r deviceRow
	)

	if err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.Name,
		&d.Address,
		&r.port,
		&r.community,
		&r.snmpVersion,
		&d.IsLocalCounterSource,
		&r.queueName,
		&r.lastStatus,
		&r.lastCheckedAt,
		&r.online,
		&r.statusCode,
		&r.deviceState,
		&r.pageCount,
		&r.pageCountSource,
		&r.model,
		&r.serial,
		&r.uptimeTicks,
		&r.consumables,
		&r.collectedAt,
	); err != nil {
		return models.Device{}, fmt.Errorf("scan device: %w", err)
	}

	d.Active = true
	d.Community = deref(r.community)
	d.SNMPVersion = deref(r.snmpVersion)
	d.LocalQueueName = deref(r.queueName)

	if r.port != nil && *r.port > 0 && *r.port <= 65535 {
		d.Port = uint16(*r.port)
	}

	if r.lastStatus != nil {
		d.LastStatus = models.StatusPtr(models.ParseStatus(*r.lastStatus))
	}

	if r.lastCheckedAt != nil {
		d.LastCheckedAt = *r.lastCheckedAt
	}

	snap, err := r.snapshot(d.ID)
	if err != nil {
		return models.Device{}, err
	}

	d.LastSnapshot = snap

	return d, nil
}

func (r *deviceRow) snapshot(deviceID string) (*models.MetricSnapshot, error) {
	if r.collectedAt == nil {
		return nil, nil
	}

	s := &models.MetricSnapshot{
		DeviceID:        deviceID,
		Online:          r.online != nil && *r.online,
		StatusCode:      intFrom32(r.statusCode),
		DeviceState:     intFrom32(r.deviceState),
		PageCount:       r.pageCount,
		PageCountSource: deref(r.pageCountSource),
		Model:           deref(r.model),
		Serial:          deref(r.serial),
		UptimeTicks:     r.uptimeTicks,
		CollectedAt:     *r.collectedAt,
	}

	if len(r.consumables) > 0 {
		if err := json.Unmarshal(r.consumables, &s.Consumables); err != nil {
			return nil, fmt.Errorf("decode consumables for %s: %w", deviceID, err)
		}
	}

	return s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func intFrom32(v *int32) *int {
	if v == nil {
		return nil
	}

	i := int(*v)

	return &i
}
