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

// Package normalize turns a raw probe sample into a typed MetricSnapshot.
// It performs no I/O.
package normalize

import (
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/carverauto/printradar/pkg/models"
	"github.com/carverauto/printradar/pkg/probe"
)

// Printer MIB reserves small negative values for levels it cannot report.
const (
	levelOther         = -1
	levelUnknown       = -2
	levelSomeRemaining = -3
)

// Normalizer maps sample values onto snapshot fields through the variable table.
type Normalizer struct {
	variables probe.VariableTable
}

// New returns a Normalizer for samples read with variables.
func New(variables probe.VariableTable) *Normalizer {
	return &Normalizer{variables: variables}
}

// Normalize builds the snapshot for device. Values that are absent or do not
// parse are left nil. localPages is used only for local counter devices and
// only when the sample carries no page count of its own.
func (n *Normalizer) Normalize(device *models.Device, sample *models.RawSample, localPages *int64) models.MetricSnapshot {
	snap := models.MetricSnapshot{
		DeviceID:    device.ID,
		Online:      sample.Online,
		CollectedAt: sample.CollectedAt,
	}

	if sample.Online {
		snap.Model = n.text(sample, probe.RoleModel)
		snap.Serial = n.text(sample, probe.RoleSerial)
		snap.UptimeTicks = n.nonNegative(sample, probe.RoleUptime)
		snap.StatusCode = toInt(n.integer(sample, probe.RoleStatus, ""))
		snap.DeviceState = toInt(n.integer(sample, probe.RoleDeviceState, ""))

		if pages := n.nonNegative(sample, probe.RolePageCount); pages != nil {
			snap.PageCount = pages
			snap.PageCountSource = models.PageCountSourceSNMP
		}

		snap.Consumables = n.consumables(sample)
	}

	if snap.PageCount == nil && device.IsLocalCounterSource && localPages != nil && *localPages >= 0 {
		pages := *localPages
		snap.PageCount = &pages
		snap.PageCountSource = models.PageCountSourceLocal
	}

	return snap
}

func (n *Normalizer) consumables(sample *models.RawSample) []models.ConsumableLevel {
	var out []models.ConsumableLevel

	for _, kind := range models.ConsumableKinds {
		_, hasLevel := n.variables.ByRole(probe.RoleConsumableLevel, kind)
		_, hasMax := n.variables.ByRole(probe.RoleConsumableMax, kind)

		if !hasLevel && !hasMax {
			continue
		}

		current := level(n.integer(sample, probe.RoleConsumableLevel, kind))
		maxLevel := level(n.integer(sample, probe.RoleConsumableMax, kind))

		if current == nil && maxLevel == nil {
			continue
		}

		c := models.ConsumableLevel{
			Kind:    kind,
			Current: current,
			Max:     maxLevel,
		}

		if current != nil && maxLevel != nil {
			c.PercentRemaining = PercentRemaining(*current, *maxLevel)
		}

		out = append(out, c)
	}

	return out
}

func (n *Normalizer) raw(sample *models.RawSample, role probe.Role, kind models.ConsumableKind) (models.RawValue, bool) {
	v, ok := n.variables.ByRole(role, kind)
	if !ok {
		return models.RawValue{}, false
	}

	raw, ok := sample.Values[v.Name]

	return raw, ok
}

func (n *Normalizer) text(sample *models.RawSample, role probe.Role) string {
	raw, ok := n.raw(sample, role, "")
	if !ok {
		return ""
	}

	return strings.TrimSpace(raw.Text)
}

func (n *Normalizer) integer(sample *models.RawSample, role probe.Role, kind models.ConsumableKind) *int64 {
	raw, ok := n.raw(sample, role, kind)
	if !ok {
		return nil
	}

	return ParseInteger(raw.Text)
}

func (n *Normalizer) nonNegative(sample *models.RawSample, role probe.Role) *int64 {
	v := n.integer(sample, role, "")
	if v == nil || *v < 0 {
		return nil
	}

	return v
}

// level drops the Printer MIB sentinels and any other negative value.
func level(v *int64) *int64 {
	if v == nil {
		return nil
	}

	switch *v {
	case levelOther, levelUnknown, levelSomeRemaining:
		return nil
	}

	if *v < 0 {
		return nil
	}

	return v
}

func toInt(v *int64) *int {
	if v == nil || *v > math.MaxInt32 || *v < math.MinInt32 {
		return nil
	}

	i := int(*v)

	return &i
}

// PercentRemaining returns floor(current*100/max) clamped to [0, 100], or nil
// when max is not positive. The product is computed without overflow.
func PercentRemaining(current, maxLevel int64) *int {
	if maxLevel <= 0 {
		return nil
	}

	var pct int64

	switch {
	case current <= 0:
		pct = 0
	case current >= maxLevel:
		pct = 100
	default:
		// 0 < current < maxLevel, so the 128-bit quotient is below 100.
		hi, lo := bits.Mul64(uint64(current), 100)
		q, _ := bits.Div64(hi, lo, uint64(maxLevel))
		pct = int64(q)
	}

	p := int(pct)

	return &p
}

// ParseInteger reads a decimal, 0x-prefixed hex or Hex-STRING value.
// Anything else yields nil.
func ParseInteger(text string) *int64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v
	}

	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		if u, err := strconv.ParseUint(hex, 16, 64); err == nil && u <= math.MaxInt64 {
			v := int64(u)
			return &v
		}

		return nil
	}

	if body, ok := strings.CutPrefix(s, "Hex-STRING:"); ok {
		return parseHexOctets(body)
	}

	return nil
}

// parseHexOctets reads space separated octets as a big-endian unsigned value.
func parseHexOctets(body string) *int64 {
	fields := strings.Fields(body)
	if len(fields) == 0 || len(fields) > 8 {
		return nil
	}

	var u uint64

	for _, f := range fields {
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil
		}

		u = u<<8 | b
	}

	if u > math.MaxInt64 {
		return nil
	}

	v := int64(u)

	return &v
}
