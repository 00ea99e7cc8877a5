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

package fleet

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "printradar.fleet"

	metricProbeTotal     = "printradar_probe_total"
	metricCycleDuration  = "printradar_cycle_duration_seconds"
	metricAlertsRaised   = "printradar_alerts_raised_total"
	metricSinkErrors     = "printradar_sink_errors_total"
	metricDevicesInCycle = "printradar_cycle_devices"
)

// instruments holds the OTel handles of one orchestrator. A nil handle
// means registration failed and the record is skipped.
type instruments struct {
	probeTotal    metric.Int64Counter
	cycleDuration metric.Float64Histogram
	alertsRaised  metric.Int64Counter
	sinkErrors    metric.Int64Counter
	cycleDevices  metric.Int64Histogram
}

func newInstruments(mp metric.MeterProvider) *instruments {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(meterName)
	inst := &instruments{}

	var err error

	if inst.probeTotal, err = meter.Int64Counter(
		metricProbeTotal,
		metric.WithDescription("Device probes by outcome"),
	); err != nil {
		otel.Handle(err)
	}

	if inst.cycleDuration, err = meter.Float64Histogram(
		metricCycleDuration,
		metric.WithDescription("Wall time of a polling cycle"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	}

	if inst.alertsRaised, err = meter.Int64Counter(
		metricAlertsRaised,
		metric.WithDescription("Alerts persisted by kind"),
	); err != nil {
		otel.Handle(err)
	}

	if inst.sinkErrors, err = meter.Int64Counter(
		metricSinkErrors,
		metric.WithDescription("Failed sink writes by operation"),
	); err != nil {
		otel.Handle(err)
	}

	if inst.cycleDevices, err = meter.Int64Histogram(
		metricDevicesInCycle,
		metric.WithDescription("Devices dispatched per cycle"),
	); err != nil {
		otel.Handle(err)
	}

	return inst
}

func (i *instruments) recordProbe(ctx context.Context, outcome string) {
	if i.probeTotal == nil {
		return
	}

	i.probeTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (i *instruments) recordCycle(ctx context.Context, d time.Duration, devices int, aborted bool) {
	if i.cycleDuration != nil {
		i.cycleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("aborted", aborted)))
	}

	if i.cycleDevices != nil {
		i.cycleDevices.Record(ctx, int64(devices))
	}
}

func (i *instruments) recordAlert(ctx context.Context, kind string) {
	if i.alertsRaised == nil {
		return
	}

	i.alertsRaised.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (i *instruments) recordSinkError(ctx context.Context, op string) {
	if i.sinkErrors == nil {
		return
	}

	i.sinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
