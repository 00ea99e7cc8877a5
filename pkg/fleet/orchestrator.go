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

// Package fleet polls the printer fleet: one bounded worker pool per cycle
// runs the probe, normalize, resolve, evaluate and sink pipeline for every
// device and summarizes the result in a CycleReport.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/carverauto/printradar/pkg/localcounter"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
	"github.com/carverauto/printradar/pkg/probe"
	"github.com/carverauto/printradar/pkg/sink"
	"github.com/carverauto/printradar/pkg/status"
	"github.com/carverauto/printradar/pkg/tenant"
)

var (
	// ErrSinkUnavailable is returned when the sink fails its pre-cycle check.
	// No device is dispatched.
	ErrSinkUnavailable = errors.New("sink unavailable")
	// ErrCycleAborted is returned when the cycle context was canceled before
	// every device completed.
	ErrCycleAborted = errors.New("cycle aborted")

	errMissingDependency  = errors.New("orchestrator dependency is nil")
	errGracePeriodExpired = errors.New("abandoned after grace period")
	errPipelineFault      = errors.New("pipeline fault")
)

const tracerName = "printradar.fleet"

// Normalizer converts a raw sample into a snapshot. *normalize.Normalizer
// is the production implementation.
type Normalizer interface {
	Normalize(device *models.Device, sample *models.RawSample, localPages *int64) models.MetricSnapshot
}

// Evaluator derives alerts from a state transition and releases suppression
// claims of alerts that could not be persisted. *alerts.Evaluator is the
// production implementation.
type Evaluator interface {
	Evaluate(device *models.Device, prev, cur *models.MetricSnapshot, prevStatus *models.Status, curStatus models.Status) []models.Alert
	Rollback(alert *models.Alert)
}

// Orchestrator runs polling cycles over a device list.
type Orchestrator struct {
	prober     Prober
	normalizer Normalizer
	evaluator  Evaluator
	sink       sink.Sink
	resolve    func(*models.MetricSnapshot) models.Status
	counter    localcounter.Reader

	concurrency  int
	probeTimeout time.Duration
	gracePeriod  time.Duration
	limiter      *rate.Limiter

	clock     Clock
	logger    logger.Logger
	collector string

	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	metrics       *instruments
	state         *stateCache
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrencyLimit bounds the number of devices processed at once.
func WithConcurrencyLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithProbeTimeout sets the per-device probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.probeTimeout = d
		}
	}
}

// WithGracePeriod sets how long in-flight devices may finish after the cycle
// is canceled.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.gracePeriod = d
		}
	}
}

// WithRateLimit caps device dispatches per second. A non-positive rate
// disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Orchestrator) {
		if perSecond <= 0 {
			o.limiter = nil

			return
		}

		if burst <= 0 {
			burst = 1
		}

		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLocalCounter reads page counts for devices flagged as local counter
// sources.
func WithLocalCounter(r localcounter.Reader) Option {
	return func(o *Orchestrator) {
		o.counter = r
	}
}

// WithResolver replaces the status resolver.
func WithResolver(fn func(*models.MetricSnapshot) models.Status) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.resolve = fn
		}
	}
}

// WithClock sets the clock used for timestamps and durations.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithCollectorID names the collector in reports and logs.
func WithCollectorID(id string) Option {
	return func(o *Orchestrator) {
		o.collector = id
	}
}

// WithMeterProvider sets the provider for cycle metrics. The global
// provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) {
		o.meterProvider = mp
	}
}

// WithTracerProvider sets the provider for per-device spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates an Orchestrator.
func New(prober Prober, normalizer Normalizer, evaluator Evaluator, s sink.Sink, opts ...Option) (*Orchestrator, error) {
	if prober == nil || normalizer == nil || evaluator == nil || s == nil {
		return nil, errMissingDependency
	}

	o := &Orchestrator{
		prober:       prober,
		normalizer:   normalizer,
		evaluator:    evaluator,
		sink:         s,
		resolve:      status.Resolve,
		concurrency:  defaultConcurrencyLimit,
		probeTimeout: defaultProbeTimeout,
		gracePeriod:  defaultGracePeriod,
		clock:        realClock{},
		logger:       logger.NewTestLogger(),
		state:        newStateCache(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	o.metrics = newInstruments(o.meterProvider)

	return o, nil
}

// RunCycle processes every device once. Devices with a repeated ID are
// processed only the first time they appear. Per-device failures are
// recorded in the report; the error is ErrSinkUnavailable when the sink
// fails its health check, ErrCycleAborted when ctx was canceled before the
// cycle completed.
func (o *Orchestrator) RunCycle(ctx context.Context, devices []models.Device) (CycleReport, error) {
	report := CycleReport{
		Collector: o.collector,
		Started:   o.clock.Now(),
		Durations: make(map[string]time.Duration),
	}

	if p, ok := o.sink.(sink.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			report.Finished = o.clock.Now()
			report.Aborted = true
			report.Skipped = len(devices)

			o.metrics.recordSinkError(ctx, "ping")
			o.logger.Error().Err(err).Int("devices", len(devices)).Msg("Sink unavailable, skipping cycle")

			return report, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		}
	}

	queue := dedupe(devices)
	report.Devices = len(queue)
	report.Skipped = len(devices) - len(queue)

	o.state.retain(queue)

	c := newCycle(&report)

	// Workers outlive ctx by the grace period.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	jobs := make(chan *models.Device)
	fed := make(chan int, 1)

	var wg sync.WaitGroup

	for range min(o.concurrency, len(queue)) {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for device := range jobs {
				o.runDevice(workCtx, c, device)
			}
		}()
	}

	go func() {
		fed <- o.feedDevices(ctx, queue, jobs)
	}()

	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	var aborted bool

	select {
	case <-done:
	case <-ctx.Done():
		aborted = true

		o.awaitGrace(done, c, cancelWork)
	}

	dispatched := <-fed
	report.Skipped += len(queue) - dispatched

	if !aborted && ctx.Err() != nil && dispatched < len(queue) {
		aborted = true
	}

	c.close()
	c.sortOutcomes()

	report.Finished = o.clock.Now()
	report.Aborted = aborted

	o.metrics.recordCycle(ctx, report.Duration(), dispatched, aborted)

	o.logger.Info().
		Str("collector", o.collector).
		Int("devices", report.Devices).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("abandoned", report.Abandoned).
		Int("skipped", report.Skipped).
		Dur("duration", report.Duration()).
		Bool("aborted", aborted).
		Msg("Polling cycle completed")

	if aborted {
		return report, ErrCycleAborted
	}

	return report, nil
}

// awaitGrace gives in-flight devices the grace period to finish, then
// cancels them and records them as abandoned.
func (o *Orchestrator) awaitGrace(done <-chan struct{}, c *cycle, cancelWork context.CancelFunc) {
	timer := time.NewTimer(o.gracePeriod)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
	}

	cancelWork()

	for _, a := range c.abandon(o.clock.Now()) {
		o.metrics.recordProbe(context.Background(), string(OutcomeAbandoned))

		o.logger.Warn().
			Str("device_id", a.DeviceID).
			Str("tenant_id", a.TenantID).
			Dur("elapsed", a.Duration).
			Msg("Abandoned device after grace period")
	}
}

// feedDevices hands devices to the workers until the queue is drained or ctx
// is canceled, then closes jobs. It returns the number dispatched.
func (o *Orchestrator) feedDevices(ctx context.Context, queue []*models.Device, jobs chan<- *models.Device) int {
	defer close(jobs)

	for i, device := range queue {
		if ctx.Err() != nil {
			return i
		}

		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return i
			}
		}

		select {
		case jobs <- device:
		case <-ctx.Done():
			return i
		}
	}

	return len(queue)
}

func (o *Orchestrator) runDevice(ctx context.Context, c *cycle, device *models.Device) {
	start := o.clock.Now()

	if !c.begin(device, start) {
		return
	}

	outcome := o.process(ctx, device)
	outcome.Duration = o.clock.Now().Sub(start)

	if !c.finish(outcome) {
		o.logger.Debug().Str("device_id", device.ID).Msg("Discarding result of abandoned device")

		return
	}

	o.metrics.recordProbe(ctx, string(outcome.Outcome))

	ev := o.logger.Debug()
	if outcome.Outcome != OutcomeSucceeded {
		ev = o.logger.Warn().Err(outcome.Err)
	}

	ev.Str("device_id", device.ID).
		Str("tenant_id", device.TenantID).
		Str("status", outcome.Status.String()).
		Str("reason", outcome.Reason).
		Int("alerts", outcome.Alerts).
		Dur("duration", outcome.Duration).
		Msg("Device processed")
}

// assessment is the output of the pure pipeline stages.
type assessment struct {
	snapshot models.MetricSnapshot
	status   models.Status
	alerts   []models.Alert
}

// process runs the pipeline for one device. Stages run strictly in order.
func (o *Orchestrator) process(ctx context.Context, device *models.Device) DeviceOutcome {
	ctx, span := o.tracer.Start(ctx, "fleet.device",
		trace.WithAttributes(
			attribute.String("device.id", device.ID),
			attribute.String("tenant.id", device.TenantID),
			attribute.String("device.address", device.Address),
		))
	defer span.End()

	ctx = tenant.WithContext(ctx, &tenant.Info{TenantID: device.TenantID, CollectorID: o.collector})

	out := DeviceOutcome{
		DeviceID: device.ID,
		TenantID: device.TenantID,
		Outcome:  OutcomeSucceeded,
	}

	sample, probeErr := o.prober.Probe(ctx, device, o.probeTimeout)

	reachable := true

	if probeErr != nil {
		out.Err = probeErr
		span.RecordError(probeErr)

		kind, _ := probe.KindOf(probeErr)

		switch kind {
		case probe.KindMalformed:
			out.Reason = ReasonMalformed
		case probe.KindTimeout:
			out.Outcome = OutcomeFailed
			out.Reason = ReasonTimeout
			reachable = false
		default:
			out.Outcome = OutcomeFailed
			out.Reason = ReasonUnreachable
			reachable = false
		}
	}

	var localPages *int64

	// The host spooler counts pages whether or not the device answers the
	// network probe.
	if device.IsLocalCounterSource && o.counter != nil {
		localPages = o.readLocalCounter(ctx, device)
	}

	result, err := o.assess(device, &sample, reachable, localPages)
	if err != nil {
		span.RecordError(err)

		out.Outcome = OutcomeFailed
		out.Reason = ReasonFault
		out.Err = errors.Join(out.Err, err)

		o.logger.Error().Err(err).Str("device_id", device.ID).Msg("Pipeline fault, recording error status")

		result = assessment{
			snapshot: models.MetricSnapshot{
				DeviceID:    device.ID,
				Online:      sample.Online,
				CollectedAt: sample.CollectedAt,
			},
			status: models.StatusError,
		}
	}

	out.Status = result.status

	span.SetAttributes(
		attribute.String("device.status", result.status.String()),
		attribute.Int("alerts.count", len(result.alerts)),
	)

	if ctx.Err() != nil {
		o.rollback(result.alerts)

		out.Outcome = OutcomeAbandoned
		out.Reason = ReasonAbandoned
		out.Err = ctx.Err()

		return out
	}

	persisted, writeErr := o.persist(ctx, device, &result)
	out.Alerts = persisted

	if writeErr != nil {
		span.RecordError(writeErr)
		span.SetStatus(codes.Error, ReasonSinkWrite)

		out.Outcome = OutcomeFailed
		out.Reason = ReasonSinkWrite
		out.Err = errors.Join(out.Err, writeErr)

		return out
	}

	// A faulted pipeline is not a real observation; keep the previous state
	// so the next cycle compares against the last good one.
	if out.Reason != ReasonFault {
		o.state.store(device, result.status, &result.snapshot)
	}

	if out.Outcome != OutcomeSucceeded {
		span.SetStatus(codes.Error, out.Reason)
	}

	return out
}

// assess runs normalize, resolve and evaluate. A panic in any of them is
// returned as errPipelineFault.
func (o *Orchestrator) assess(
	device *models.Device,
	sample *models.RawSample,
	reachable bool,
	localPages *int64,
) (result assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPipelineFault, r)
		}
	}()

	prevStatus, prevSnap := o.state.previous(device)

	switch {
	case reachable:
		result.snapshot = o.normalizer.Normalize(device, sample, localPages)
	case device.IsLocalCounterSource && localPages != nil:
		offline := models.RawSample{DeviceID: device.ID, CollectedAt: sample.CollectedAt}
		result.snapshot = o.normalizer.Normalize(device, &offline, localPages)
	default:
		result.snapshot = models.OfflineSnapshot(device.ID, sample.CollectedAt)
	}

	result.status = o.resolve(&result.snapshot)
	result.alerts = o.evaluator.Evaluate(device, prevSnap, &result.snapshot, prevStatus, result.status)

	return result, nil
}

// persist writes the status and then each alert. Alerts that are not
// persisted release their suppression claim so the next cycle raises them
// again.
func (o *Orchestrator) persist(ctx context.Context, device *models.Device, result *assessment) (int, error) {
	if err := o.sink.SaveStatus(ctx, device.ID, result.status, &result.snapshot); err != nil {
		o.metrics.recordSinkError(ctx, "save_status")
		o.rollback(result.alerts)

		return 0, fmt.Errorf("save status: %w", err)
	}

	var (
		persisted int
		errs      error
	)

	for i := range result.alerts {
		alert := &result.alerts[i]

		if err := o.sink.RaiseAlert(ctx, alert); err != nil {
			o.metrics.recordSinkError(ctx, "raise_alert")
			o.evaluator.Rollback(alert)

			errs = errors.Join(errs, fmt.Errorf("raise alert %s: %w", alert.Kind, err))

			continue
		}

		persisted++

		o.metrics.recordAlert(ctx, string(alert.Kind))
	}

	return persisted, errs
}

func (o *Orchestrator) rollback(alerts []models.Alert) {
	for i := range alerts {
		o.evaluator.Rollback(&alerts[i])
	}
}

func (o *Orchestrator) readLocalCounter(ctx context.Context, device *models.Device) *int64 {
	pages, err := o.counter.PageCount(ctx, device.QueueName())
	if err != nil {
		ev := o.logger.Warn()
		if errors.Is(err, localcounter.ErrNoCounter) {
			ev = o.logger.Debug()
		}

		ev.Err(err).
			Str("device_id", device.ID).
			Str("queue", device.QueueName()).
			Msg("Local page counter unavailable")

		return nil
	}

	return &pages
}

// dedupe returns pointers into devices with repeated IDs removed, keeping
// the first occurrence.
func dedupe(devices []models.Device) []*models.Device {
	seen := make(map[string]struct{}, len(devices))
	out := make([]*models.Device, 0, len(devices))

	for i := range devices {
		if _, ok := seen[devices[i].ID]; ok {
			continue
		}

		seen[devices[i].ID] = struct{}{}
		out = append(out, &devices[i])
	}

	return out
}
