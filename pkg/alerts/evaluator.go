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

// Package alerts turns status and snapshot transitions into deduplicated alerts.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
)

// Recovery describes a condition that cleared. No alert is raised for it;
// the hook lets an external workflow resolve the matching open alert.
type Recovery struct {
	TenantID string
	DeviceID string
	Kind     models.AlertKind
	Subject  string
	At       time.Time
}

// Evaluator applies the alert rules. It is safe for concurrent use; all
// mutable state lives in the Window.
type Evaluator struct {
	window     *Window
	thresholds ThresholdProvider
	now        func() time.Time
	newID      func() string
	onRecovery func(Recovery)
	logger     logger.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// WithIDGenerator overrides alert ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Evaluator) {
		e.newID = gen
	}
}

// WithRecoveryHook registers fn to be called for every recovery transition.
func WithRecoveryHook(fn func(Recovery)) Option {
	return func(e *Evaluator) {
		e.onRecovery = fn
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Evaluator) {
		e.logger = log
	}
}

// NewEvaluator returns an Evaluator backed by window. A nil provider uses
// the default thresholds for every tenant.
func NewEvaluator(window *Window, thresholds ThresholdProvider, opts ...Option) *Evaluator {
	if thresholds == nil {
		thresholds = &StaticThresholds{Default: DefaultThresholds()}
	}

	e := &Evaluator{
		window:     window,
		thresholds: thresholds,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     logger.NewTestLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Window returns the suppression window.
func (e *Evaluator) Window() *Window {
	return e.window
}

// Evaluate returns the alerts that cur raises against device. prev and
// prevStatus are nil on the first observation. Every returned alert has
// already claimed its suppression key; call Rollback for any that cannot be
// persisted.
func (e *Evaluator) Evaluate(
	device *models.Device,
	prev, cur *models.MetricSnapshot,
	prevStatus *models.Status,
	curStatus models.Status,
) []models.Alert {
	if device == nil || cur == nil {
		return nil
	}

	var out []models.Alert

	wasOffline := prevStatus != nil && *prevStatus == models.StatusOffline
	wasError := prevStatus != nil && *prevStatus == models.StatusError

	switch {
	case curStatus == models.StatusOffline && !wasOffline:
		out = e.raise(out, device, models.AlertOffline, models.SeverityHigh, "",
			fmt.Sprintf("Printer %s (%s) is offline", displayName(device), device.Address))
	case curStatus != models.StatusOffline && wasOffline:
		e.recovered(device, models.AlertOffline, "")
	}

	if curStatus == models.StatusError {
		out = e.raise(out, device, models.AlertErrorStatus, models.SeverityHigh, "",
			fmt.Sprintf("Printer %s (%s) reports an error state", displayName(device), device.Address))
	} else if wasError && curStatus != models.StatusOffline {
		e.recovered(device, models.AlertErrorStatus, "")
	}

	th := e.thresholds.Thresholds(device.TenantID)

	for _, c := range cur.Consumables {
		if c.PercentRemaining == nil {
			continue
		}

		pct := *c.PercentRemaining
		subject := string(c.Kind)

		prevPct, hadPrev := previousLevel(prev, c.Kind)

		if pct > th.Critical && hadPrev && prevPct <= th.Critical {
			e.recovered(device, models.AlertCriticalConsumable, subject)
		}

		switch {
		case pct <= th.Critical:
			out = e.raise(out, device, models.AlertCriticalConsumable, models.SeverityHigh, subject,
				fmt.Sprintf("%s at %d%% on %s (critical threshold %d%%)", c.Kind, pct, displayName(device), th.Critical))
		case pct <= th.Low:
			out = e.raise(out, device, models.AlertLowConsumable, models.SeverityMedium, subject,
				fmt.Sprintf("%s at %d%% on %s (low threshold %d%%)", c.Kind, pct, displayName(device), th.Low))
		case hadPrev && prevPct <= th.Low:
			e.recovered(device, models.AlertLowConsumable, subject)
		}
	}

	return out
}

// Rollback releases the suppression claim of an alert that was not persisted.
func (e *Evaluator) Rollback(alert *models.Alert) {
	e.window.Forget(KeyFor(alert), alert.ID)
}

func (e *Evaluator) raise(
	out []models.Alert,
	device *models.Device,
	kind models.AlertKind,
	severity models.Severity,
	subject, message string,
) []models.Alert {
	id := e.newID()
	key := Key{DeviceID: device.ID, Kind: kind, Subject: subject}

	if !e.window.TryRaise(key, id) {
		e.logger.Trace().
			Str("device_id", device.ID).
			Str("kind", string(kind)).
			Str("subject", subject).
			Msg("Alert suppressed")

		return out
	}

	return append(out, models.Alert{
		ID:         id,
		TenantID:   device.TenantID,
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Address:    device.Address,
		Kind:       kind,
		Severity:   severity,
		Subject:    subject,
		Message:    message,
		CreatedAt:  e.now().UTC(),
		State:      models.AlertStateOpen,
	})
}

func (e *Evaluator) recovered(device *models.Device, kind models.AlertKind, subject string) {
	if e.onRecovery == nil {
		return
	}

	e.onRecovery(Recovery{
		TenantID: device.TenantID,
		DeviceID: device.ID,
		Kind:     kind,
		Subject:  subject,
		At:       e.now().UTC(),
	})
}

// previousLevel returns the percentage kind had in prev, when known.
func previousLevel(prev *models.MetricSnapshot, kind models.ConsumableKind) (int, bool) {
	if prev == nil {
		return 0, false
	}

	c, ok := prev.Consumable(kind)
	if !ok || c.PercentRemaining == nil {
		return 0, false
	}

	return *c.PercentRemaining, true
}

func displayName(device *models.Device) string {
	if device.Name != "" {
		return device.Name
	}

	return device.ID
}
