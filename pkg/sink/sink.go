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

//go:generate mockgen -destination=mock_sink.go -package=sink github.com/carverauto/printradar/pkg/sink Sink,Pinger,OpenAlertLoader,AlertDispatcher

// Package sink persists device status and alerts and delivers alerts to
// downstream consumers.
package sink

import (
	"context"
	"errors"

	"github.com/carverauto/printradar/pkg/models"
)

var (
	// ErrClosed is returned by sinks used after Close.
	ErrClosed = errors.New("sink closed")

	errNilSnapshot = errors.New("snapshot is required")
	errNilAlert    = errors.New("alert is required")
	errEmptyID     = errors.New("empty identifier")
)

// Sink receives the results of each device pipeline. Implementations must be
// safe for concurrent use and idempotent on alert ID.
type Sink interface {
	// SaveStatus records status and the snapshot it was derived from together.
	SaveStatus(ctx context.Context, deviceID string, status models.Status, snapshot *models.MetricSnapshot) error
	RaiseAlert(ctx context.Context, alert *models.Alert) error
}

// Pinger is implemented by sinks that can report availability before a cycle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpenAlertLoader is implemented by sinks that can list unresolved alerts.
type OpenAlertLoader interface {
	OpenAlerts(ctx context.Context) ([]models.Alert, error)
}

// AlertDispatcher delivers a persisted alert to notification consumers.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert) error
}

func validateStatus(deviceID string, snapshot *models.MetricSnapshot) error {
	if deviceID == "" {
		return errEmptyID
	}

	if snapshot == nil {
		return errNilSnapshot
	}

	return nil
}

func validateAlert(alert *models.Alert) error {
	if alert == nil {
		return errNilAlert
	}

	if alert.ID == "" || alert.DeviceID == "" {
		return errEmptyID
	}

	return nil
}
