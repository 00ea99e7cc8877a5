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

package sink

import (
	"context"

	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
)

// Notifying persists to Store and then hands raised alerts to Dispatcher.
// A dispatch failure after a successful write is logged and not returned,
// since the stored alert is authoritative.
type Notifying struct {
	Store      Sink
	Dispatcher AlertDispatcher
	Logger     logger.Logger
}

// SaveStatus implements Sink.
func (n *Notifying) SaveStatus(ctx context.Context, deviceID string, status models.Status, snapshot *models.MetricSnapshot) error {
	return n.Store.SaveStatus(ctx, deviceID, status, snapshot)
}

// RaiseAlert implements Sink.
func (n *Notifying) RaiseAlert(ctx context.Context, alert *models.Alert) error {
	if err := n.Store.RaiseAlert(ctx, alert); err != nil {
		return err
	}

	if n.Dispatcher == nil {
		return nil
	}

	if err := n.Dispatcher.Dispatch(ctx, alert); err != nil && n.Logger != nil {
		n.Logger.Warn().
			Err(err).
			Str("alert_id", alert.ID).
			Str("device_id", alert.DeviceID).
			Msg("Alert stored but not dispatched")
	}

	return nil
}

// Ping checks the store when it supports it.
func (n *Notifying) Ping(ctx context.Context) error {
	if p, ok := n.Store.(Pinger); ok {
		return p.Ping(ctx)
	}

	return nil
}

// OpenAlerts reads from the store when it supports it.
func (n *Notifying) OpenAlerts(ctx context.Context) ([]models.Alert, error) {
	if l, ok := n.Store.(OpenAlertLoader); ok {
		return l.OpenAlerts(ctx)
	}

	return nil, nil
}
