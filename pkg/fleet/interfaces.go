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

//go:generate mockgen -destination=mock_fleet.go -package=fleet github.com/carverauto/printradar/pkg/fleet Clock,Ticker,Prober

import (
	"context"
	"time"

	"github.com/carverauto/printradar/pkg/models"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// Prober reads one device. *probe.Prober is the production implementation.
type Prober interface {
	Probe(ctx context.Context, device *models.Device, timeout time.Duration) (models.RawSample, error)
}
