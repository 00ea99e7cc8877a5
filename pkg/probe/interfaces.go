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

//go:generate mockgen -destination=mock_probe.go -package=probe github.com/carverauto/printradar/pkg/probe Pinger,Transport

import (
	"context"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Pinger performs the liveness check.
type Pinger interface {
	Ping(ctx context.Context, address string, timeout time.Duration) error
}

// Target is the addressing and credentials of one SNMP read.
type Target struct {
	Address   string
	Port      uint16
	Community string
	Version   gosnmp.SnmpVersion
}

// Transport issues a single batched GET. It must release any socket it
// opens before returning and honour ctx for cancellation and deadline.
type Transport interface {
	Get(ctx context.Context, target Target, oids []string) (*gosnmp.SnmpPacket, error)
}
