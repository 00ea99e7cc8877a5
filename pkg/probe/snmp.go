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

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/printradar/pkg/logger"
)

const defaultSNMPTimeout = 2 * time.Second

// SNMPTransport is the gosnmp-backed Transport. A client is built for every
// call and its socket is closed on every return path.
type SNMPTransport struct {
	logger logger.Logger
}

// NewSNMPTransport returns a Transport that talks UDP SNMP v1/v2c.
func NewSNMPTransport(log logger.Logger) *SNMPTransport {
	return &SNMPTransport{logger: log}
}

// Get implements Transport. The timeout is taken from the ctx deadline and
// retries are disabled.
func (t *SNMPTransport) Get(ctx context.Context, target Target, oids []string) (*gosnmp.SnmpPacket, error) {
	timeout := defaultSNMPTimeout

	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	maxOids := gosnmp.MaxOids
	if len(oids) > maxOids {
		maxOids = len(oids)
	}

	client := &gosnmp.GoSNMP{
		Target:    target.Address,
		Port:      target.Port,
		Transport: "udp",
		Community: target.Community,
		Version:   target.Version,
		Timeout:   timeout,
		Retries:   0,
		MaxOids:   maxOids,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", target.Address, target.Port, err)
	}

	defer func() {
		if err := client.Conn.Close(); err != nil && t.logger != nil {
			t.logger.Debug().Err(err).Str("target", target.Address).Msg("Failed to close SNMP connection")
		}
	}()

	result, err := client.Get(oids)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target.Address, err)
	}

	return result, nil
}
