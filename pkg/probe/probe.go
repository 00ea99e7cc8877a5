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

// Package probe reads one printer: an ICMP liveness check followed, when the
// device answers, by a single batched SNMP GET of the variable table.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
)

const (
	defaultPingTimeout = 2 * time.Second
)

// Prober is stateless between calls and safe for concurrent use.
type Prober struct {
	pinger      Pinger
	transport   Transport
	variables   VariableTable
	oids        []string
	byOID       map[string]Variable
	pingTimeout time.Duration
	skipPing    bool
	now         func() time.Time
	logger      logger.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithPingTimeout sets the liveness timeout.
func WithPingTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.pingTimeout = d
		}
	}
}

// WithoutPing disables the liveness check, for networks that drop ICMP.
func WithoutPing() Option {
	return func(p *Prober) {
		p.skipPing = true
	}
}

// WithClock overrides the time source used for CollectedAt and Latency.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Prober) {
		p.logger = log
	}
}

// New builds a Prober over the given table.
func New(pinger Pinger, transport Transport, variables VariableTable, opts ...Option) (*Prober, error) {
	if err := variables.Validate(); err != nil {
		return nil, fmt.Errorf("invalid variable table: %w", err)
	}

	p := &Prober{
		pinger:      pinger,
		transport:   transport,
		variables:   variables,
		oids:        variables.OIDs(),
		byOID:       make(map[string]Variable, len(variables)),
		pingTimeout: defaultPingTimeout,
		now:         time.Now,
		logger:      logger.NewTestLogger(),
	}

	for _, v := range variables {
		p.byOID[NormalizeOID(v.OID)] = v
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Variables returns the table this prober requests.
func (p *Prober) Variables() VariableTable {
	return p.variables
}

// Probe checks liveness and reads the variable table from device. The
// returned error, when not nil, is always a *Error. On a liveness failure the
// sample has Online false and no SNMP request is sent. A Malformed error still
// returns every variable that parsed.
func (p *Prober) Probe(ctx context.Context, device *models.Device, timeout time.Duration) (models.RawSample, error) {
	start := p.now()

	sample := models.RawSample{
		DeviceID:    device.ID,
		CollectedAt: start,
	}

	if device.Address == "" {
		return sample, newError(KindUnreachable, "resolve", errEmptyAddress)
	}

	target, err := targetFor(device)
	if err != nil {
		return sample, newError(KindUnreachable, "configure", err)
	}

	if !p.skipPing {
		pingTimeout := p.pingTimeout
		if timeout > 0 && timeout < pingTimeout {
			pingTimeout = timeout
		}

		if err := p.pinger.Ping(ctx, device.Address, pingTimeout); err != nil {
			sample.Latency = p.now().Sub(start)

			p.logger.Debug().
				Str("device_id", device.ID).
				Str("address", device.Address).
				Err(err).
				Msg("Liveness check failed")

			return sample, newError(classify(ctx, err), "ping", err)
		}
	}

	sample.Online = true

	getCtx := ctx

	if timeout > 0 {
		var cancel context.CancelFunc

		getCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	packet, err := p.transport.Get(getCtx, target, p.oids)

	sample.Latency = p.now().Sub(start)

	if err != nil {
		return sample, newError(classify(getCtx, err), "get", err)
	}

	return sample, p.decode(packet, &sample)
}

// decode fills sample from packet and reports a Malformed error when the
// response is incomplete or carries an error status.
func (p *Prober) decode(packet *gosnmp.SnmpPacket, sample *models.RawSample) error {
	sample.Values = make(map[string]models.RawValue, len(p.variables))

	if packet == nil {
		sample.Missing = p.variableNames()
		return newError(KindMalformed, "decode", errShortResponse)
	}

	var problems []error

	if packet.Error != gosnmp.NoError {
		problems = append(problems, fmt.Errorf("%w: %s at index %d", errErrorStatus, packet.Error, packet.ErrorIndex))
	}

	if len(packet.Variables) < len(p.oids) {
		problems = append(problems, fmt.Errorf("%w: got %d of %d", errShortResponse, len(packet.Variables), len(p.oids)))
	}

	for _, pdu := range packet.Variables {
		v, ok := p.byOID[NormalizeOID(pdu.Name)]
		if !ok {
			continue
		}

		raw, present, err := rawValue(pdu)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", v.Name, err))
			continue
		}

		if present {
			sample.Values[v.Name] = raw
		}
	}

	for _, v := range p.variables {
		if _, ok := sample.Values[v.Name]; !ok {
			sample.Missing = append(sample.Missing, v.Name)
		}
	}

	if len(problems) > 0 {
		return newError(KindMalformed, "decode", errors.Join(problems...))
	}

	return nil
}

func (p *Prober) variableNames() []string {
	names := make([]string, len(p.variables))
	for i, v := range p.variables {
		names[i] = v.Name
	}

	return names
}

// rawValue converts a varbind. present is false for the "no value" markers,
// which are absent data rather than errors.
func rawValue(pdu gosnmp.SnmpPDU) (models.RawValue, bool, error) {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.Null, gosnmp.EndOfMibView:
		return models.RawValue{}, false, nil
	case gosnmp.Integer:
		return numeric(models.RawInteger, pdu.Value)
	case gosnmp.Counter32, gosnmp.Counter64:
		return numeric(models.RawCounter, pdu.Value)
	case gosnmp.Gauge32, gosnmp.Uinteger32:
		return numeric(models.RawGauge, pdu.Value)
	case gosnmp.TimeTicks:
		return numeric(models.RawTimeTicks, pdu.Value)
	case gosnmp.OctetString:
		b, ok := pdu.Value.([]byte)
		if !ok {
			return models.RawValue{}, false, fmt.Errorf("%w %T for octet string", errUnexpectedValueType, pdu.Value)
		}

		return models.RawValue{Type: models.RawOctetString, Text: octetText(b)}, true, nil
	case gosnmp.ObjectIdentifier, gosnmp.IPAddress:
		s, ok := pdu.Value.(string)
		if !ok {
			return models.RawValue{}, false, fmt.Errorf("%w %T for %s", errUnexpectedValueType, pdu.Value, pdu.Type)
		}

		return models.RawValue{Type: models.RawObjectID, Text: s}, true, nil
	default:
		return models.RawValue{Type: models.RawOther, Text: fmt.Sprint(pdu.Value)}, true, nil
	}
}

func numeric(t models.RawType, value interface{}) (models.RawValue, bool, error) {
	var text string

	switch n := value.(type) {
	case int:
		text = strconv.FormatInt(int64(n), 10)
	case int32:
		text = strconv.FormatInt(int64(n), 10)
	case int64:
		text = strconv.FormatInt(n, 10)
	case uint:
		text = strconv.FormatUint(uint64(n), 10)
	case uint32:
		text = strconv.FormatUint(uint64(n), 10)
	case uint64:
		text = strconv.FormatUint(n, 10)
	default:
		return models.RawValue{}, false, fmt.Errorf("%w %T for %s", errUnexpectedValueType, value, t)
	}

	return models.RawValue{Type: t, Text: text}, true, nil
}

// octetText keeps printable strings as-is and renders binary octets in the
// "Hex-STRING: 00 1A" form the normalizer understands.
func octetText(b []byte) string {
	if utf8.Valid(b) && printable(b) {
		return strings.TrimRight(string(b), "\x00")
	}

	var sb strings.Builder

	sb.WriteString("Hex-STRING:")

	for _, c := range b {
		fmt.Fprintf(&sb, " %02X", c)
	}

	return sb.String()
}

func printable(b []byte) bool {
	for i, c := range b {
		if c == 0 && i == len(b)-1 {
			continue
		}

		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}

	return true
}

func targetFor(device *models.Device) (Target, error) {
	target := Target{
		Address:   device.Address,
		Port:      device.SNMPPort(),
		Community: device.Community,
	}

	switch strings.ToLower(device.SNMPVersion) {
	case models.SNMPVersion1, "1":
		target.Version = gosnmp.Version1
	case models.SNMPVersion2c, "2c", "":
		target.Version = gosnmp.Version2c
	default:
		return Target{}, fmt.Errorf("%w: %s", errUnsupportedVersion, device.SNMPVersion)
	}

	if target.Community == "" {
		target.Community = "public"
	}

	return target, nil
}

// classify maps a transport error onto Timeout or Unreachable.
func classify(ctx context.Context, err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return KindTimeout
	}

	return KindUnreachable
}
