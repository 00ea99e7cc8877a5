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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/printradar/pkg/alerts"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
	"github.com/carverauto/printradar/pkg/tenant"
)

// Subject layout. Every subject starts with SubjectRoot; tenant-scoped
// subjects carry the tenant as the second token.
const (
	SubjectRoot           = "printradar"
	AlertSubjectPrefix    = "events.printer.alert."
	RecoverySubjectPrefix = "events.printer.recovery."
	ResolvedSubject       = "events.printer.alert.resolved"

	defaultStreamName  = "printer_events"
	defaultEventSource = "printradar/poller"
	cloudEventsVersion = "1.0"
	alertEventType     = "com.carverauto.printradar.alert."
	recoveryEventType  = "com.carverauto.printradar.recovery."
	jsonContentType    = "application/json"
)

var errNATSURLRequired = errors.New("nats url is required")

// StreamSubjects are captured by the events stream. JetStream rejects
// stream subjects whose first token is a wildcard, so the tenant never leads.
//
//nolint:gochecknoglobals // stream layout
var StreamSubjects = []string{SubjectRoot + ".>"}

// NATSConfig configures alert delivery over JetStream.
type NATSConfig struct {
	URL    string     `json:"url"`
	Domain string     `json:"domain,omitempty"`
	Stream string     `json:"stream,omitempty"`
	Source string     `json:"source,omitempty"`
	TLS    *TLSConfig `json:"tls,omitempty"`
}

func (c *NATSConfig) streamName() string {
	if c.Stream == "" {
		return defaultStreamName
	}

	return c.Stream
}

func (c *NATSConfig) source() string {
	if c.Source == "" {
		return defaultEventSource
	}

	return c.Source
}

// ConnectNATS dials the server in cfg with logging connection handlers.
func ConnectNATS(cfg *NATSConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errNATSURLRequired
	}

	opts := []nats.Option{
		nats.Name(cfg.source()),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	tlsConf, err := cfg.TLS.Build("")
	if err != nil {
		return nil, fmt.Errorf("nats tls: %w", err)
	}

	if tlsConf != nil {
		opts = append(opts, nats.Secure(tlsConf))
	}

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return nc, nil
}

// Dispatcher publishes alerts as CloudEvents to JetStream. The alert ID is
// the message ID so redeliveries inside the stream's duplicate window are
// dropped by the server.
type Dispatcher struct {
	js     jetstream.JetStream
	stream string
	source string
	logger logger.Logger
}

// NewDispatcher creates the JetStream context on nc and makes sure the
// events stream exists and captures the printer subjects.
func NewDispatcher(ctx context.Context, nc *nats.Conn, cfg *NATSConfig, log logger.Logger) (*Dispatcher, error) {
	if cfg == nil {
		cfg = &NATSConfig{}
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	errHandler := jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("Async publish failed")
	})

	var (
		js  jetstream.JetStream
		err error
	)

	if cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, cfg.Domain, errHandler)
	} else {
		js, err = jetstream.New(nc, errHandler)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg.streamName(), StreamSubjects, log); err != nil {
		return nil, err
	}

	return &Dispatcher{
		js:     js,
		stream: cfg.streamName(),
		source: cfg.source(),
		logger: log,
	}, nil
}

// EventSubject places channel under SubjectRoot, scoped to tenantID.
// Example: ("acme", "events.printer.alert.offline") -> "printradar.acme.events.printer.alert.offline"
func EventSubject(tenantID, channel string) string {
	return SubjectRoot + "." + tenant.PrefixChannelWithID(tenantID, channel)
}

// AlertSubject returns the subject alert is published on. An alert without
// a tenant takes the tenant carried by ctx.
func AlertSubject(ctx context.Context, alert *models.Alert) string {
	tenantID := alert.TenantID
	if tenantID == "" {
		tenantID = tenant.IDFromContext(ctx)
	}

	return EventSubject(tenantID, AlertSubjectPrefix+string(alert.Kind))
}

// Dispatch implements AlertDispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) error {
	if err := validateAlert(alert); err != nil {
		return err
	}

	subject := AlertSubject(ctx, alert)
	created := alert.CreatedAt

	event := models.CloudEvent{
		SpecVersion:     cloudEventsVersion,
		ID:              alert.ID,
		Source:          d.source,
		Type:            alertEventType + string(alert.Kind),
		DataContentType: jsonContentType,
		Subject:         subject,
		Time:            &created,
		Data:            alert,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	ack, err := d.js.Publish(ctx, subject, payload, jetstream.WithMsgID(alert.ID))
	if err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", alert.ID, err)
	}

	ev := d.logger.Debug()
	if info, err := tenant.FromContext(ctx); err == nil && info.CollectorID != "" {
		ev = ev.Str("collector", info.CollectorID)
	}

	ev.Str("alert_id", alert.ID).
		Str("subject", subject).
		Uint64("seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("Published alert event")

	return nil
}

// PublishRecovery publishes r without waiting for the acknowledgement.
// Failures are reported through the async error handler.
func (d *Dispatcher) PublishRecovery(r alerts.Recovery) {
	subject := EventSubject(r.TenantID, RecoverySubjectPrefix+string(r.Kind))
	id := fmt.Sprintf("%s:%s:%s:%d", r.DeviceID, r.Kind, r.Subject, r.At.UnixNano())
	at := r.At

	event := models.CloudEvent{
		SpecVersion:     cloudEventsVersion,
		ID:              id,
		Source:          d.source,
		Type:            recoveryEventType + string(r.Kind),
		DataContentType: jsonContentType,
		Subject:         subject,
		Time:            &at,
		Data: map[string]string{
			"tenant_id": r.TenantID,
			"device_id": r.DeviceID,
			"kind":      string(r.Kind),
			"subject":   r.Subject,
		},
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to marshal recovery event")
		return
	}

	if _, err := d.js.PublishAsync(subject, payload, jetstream.WithMsgID(id)); err != nil {
		d.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to queue recovery event")
	}
}

// Flush waits for pending async publishes.
func (d *Dispatcher) Flush(ctx context.Context) error {
	select {
	case <-d.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ensureStream(ctx context.Context, js jetstream.JetStream, name string, subjects []string, log logger.Logger) error {
	stream, err := js.Stream(ctx, name)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}

		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:       name,
			Subjects:   subjects,
			Duplicates: 2 * time.Minute,
		}); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}

		log.Info().Str("stream", name).Strs("subjects", subjects).Msg("Created JetStream stream")

		return nil
	}

	cfg := stream.CachedInfo().Config
	updated := append([]string(nil), cfg.Subjects...)

	for _, s := range subjects {
		updated = ensureSubjectList(updated, s)
	}

	if len(updated) == len(cfg.Subjects) {
		return nil
	}

	cfg.Subjects = updated

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to update stream %s subjects: %w", name, err)
	}

	log.Info().Str("stream", name).Strs("subjects", updated).Msg("Extended JetStream stream subjects")

	return nil
}

// ensureSubjectList appends subject unless an existing pattern covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if matchesSubject(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether pattern covers subject. Wildcards in
// subject are compared literally, so "*" only covers "*" or a wider pattern.
func matchesSubject(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")

	for i, tok := range p {
		if tok == ">" {
			return i < len(s)
		}

		if i >= len(s) {
			return false
		}

		if tok != "*" && tok != s[i] {
			return false
		}

		if tok == "*" && s[i] == ">" {
			return false
		}
	}

	return len(p) == len(s)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
