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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/printradar/pkg/alerts"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
	"github.com/carverauto/printradar/pkg/tenant"
)

var errIncompleteResolution = errors.New("resolution requires device_id and kind")

// resolvedSuffixTokens is the token count of ResolvedSubject.
const resolvedSuffixTokens = 4

// Resolver marks a suppression key resolved.
type Resolver interface {
	Resolve(key alerts.Key) bool
}

// ResolutionListener reopens the suppression clock when an external
// workflow resolves an alert.
type ResolutionListener struct {
	nc       *nats.Conn
	resolver Resolver
	subjects []string
	logger   logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewResolutionListener listens for resolutions of tenantID, or of every
// tenant when tenantID is empty.
func NewResolutionListener(nc *nats.Conn, resolver Resolver, tenantID string, log logger.Logger) *ResolutionListener {
	subjects := []string{SubjectRoot + ".*." + ResolvedSubject, EventSubject("", ResolvedSubject)}
	if tenantID != "" {
		subjects = []string{EventSubject(tenantID, ResolvedSubject)}
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &ResolutionListener{
		nc:       nc,
		resolver: resolver,
		subjects: subjects,
		logger:   log,
	}
}

// Start subscribes to the resolution subjects.
func (l *ResolutionListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.subs) > 0 {
		return nil
	}

	for _, subject := range l.subjects {
		sub, err := l.nc.Subscribe(subject, l.handle)
		if err != nil {
			l.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}

		l.subs = append(l.subs, sub)
	}

	l.logger.Info().Strs("subjects", l.subjects).Msg("Listening for alert resolutions")

	return nil
}

// Stop drains the subscriptions.
func (l *ResolutionListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.unsubscribeLocked()
}

func (l *ResolutionListener) unsubscribeLocked() {
	for _, sub := range l.subs {
		if err := sub.Drain(); err != nil {
			l.logger.Debug().Err(err).Str("subject", sub.Subject).Msg("Drain failed")
		}
	}

	l.subs = nil
}

func (l *ResolutionListener) handle(msg *nats.Msg) {
	res, err := decodeResolution(msg.Data)
	if err != nil {
		l.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Ignoring malformed resolution")
		return
	}

	scoped := strings.TrimPrefix(msg.Subject, SubjectRoot+".")

	if scope := tenant.TenantFromSubject(scoped, resolvedSuffixTokens); scope != "" &&
		res.TenantID != "" && tenant.SubjectToken(res.TenantID) != scope {
		l.logger.Warn().
			Str("subject", msg.Subject).
			Str("tenant_id", res.TenantID).
			Msg("Ignoring resolution for another tenant")

		return
	}

	key := alerts.Key{DeviceID: res.DeviceID, Kind: res.Kind, Subject: res.Subject}

	if l.resolver.Resolve(key) {
		l.logger.Debug().
			Str("alert_id", res.AlertID).
			Str("device_id", res.DeviceID).
			Str("kind", string(res.Kind)).
			Msg("Alert resolved")
	}
}

// decodeResolution accepts either a CloudEvent carrying the resolution as
// data or a bare resolution document.
func decodeResolution(data []byte) (models.AlertResolution, error) {
	var envelope struct {
		SpecVersion string          `json:"specversion"`
		Data        json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return models.AlertResolution{}, fmt.Errorf("decode resolution: %w", err)
	}

	body := data
	if envelope.SpecVersion != "" && len(envelope.Data) > 0 {
		body = envelope.Data
	}

	var res models.AlertResolution
	if err := json.Unmarshal(body, &res); err != nil {
		return models.AlertResolution{}, fmt.Errorf("decode resolution: %w", err)
	}

	res.DeviceID = strings.TrimSpace(res.DeviceID)
	if res.DeviceID == "" || res.Kind == "" {
		return models.AlertResolution{}, errIncompleteResolution
	}

	return res, nil
}
