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
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/printradar/pkg/alerts"
	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
	"github.com/carverauto/printradar/pkg/tenant"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, func() bool {
		return srv.JetStreamEnabled()
	}, 5*time.Second, 50*time.Millisecond, "embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

func connectTest(t *testing.T, srv *server.Server) *nats.Conn {
	t.Helper()

	nc, err := ConnectNATS(&NATSConfig{URL: srv.ClientURL()}, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	return nc
}

func TestDispatcherPublishesCloudEventOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := runJetStreamServer(t)
	nc := connectTest(t, srv)

	d, err := NewDispatcher(ctx, nc, &NATSConfig{}, logger.NewTestLogger())
	require.NoError(t, err)

	alert := &models.Alert{
		ID:        "6f1c1a52-6a39-4c43-9a57-5d0e4f1f2f11",
		TenantID:  "acme",
		DeviceID:  "p1",
		Kind:      models.AlertCriticalConsumable,
		Severity:  models.SeverityHigh,
		Subject:   "toner",
		Message:   "toner at 5%",
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		State:     models.AlertStateOpen,
	}

	require.NoError(t, d.Dispatch(ctx, alert))
	require.NoError(t, d.Dispatch(ctx, alert), "redelivery is acknowledged as duplicate")

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, defaultStreamName)
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	msg, err := stream.GetLastMsgForSubject(ctx, "printradar.acme.events.printer.alert.critical_consumable")
	require.NoError(t, err)
	assert.Equal(t, alert.ID, msg.Header.Get(jetstream.MsgIDHeader))

	var event struct {
		models.CloudEvent
		Data models.Alert `json:"data"`
	}

	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, alert.ID, event.ID)
	assert.Equal(t, "com.carverauto.printradar.alert.critical_consumable", event.Type)
	assert.Equal(t, "toner", event.Data.Subject)
}

func TestDispatcherReusesExistingStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := runJetStreamServer(t)
	nc := connectTest(t, srv)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     "fleet",
		Subjects: []string{"audit.>"},
	})
	require.NoError(t, err)

	_, err = NewDispatcher(ctx, nc, &NATSConfig{Stream: "fleet"}, nil)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "fleet")
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"audit.>", "printradar.>"}, info.Config.Subjects)

	_, err = NewDispatcher(ctx, nc, &NATSConfig{Stream: "fleet"}, nil)
	require.NoError(t, err, "covered subjects leave the stream unchanged")
}

func TestDispatcherPublishRecovery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := runJetStreamServer(t)
	nc := connectTest(t, srv)

	d, err := NewDispatcher(ctx, nc, &NATSConfig{}, nil)
	require.NoError(t, err)

	d.PublishRecovery(alerts.Recovery{
		TenantID: "acme",
		DeviceID: "p1",
		Kind:     models.AlertOffline,
		At:       time.Now(),
	})

	require.NoError(t, d.Flush(ctx))

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, defaultStreamName)
	require.NoError(t, err)

	_, err = stream.GetLastMsgForSubject(ctx, "printradar.acme.events.printer.recovery.offline")
	require.NoError(t, err)
}

func TestResolutionListenerResolvesKey(t *testing.T) {
	srv := runJetStreamServer(t)
	nc := connectTest(t, srv)

	window := alerts.NewWindow(time.Hour)
	key := alerts.Key{DeviceID: "p1", Kind: models.AlertLowConsumable, Subject: "toner"}
	require.True(t, window.TryRaise(key, "a1"))

	l := NewResolutionListener(nc, window, "", logger.NewTestLogger())
	require.NoError(t, l.Start())
	t.Cleanup(l.Stop)

	res := models.AlertResolution{
		AlertID:  "a1",
		TenantID: "acme",
		DeviceID: "p1",
		Kind:     models.AlertLowConsumable,
		Subject:  "toner",
	}

	foreign, err := json.Marshal(res)
	require.NoError(t, err)
	require.NoError(t, nc.Publish(EventSubject("globex", ResolvedSubject), foreign))

	event, err := json.Marshal(models.CloudEvent{SpecVersion: "1.0", ID: "e1", Data: res})
	require.NoError(t, err)
	require.NoError(t, nc.Publish(EventSubject("acme", ResolvedSubject), event))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		return !window.IsOpen(key)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestResolutionListenerTenantScope(t *testing.T) {
	l := NewResolutionListener(nil, alerts.NewWindow(time.Hour), "acme", nil)
	assert.Equal(t, []string{"printradar.acme.events.printer.alert.resolved"}, l.subjects)
}

func TestDecodeResolution(t *testing.T) {
	_, err := decodeResolution([]byte(`{"alert_id":"a1"}`))
	require.ErrorIs(t, err, errIncompleteResolution)

	_, err = decodeResolution([]byte(`not json`))
	require.Error(t, err)

	res, err := decodeResolution([]byte(`{"device_id":" p1 ","kind":"offline"}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", res.DeviceID)
	assert.Equal(t, models.AlertOffline, res.Kind)
}

func TestStreamSubjectsStartWithLiteralToken(t *testing.T) {
	for _, subject := range StreamSubjects {
		first, _, _ := strings.Cut(subject, ".")
		assert.NotContains(t, []string{"*", ">"}, first, subject)
	}

	alert := &models.Alert{TenantID: "acme", Kind: models.AlertOffline}
	assert.Equal(t, "printradar.acme.events.printer.alert.offline", AlertSubject(context.Background(), alert))

	for _, subject := range []string{AlertSubject(context.Background(), alert), EventSubject("", ResolvedSubject)} {
		assert.True(t, matchesSubject(StreamSubjects[0], subject), subject)
	}
}

func TestAlertSubjectFallsBackToContextTenant(t *testing.T) {
	ctx := tenant.WithContext(context.Background(), &tenant.Info{TenantID: "globex", CollectorID: "collector-01"})

	alert := &models.Alert{Kind: models.AlertLowConsumable}
	assert.Equal(t, "printradar.globex.events.printer.alert.low_consumable", AlertSubject(ctx, alert))

	alert.TenantID = "acme"
	assert.Equal(t, "printradar.acme.events.printer.alert.low_consumable", AlertSubject(ctx, alert))
}

func TestMatchesSubject(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		subject  string
		expected bool
	}{
		{"exact match", "events.printer.alert", "events.printer.alert", true},
		{"single wildcard", "*.events.printer.alert", "acme.events.printer.alert", true},
		{"greater wildcard", "events.>", "events.printer.alert.offline", true},
		{"greater covers greater", "events.>", "events.printer.>", true},
		{"tenant pattern not covered by unscoped", "events.printer.>", "*.events.printer.>", false},
		{"no match length", "events.*", "events.printer.alert", false},
		{"star does not cover greater", "events.*", "events.>", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, matchesSubject(tc.pattern, tc.subject))
		})
	}
}

func TestEnsureSubjectList(t *testing.T) {
	assert.Equal(t, []string{"events.>"}, ensureSubjectList([]string{"events.>"}, "events.printer.>"))
	assert.Equal(t, []string{"logs.*", "events.printer.>"}, ensureSubjectList([]string{"logs.*"}, "events.printer.>"))
}
