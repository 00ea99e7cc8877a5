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

package logger

import (
	"context"
	"errors"
	"testing"
)

func TestInitializeMetricsDisabled(t *testing.T) {
	_, err := InitializeMetrics(context.Background(), MetricsConfig{
		OTel: &OTelConfig{Enabled: false, Endpoint: "localhost:4317"},
	})
	if !errors.Is(err, ErrOTelMetricsDisabled) {
		t.Fatalf("expected ErrOTelMetricsDisabled, got %v", err)
	}

	_, err = InitializeMetrics(context.Background(), MetricsConfig{})
	if !errors.Is(err, ErrOTelMetricsDisabled) {
		t.Fatalf("expected ErrOTelMetricsDisabled for nil config, got %v", err)
	}
}

func TestInitializeTracingRequiresEndpoint(t *testing.T) {
	_, err := InitializeTracing(context.Background(), TracingConfig{
		OTel: &OTelConfig{Enabled: true},
	})
	if !errors.Is(err, ErrOTelTracingDisabled) {
		t.Fatalf("expected ErrOTelTracingDisabled, got %v", err)
	}
}

func TestSetupTLSConfigMissingCA(t *testing.T) {
	_, err := setupTLSConfig(&TLSConfig{CAFile: "/nonexistent/ca.pem"})
	if err == nil {
		t.Fatal("expected error for missing CA file")
	}
}

func TestShutdownWithoutProviders(t *testing.T) {
	if err := Shutdown(); err != nil {
		t.Fatalf("shutdown with nothing installed should succeed: %v", err)
	}
}
