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

package tenant

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseCN(t *testing.T) {
	tests := []struct {
		name        string
		cn          string
		wantInfo    *Info
		wantErr     error
		errContains string
	}{
		{
			name: "valid CN",
			cn:   "collector-01.site-a.acme-corp.printradar",
			wantInfo: &Info{
				CollectorID: "collector-01",
				PartitionID: "site-a",
				TenantID:    "acme-corp",
			},
		},
		{
			name:        "too few parts",
			cn:          "collector.acme-corp.printradar",
			wantErr:     ErrInvalidCNFormat,
			errContains: "expected 4 parts",
		},
		{
			name:        "wrong suffix",
			cn:          "collector-01.site-a.acme-corp.example",
			wantErr:     ErrInvalidCNFormat,
			errContains: "expected suffix",
		},
		{
			name:        "empty tenant",
			cn:          "collector-01.site-a..printradar",
			wantErr:     ErrInvalidCNFormat,
			errContains: "empty component",
		},
		{
			name:        "empty string",
			cn:          "",
			wantErr:     ErrInvalidCNFormat,
			errContains: "expected 4 parts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseCN(tt.cn)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseCN(%q) error = %v, want %v", tt.cn, err, tt.wantErr)
				}

				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("ParseCN(%q) error = %q, want containing %q", tt.cn, err.Error(), tt.errContains)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseCN(%q) unexpected error: %v", tt.cn, err)
			}

			if *info != *tt.wantInfo {
				t.Errorf("ParseCN(%q) = %+v, want %+v", tt.cn, info, tt.wantInfo)
			}
		})
	}
}

func TestPrefixChannel(t *testing.T) {
	tests := []struct {
		tenantID string
		channel  string
		want     string
	}{
		{"acme-corp", "events.printer.alert.offline", "acme-corp.events.printer.alert.offline"},
		{"", "events.printer.alert.offline", "events.printer.alert.offline"},
		{"acme.corp", "events.x", "acme_corp.events.x"},
		{"bad*tenant>", "events.x", "bad_tenant_.events.x"},
	}

	for _, tt := range tests {
		if got := PrefixChannelWithID(tt.tenantID, tt.channel); got != tt.want {
			t.Errorf("PrefixChannelWithID(%q, %q) = %q, want %q", tt.tenantID, tt.channel, got, tt.want)
		}
	}
}

func TestContextPropagation(t *testing.T) {
	ctx := context.Background()

	if _, err := FromContext(ctx); !errors.Is(err, ErrNoTenantInContext) {
		t.Fatalf("expected ErrNoTenantInContext, got %v", err)
	}

	ctx = WithContext(ctx, &Info{TenantID: "acme-corp"})

	if got := IDFromContext(ctx); got != "acme-corp" {
		t.Errorf("IDFromContext = %q", got)
	}

	info, err := FromContext(ctx)
	if err != nil {
		t.Fatalf("FromContext: %v", err)
	}

	if got := info.String(); got != "acme-corp//" {
		t.Errorf("String = %q", got)
	}
}

func TestTenantFromSubject(t *testing.T) {
	if got := TenantFromSubject("acme-corp.events.printer.alert.resolved", 4); got != "acme-corp" {
		t.Errorf("TenantFromSubject = %q", got)
	}

	if got := TenantFromSubject("events.printer.alert.resolved", 4); got != "" {
		t.Errorf("expected empty tenant, got %q", got)
	}
}

func TestFromCertFile(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "collector-01.site-a.acme-corp.printradar"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "collector.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}

	info, err := FromCertFile(path)
	if err != nil {
		t.Fatalf("FromCertFile: %v", err)
	}

	if info.TenantID != "acme-corp" || info.CollectorID != "collector-01" {
		t.Errorf("unexpected info %+v", info)
	}
}
