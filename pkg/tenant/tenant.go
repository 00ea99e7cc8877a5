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

// Package tenant carries tenant identity through contexts and maps it onto
// NATS subjects.
//
// A collector can be scoped to a single tenant by its mTLS certificate. The
// certificate CN format is: <collector_id>.<partition_id>.<tenant_id>.printradar
//
// Example: collector-01.site-a.acme-corp.printradar
package tenant

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ctxKey is the type for context keys in this package.
type ctxKey string

// tenantCtxKey is the context key for storing tenant info.
const tenantCtxKey ctxKey = "tenant"

const (
	// CNSuffix is the expected suffix for collector certificate CNs.
	CNSuffix = "printradar"

	// CNParts is the expected number of parts in a valid CN.
	CNParts = 4
)

var (
	// ErrInvalidCNFormat indicates the certificate CN doesn't match expected format.
	ErrInvalidCNFormat = errors.New("invalid certificate CN format")

	// ErrNoPeerCert indicates no certificate was found.
	ErrNoPeerCert = errors.New("no certificate found")

	// ErrNoTenantInContext indicates no tenant info was found in the context.
	ErrNoTenantInContext = errors.New("no tenant info in context")
)

// Info identifies a tenant and, when known, the collector acting for it.
type Info struct {
	TenantID    string `json:"tenant_id"`
	PartitionID string `json:"partition_id,omitempty"`
	CollectorID string `json:"collector_id,omitempty"`
}

// String returns a human-readable representation of the tenant info.
func (i Info) String() string {
	return fmt.Sprintf("%s/%s/%s", i.TenantID, i.PartitionID, i.CollectorID)
}

// WithContext returns a new context with the tenant info attached.
func WithContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, tenantCtxKey, info)
}

// FromContext extracts tenant info from a context.
func FromContext(ctx context.Context) (*Info, error) {
	info, ok := ctx.Value(tenantCtxKey).(*Info)
	if !ok || info == nil {
		return nil, ErrNoTenantInContext
	}

	return info, nil
}

// IDFromContext returns the tenant ID in ctx, or "" when none is attached.
func IDFromContext(ctx context.Context) string {
	info, err := FromContext(ctx)
	if err != nil {
		return ""
	}

	return info.TenantID
}

// SubjectToken turns a tenant ID into a single NATS subject token. Subject
// separators and wildcards become '_'.
func SubjectToken(tenantID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		default:
			return r
		}
	}, tenantID)
}

// PrefixChannelWithID prefixes a NATS subject with the given tenant ID.
// An empty tenant leaves the subject unchanged.
// Example: ("acme-corp", "events.printer.alert.offline") -> "acme-corp.events.printer.alert.offline"
func PrefixChannelWithID(tenantID, channel string) string {
	if tenantID == "" {
		return channel
	}

	return SubjectToken(tenantID) + "." + channel
}

// TenantFromSubject returns the tenant token of a subject built by
// PrefixChannelWithID, given the unprefixed channel suffix length in tokens.
func TenantFromSubject(subject string, suffixTokens int) string {
	parts := strings.Split(subject, ".")
	if len(parts) <= suffixTokens {
		return ""
	}

	return strings.Join(parts[:len(parts)-suffixTokens], ".")
}

// ParseCN extracts tenant information from a certificate Common Name.
func ParseCN(cn string) (*Info, error) {
	parts := strings.Split(cn, ".")
	if len(parts) != CNParts {
		return nil, fmt.Errorf("%w: expected %d parts, got %d in %q",
			ErrInvalidCNFormat, CNParts, len(parts), cn)
	}

	if parts[3] != CNSuffix {
		return nil, fmt.Errorf("%w: expected suffix %q, got %q in %q",
			ErrInvalidCNFormat, CNSuffix, parts[3], cn)
	}

	for _, p := range parts[:3] {
		if p == "" {
			return nil, fmt.Errorf("%w: empty component in %q", ErrInvalidCNFormat, cn)
		}
	}

	return &Info{
		CollectorID: parts[0],
		PartitionID: parts[1],
		TenantID:    parts[2],
	}, nil
}

// FromCertificate extracts tenant information from an X.509 certificate.
func FromCertificate(cert *x509.Certificate) (*Info, error) {
	if cert == nil {
		return nil, ErrNoPeerCert
	}

	return ParseCN(cert.Subject.CommonName)
}

// FromCertFile extracts tenant information from the first certificate in a
// PEM file. Collectors use it at startup to scope themselves to one tenant.
func FromCertFile(certPath string) (*Info, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	return FromPEM(certPEM)
}

// FromPEM extracts tenant information from PEM-encoded certificate data.
// DER input is accepted as well.
func FromPEM(certPEM []byte) (*Info, error) {
	der := certPEM

	if block, _ := pem.Decode(certPEM); block != nil {
		der = block.Bytes
	}

	certs, err := x509.ParseCertificates(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	if len(certs) == 0 {
		return nil, ErrNoPeerCert
	}

	return FromCertificate(certs[0])
}
