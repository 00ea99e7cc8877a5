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
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	errTLSFilesRequired = errors.New("cert_file, key_file and ca_file are required")
	errCAParsingFailed  = errors.New("failed to parse CA certificate")
)

// TLSConfig holds client certificate paths for mutual TLS. Relative paths
// are resolved against CertDir.
type TLSConfig struct {
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
	CertDir    string `json:"cert_dir,omitempty"`
	ServerName string `json:"server_name,omitempty"`
}

func (c *TLSConfig) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.CertDir == "" {
		return path
	}

	return filepath.Join(c.CertDir, path)
}

// Build loads the key pair and CA and returns a client tls.Config. A nil
// receiver yields a nil config.
func (c *TLSConfig) Build(defaultServerName string) (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}

	certFile := c.resolve(c.CertFile)
	keyFile := c.resolve(c.KeyFile)
	caFile := c.resolve(c.CAFile)

	if certFile == "" || keyFile == "" || caFile == "" {
		return nil, errTLSFilesRequired
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caBytes, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errCAParsingFailed
	}

	serverName := c.ServerName
	if serverName == "" {
		serverName = defaultServerName
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
