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

// Package version reports the build identity of the printradar binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via ldflags during build
//
//nolint:gochecknoglobals // These are intentionally global for ldflags injection
var (
	version = "dev"
	buildID = "dev"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision,omitempty"`
}

// GetVersion returns the ldflags version, or the module version recorded by
// the Go toolchain when none was injected.
func GetVersion() string {
	if version != "dev" {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return version
}

// Current returns the identity of the running binary.
func Current() Build {
	b := Build{
		Version:   GetVersion(),
		BuildID:   buildID,
		GoVersion: runtime.Version(),
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				b.Revision = s.Value
			}
		}
	}

	return b
}

func (b Build) String() string {
	if b.Revision == "" {
		return fmt.Sprintf("%s (build: %s, %s)", b.Version, b.BuildID, b.GoVersion)
	}

	return fmt.Sprintf("%s (build: %s, rev: %.12s, %s)", b.Version, b.BuildID, b.Revision, b.GoVersion)
}
