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


package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/carverauto/printradar/pkg/logger"
)

// envRefPattern matches ${NAME} references inside a config file.
//
//nolint:gochecknoglobals // compiled once
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// FileConfigLoader loads configuration from a local JSON file. ${NAME}
// references are replaced with the JSON-escaped value of the environment
// variable NAME, so secrets such as database passwords can stay out of the
// file. References to unset variables are left as written.
type FileConfigLoader struct {
	logger logger.Logger
}

// Load implements ConfigLoader.
func (f *FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: '%s' is empty", errEmptyConfigFile, path)
	}

	if err := json.Unmarshal(f.expand(data), dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

func (f *FileConfigLoader) expand(data []byte) []byte {
	return envRefPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envRefPattern.FindSubmatch(ref)[1])

		value, ok := os.LookupEnv(name)
		if !ok {
			if f.logger != nil {
				f.logger.Warn().Str("variable", name).Msg("Config references unset environment variable")
			}

			return ref
		}

		quoted, _ := json.Marshal(value)

		return quoted[1 : len(quoted)-1]
	})
}
