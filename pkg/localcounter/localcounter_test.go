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

package localcounter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePageLog = `FrontDesk alice 101 [05/Jan/2026:09:14:02 +0000] 1 1 - 10.0.0.5 report.pdf na_letter_8.5x11in one-sided
FrontDesk alice 101 [05/Jan/2026:09:14:03 +0000] 2 1 - 10.0.0.5 report.pdf na_letter_8.5x11in one-sided
FrontDesk alice 101 [05/Jan/2026:09:14:04 +0000] 3 2 - 10.0.0.5 report.pdf na_letter_8.5x11in one-sided
FrontDesk bob 102 [05/Jan/2026:10:00:00 +0000] total 12 - 10.0.0.7 slides.pdf iso_a4_210x297mm two-sided-long-edge
Warehouse carol 7 [05/Jan/2026:11:00:00 +0000] total 3 - 10.0.0.9 labels.pdf - one-sided
garbage line
Warehouse carol 8 [05/Jan/2026:11:30:00 +0000] total many - 10.0.0.9 labels.pdf - one-sided
`

func TestParsePageLog(t *testing.T) {
	totals, err := ParsePageLog(strings.NewReader(samplePageLog))
	require.NoError(t, err)

	assert.Equal(t, int64(1+1+2+12), totals["FrontDesk"])
	assert.Equal(t, int64(3), totals["Warehouse"])
}

func TestParsePageLogPrefersJobTotal(t *testing.T) {
	log := `Lab dave 5 [05/Jan/2026:09:00:00 +0000] 1 1 - host a.pdf - -
Lab dave 5 [05/Jan/2026:09:00:01 +0000] 2 1 - host a.pdf - -
Lab dave 5 [05/Jan/2026:09:00:02 +0000] total 2 - host a.pdf - -
`
	totals, err := ParsePageLog(strings.NewReader(log))
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals["Lab"])
}

func TestCUPSPageLogPageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page_log")
	require.NoError(t, os.WriteFile(path, []byte(samplePageLog), 0o600))

	reader := NewCUPSPageLog(path)
	ctx := context.Background()

	pages, err := reader.PageCount(ctx, "FrontDesk")
	require.NoError(t, err)
	assert.Equal(t, int64(16), pages)

	_, err = reader.PageCount(ctx, "Basement")
	require.ErrorIs(t, err, ErrNoCounter)

	// Appending a job is picked up on the next read.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("Basement erin 1 [05/Jan/2026:12:00:00 +0000] total 4 - host b.pdf - -\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Minute)))

	pages, err = reader.PageCount(ctx, "Basement")
	require.NoError(t, err)
	assert.Equal(t, int64(4), pages)
}

func TestCUPSPageLogMissingFile(t *testing.T) {
	reader := NewCUPSPageLog(filepath.Join(t.TempDir(), "missing"))

	_, err := reader.PageCount(context.Background(), "FrontDesk")
	require.ErrorIs(t, err, ErrNoCounter)
}

func TestCUPSPageLogCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCUPSPageLog("").PageCount(ctx, "FrontDesk")
	require.ErrorIs(t, err, context.Canceled)
}
