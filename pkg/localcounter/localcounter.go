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

// Package localcounter reads page counts kept by the local print spooler for
// printers that do not expose a usable counter over the network.
package localcounter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPageLogPath is where CUPS writes its page log on most distributions.
const DefaultPageLogPath = "/var/log/cups/page_log"

// ErrNoCounter is returned when no count is available for a queue.
var ErrNoCounter = errors.New("no local page counter")

// Reader returns the cumulative page count the host recorded for a queue.
type Reader interface {
	PageCount(ctx context.Context, queueName string) (int64, error)
}

// CUPSPageLog sums pages from a CUPS page_log file. The file is parsed once
// per change of size or modification time and shared by all queues.
type CUPSPageLog struct {
	Path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	totals  map[string]int64
}

// NewCUPSPageLog returns a reader for path, or DefaultPageLogPath when empty.
func NewCUPSPageLog(path string) *CUPSPageLog {
	if path == "" {
		path = DefaultPageLogPath
	}

	return &CUPSPageLog{Path: path}
}

// PageCount implements Reader.
func (c *CUPSPageLog) PageCount(ctx context.Context, queueName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s does not exist", ErrNoCounter, c.Path)
		}

		return 0, fmt.Errorf("stat page log: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.totals == nil || !info.ModTime().Equal(c.modTime) || info.Size() != c.size {
		totals, err := c.load()
		if err != nil {
			return 0, err
		}

		c.totals = totals
		c.modTime = info.ModTime()
		c.size = info.Size()
	}

	pages, ok := c.totals[queueName]
	if !ok {
		return 0, fmt.Errorf("%w for queue %q", ErrNoCounter, queueName)
	}

	return pages, nil
}

func (c *CUPSPageLog) load() (map[string]int64, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("open page log: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParsePageLog(f)
}

type jobKey struct {
	queue string
	job   string
}

type jobPages struct {
	total    int64
	hasTotal bool
	perPage  int64
}

// ParsePageLog sums pages per queue. Jobs with a "total N" line count N;
// jobs logged page by page count each line times its copies. Lines that do
// not parse are skipped.
func ParsePageLog(r io.Reader) (map[string]int64, error) {
	jobs := make(map[jobKey]*jobPages)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		entry, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}

		key := jobKey{queue: entry.queue, job: entry.job}

		jp := jobs[key]
		if jp == nil {
			jp = &jobPages{}
			jobs[key] = jp
		}

		if entry.isTotal {
			jp.total += entry.pages
			jp.hasTotal = true
		} else {
			jp.perPage += entry.pages
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read page log: %w", err)
	}

	totals := make(map[string]int64)

	for key, jp := range jobs {
		if jp.hasTotal {
			totals[key.queue] += jp.total
		} else {
			totals[key.queue] += jp.perPage
		}
	}

	return totals, nil
}

type logEntry struct {
	queue   string
	job     string
	isTotal bool
	pages   int64
}

// parseLine reads "<queue> <user> <job> [<date> <zone>] <page|total> <n> ...".
func parseLine(line string) (logEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return logEntry{}, false
	}

	// The timestamp is bracketed and may span one or two fields.
	end := -1

	for i := 3; i < len(fields); i++ {
		if strings.HasSuffix(fields[i], "]") {
			end = i
			break
		}
	}

	if end < 0 || !strings.HasPrefix(fields[3], "[") {
		return logEntry{}, false
	}

	rest := fields[end+1:]
	if len(rest) < 2 {
		return logEntry{}, false
	}

	entry := logEntry{queue: fields[0], job: fields[2]}

	n, err := strconv.ParseInt(rest[1], 10, 64)
	if err != nil || n < 0 {
		return logEntry{}, false
	}

	if rest[0] == "total" {
		entry.isTotal = true
		entry.pages = n

		return entry, true
	}

	// Per-page line: rest[0] is the page number and rest[1] the copies.
	if _, err := strconv.ParseInt(rest[0], 10, 64); err != nil {
		return logEntry{}, false
	}

	if n == 0 {
		n = 1
	}

	entry.pages = n

	return entry, true
}
