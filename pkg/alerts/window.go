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

package alerts

import (
	"context"
	"hash/fnv"
	"runtime"
	"sync"
	"time"

	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
)

const (
	// DefaultWindow is the cool-down before a resolved condition may alert again.
	DefaultWindow = time.Hour

	defaultSweepInterval = 5 * time.Minute
	minShards            = 4
	maxShards            = 32
)

// Key identifies a suppressible condition. Subject is the consumable kind
// for consumable alerts and empty otherwise.
type Key struct {
	DeviceID string
	Kind     models.AlertKind
	Subject  string
}

// KeyFor returns the suppression key of alert.
func KeyFor(alert *models.Alert) Key {
	return Key{DeviceID: alert.DeviceID, Kind: alert.Kind, Subject: alert.Subject}
}

type entry struct {
	lastRaised time.Time
	open       bool
	alertID    string
	prev       *entry
}

type windowShard struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// Window is the suppression state shared by all evaluations. Keys for one
// device share a shard; each shard has its own lock.
type Window struct {
	shards        []*windowShard
	window        time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        logger.Logger

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithWindowClock overrides the time source.
func WithWindowClock(now func() time.Time) WindowOption {
	return func(w *Window) {
		w.now = now
	}
}

// WithSweepInterval sets how often Start prunes expired entries.
func WithSweepInterval(d time.Duration) WindowOption {
	return func(w *Window) {
		if d > 0 {
			w.sweepInterval = d
		}
	}
}

// WithWindowLogger sets the logger.
func WithWindowLogger(log logger.Logger) WindowOption {
	return func(w *Window) {
		w.logger = log
	}
}

// NewWindow returns an empty suppression window. A non-positive duration
// uses DefaultWindow.
func NewWindow(window time.Duration, opts ...WindowOption) *Window {
	if window <= 0 {
		window = DefaultWindow
	}

	shards := runtime.GOMAXPROCS(0) * 2
	if shards < minShards {
		shards = minShards
	}

	if shards > maxShards {
		shards = maxShards
	}

	w := &Window{
		shards:        make([]*windowShard, shards),
		window:        window,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		logger:        logger.NewTestLogger(),
	}

	for i := range w.shards {
		w.shards[i] = &windowShard{entries: make(map[Key]*entry)}
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *Window) shardFor(deviceID string) *windowShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))

	return w.shards[h.Sum32()%uint32(len(w.shards))]
}

// expired reports whether a resolved entry has outlived the window.
func (w *Window) expired(e *entry, now time.Time) bool {
	return !e.open && now.Sub(e.lastRaised) >= w.window
}

// TryRaise atomically claims key for a new alert. It returns false while an
// alert for key is open, or while a resolved one is still inside the window.
func (w *Window) TryRaise(key Key, alertID string) bool {
	sh := w.shardFor(key.DeviceID)
	now := w.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.entries[key]
	if ok {
		if current.open {
			return false
		}

		if !w.expired(current, now) {
			return false
		}
	}

	next := &entry{lastRaised: now, open: true, alertID: alertID}

	if ok {
		prev := *current
		prev.prev = nil
		next.prev = &prev
	}

	sh.entries[key] = next

	return true
}

// Forget undoes a TryRaise for alertID, restoring the previous state of key.
// It is used when the claimed alert could not be persisted.
func (w *Window) Forget(key Key, alertID string) {
	sh := w.shardFor(key.DeviceID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.entries[key]
	if !ok || current.alertID != alertID {
		return
	}

	if current.prev != nil {
		sh.entries[key] = current.prev
		return
	}

	delete(sh.entries, key)
}

// Resolve marks key resolved. The next alert for it is allowed once the
// window has elapsed since it was last raised.
func (w *Window) Resolve(key Key) bool {
	sh := w.shardFor(key.DeviceID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.entries[key]
	if !ok || !current.open {
		return false
	}

	current.open = false
	current.prev = nil

	return true
}

// IsOpen reports whether an alert is open for key.
func (w *Window) IsOpen(key Key) bool {
	sh := w.shardFor(key.DeviceID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]

	return ok && e.open
}

// Seed restores state from persisted alerts, typically the open alerts
// loaded from the sink at startup.
func (w *Window) Seed(alerts []models.Alert) int {
	seeded := 0

	for i := range alerts {
		a := &alerts[i]
		key := KeyFor(a)
		sh := w.shardFor(key.DeviceID)

		sh.mu.Lock()

		existing, ok := sh.entries[key]
		if !ok || a.CreatedAt.After(existing.lastRaised) {
			sh.entries[key] = &entry{lastRaised: a.CreatedAt, open: a.IsOpen(), alertID: a.ID}
			seeded++
		}

		sh.mu.Unlock()
	}

	return seeded
}

// Len returns the number of tracked keys.
func (w *Window) Len() int {
	total := 0

	for _, sh := range w.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}

	return total
}

// Sweep removes resolved entries whose window has elapsed and returns how
// many were removed.
func (w *Window) Sweep() int {
	now := w.now()
	removed := 0

	for _, sh := range w.shards {
		sh.mu.Lock()

		for key, e := range sh.entries {
			if w.expired(e, now) {
				delete(sh.entries, key)
				removed++
			}
		}

		sh.mu.Unlock()
	}

	return removed
}

// Start runs the periodic sweep until ctx is done or Stop is called.
// Calling Start on a running window is a no-op.
func (w *Window) Start(ctx context.Context) {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.cancel != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)

	go w.sweepLoop(ctx)
}

// Stop halts the sweep and waits for it to exit.
func (w *Window) Stop() {
	w.lifecycleMu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}

	w.wg.Wait()
}

func (w *Window) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := w.Sweep(); removed > 0 {
				w.logger.Debug().
					Int("removed", removed).
					Int("remaining", w.Len()).
					Msg("Pruned expired suppression entries")
			}
		}
	}
}
