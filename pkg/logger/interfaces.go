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
	"github.com/rs/zerolog"
)

// Logger is the structured logger handed to printradar components. Events
// are built with zerolog's chained field API.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
}

// Zerolog adapts a zerolog.Logger to Logger.
type Zerolog struct {
	zl zerolog.Logger
}

var _ Logger = (*Zerolog)(nil)

// Wrap returns zl as a Logger.
func Wrap(zl zerolog.Logger) *Zerolog {
	return &Zerolog{zl: zl}
}

func (z *Zerolog) Trace() *zerolog.Event { return z.zl.Trace() }
func (z *Zerolog) Debug() *zerolog.Event { return z.zl.Debug() }
func (z *Zerolog) Info() *zerolog.Event  { return z.zl.Info() }
func (z *Zerolog) Warn() *zerolog.Event  { return z.zl.Warn() }
func (z *Zerolog) Error() *zerolog.Event { return z.zl.Error() }
func (z *Zerolog) With() zerolog.Context { return z.zl.With() }

// Component returns a child logger tagged with component.
func (z *Zerolog) Component(component string) *Zerolog {
	return Wrap(z.zl.With().Str("component", component).Logger())
}

// Level reports the minimum level z writes.
func (z *Zerolog) Level() zerolog.Level {
	return z.zl.GetLevel()
}

// NewTestLogger returns a Logger that discards everything.
func NewTestLogger() Logger {
	return Wrap(zerolog.Nop())
}
