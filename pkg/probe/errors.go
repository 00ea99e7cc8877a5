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

package probe

import (
	"errors"
	"fmt"
)

// Kind classifies a probe failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindUnreachable Kind = "unreachable"
	KindMalformed   Kind = "malformed"
)

var (
	// ErrTimeout matches any *Error of KindTimeout via errors.Is.
	ErrTimeout = errors.New("probe timed out")
	// ErrUnreachable matches any *Error of KindUnreachable via errors.Is.
	ErrUnreachable = errors.New("device unreachable")
	// ErrMalformed matches any *Error of KindMalformed via errors.Is.
	ErrMalformed = errors.New("malformed response")

	errEmptyAddress        = errors.New("device has no address")
	errUnsupportedVersion  = errors.New("unsupported SNMP version")
	errErrorStatus         = errors.New("response carried error status")
	errShortResponse       = errors.New("response has fewer variables than requested")
	errUnexpectedValueType = errors.New("unexpected value type")
	errNoEchoReply         = errors.New("no echo reply")
	errDestUnreachable     = errors.New("destination unreachable")
	errNoIPv4Address       = errors.New("no IPv4 address")
	errDuplicateVariable   = errors.New("duplicate variable name")
	errEmptyOID            = errors.New("variable has no OID")
	errEmptyName           = errors.New("variable has no name")
	errMissingConsumable   = errors.New("consumable variable has no consumable kind")
	errUnknownRole         = errors.New("unknown variable role")
)

// Error is the failure returned by Probe. Op names the stage that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("probe %s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("probe %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrUnreachable:
		return e.Kind == KindUnreachable
	case ErrMalformed:
		return e.Kind == KindMalformed
	default:
		return false
	}
}

// KindOf returns the kind of a probe error, if err is or wraps one.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}

	return "", false
}
