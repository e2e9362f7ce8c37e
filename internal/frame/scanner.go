// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Scanner errors
var (
	ErrScanTimeout      = errors.New("device not responding")
	ErrPayloadTooLarge  = errors.New("status payload too large")
	ErrNilByteSource    = errors.New("nil byte source")
	ErrInvalidScanSetup = errors.New("scanner timeout must be positive")
)

// ByteSource delivers the incoming device stream one byte at a time.
//
// PollByte blocks for at most the source's own per-read timeout. When that
// timeout elapses without data it returns ok=false and a nil error; this is not
// end of stream and the caller is expected to poll again.
type ByteSource interface {
	PollByte() (b byte, ok bool, err error)
}

type scanState int

const (
	seekingStart scanState = iota
	accumulating
)

func (s scanState) String() string {
	switch s {
	case seekingStart:
		return "seeking-start"
	case accumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// Scanner extracts one delimited payload from a byte stream within a deadline.
//
// The deadline is aggregate: it starts when Scan is called and is checked
// before every poll, so a source that trickles bytes or returns nothing at all
// cannot keep the scan alive past Timeout.
type Scanner struct {
	now        func() time.Time
	Timeout    time.Duration
	MaxPayload int
	Start      byte
	End        byte
}

// NewStatusScanner returns a scanner for status responses bounded by
// StatusStartMagic and StatusEndMagic.
func NewStatusScanner(timeout time.Duration) *Scanner {
	return &Scanner{
		Start:   StatusStartMagic,
		End:     StatusEndMagic,
		Timeout: timeout,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Scanner) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Scan reads from src until a complete payload has been seen, the deadline
// passes, or ctx is cancelled.
//
// On success the bytes between the start and end markers are returned and
// nothing past the end marker is read. On timeout the partial payload is
// dropped and ErrScanTimeout is returned. On cancellation ctx.Err() is returned.
func (s *Scanner) Scan(ctx context.Context, src ByteSource) ([]byte, error) {
	if src == nil {
		return nil, ErrNilByteSource
	}
	if s.Timeout <= 0 {
		return nil, ErrInvalidScanSetup
	}

	started := s.clock()
	state := seekingStart
	var payload []byte

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if s.clock().Sub(started) >= s.Timeout {
			return nil, fmt.Errorf("%w: no response after %v (%s)", ErrScanTimeout, s.Timeout, state)
		}

		b, ok, err := src.PollByte()
		if err != nil {
			return nil, fmt.Errorf("status scan read failed: %w", err)
		}
		if !ok {
			continue
		}

		switch state {
		case seekingStart:
			if b == s.Start {
				state = accumulating
				payload = make([]byte, 0, 32)
			}
		case accumulating:
			if b == s.End {
				return payload, nil
			}
			if s.MaxPayload > 0 && len(payload) >= s.MaxPayload {
				return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, s.MaxPayload)
			}
			payload = append(payload, b)
		}
	}
}
