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

// Package powerctl drives a remote power switch board over a byte link.
//
// Each command is a fixed 4-byte frame. Status requests are answered with a
// text payload delimited by 0x32 and 0x23 somewhere in the incoming stream,
// which is read back under an aggregate deadline.
package powerctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-powerctl/internal/frame"
	"github.com/ZaparooProject/go-powerctl/internal/syncutil"
)

// Outcome classifies a completed exchange that did not fail.
type Outcome int

const (
	// OutcomeSent means the frame was written and no reply was expected
	OutcomeSent Outcome = iota
	// OutcomeStatus means a status reply was received
	OutcomeStatus
	// OutcomeNoResponse means the status scan hit its deadline
	OutcomeNoResponse
	// OutcomeAborted means the caller cancelled the exchange
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeStatus:
		return "status"
	case OutcomeNoResponse:
		return "no response"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes one exchange with the board.
type Result struct {
	Status  string        // Decoded status text, OutcomeStatus only
	Payload []byte        // Raw status payload, OutcomeStatus only
	Elapsed time.Duration // Time from open to close
	Outcome Outcome
	Command Command
	Frame   frame.Frame // Bytes that were (or would have been) transmitted
	Written bool        // Frame reached the transport and was flushed
}

// Err converts the outcome into an error for callers that prefer one:
// ErrScanTimeout for no response, ErrUserAbort for aborted, nil otherwise.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeNoResponse:
		return ErrScanTimeout
	case OutcomeAborted:
		return ErrUserAbort
	default:
		return nil
	}
}

// Option configures a Session.
type Option func(*Session) error

// WithTransportFactory sets how the transport is opened for each exchange.
func WithTransportFactory(factory TransportFactory) Option {
	return func(s *Session) error {
		if factory == nil {
			return ErrNoTransport
		}
		s.factory = factory
		return nil
	}
}

// WithClock replaces the time source used for the scan deadline.
func WithClock(now func() time.Time) Option {
	return func(s *Session) error {
		if now == nil {
			return errors.New("nil clock")
		}
		s.now = now
		return nil
	}
}

// WithSentHook registers fn to run as soon as a frame has been written and
// flushed, before any reply is read. fn sees the partially filled Result.
func WithSentHook(fn func(*Result)) Option {
	return func(s *Session) error {
		s.onSent = fn
		return nil
	}
}

// Session runs command/response exchanges against one board.
//
// Exchanges are serialised: a Session never has more than one command in
// flight, and each exchange opens and closes its own transport.
type Session struct {
	config  *Config
	factory TransportFactory
	now     func() time.Time
	onSent  func(*Result)
	mu      syncutil.Mutex
}

// NewSession validates cfg and builds a Session. A nil cfg means
// DefaultConfig(). WithTransportFactory is required.
func NewSession(cfg *Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		config: cfg.Clone(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.factory == nil {
		return nil, ErrNoTransport
	}
	return s, nil
}

// Config returns a copy of the session configuration.
func (s *Session) Config() *Config {
	return s.config.Clone()
}

// Validate checks raw action and port arguments against this board.
func (s *Session) Validate(action, port string) (Command, error) {
	return Validate(action, port, s.config.NumPorts)
}

// Run validates the arguments and executes the resulting command. Usage
// errors are returned before any transport is opened.
func (s *Session) Run(ctx context.Context, action, port string) (*Result, error) {
	cmd, err := s.Validate(action, port)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, cmd)
}

// Execute performs one exchange: open, write the frame, flush, and for status
// commands scan for the reply. The transport is closed on every path.
//
// A scan timeout, a reply over MaxPayload or a cancelled ctx is reported
// through Result.Outcome with a nil error. Transport failures are returned
// as *TransportError.
func (s *Session) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if _, err := NewCommand(int(cmd.Port), cmd.Operation, s.config.NumPorts); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	result := &Result{Command: cmd, Frame: cmd.Frame()}

	if ctx.Err() != nil {
		result.Outcome = OutcomeAborted
		return result, nil
	}

	transport, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := transport.Close(); closeErr != nil {
			Debugf("close %s failed: %v", s.config.Device, closeErr)
		}
		result.Elapsed = s.now().Sub(started)
	}()

	if err := s.send(transport, result.Frame); err != nil {
		return nil, err
	}
	result.Written = true
	Debugf("TX %s: %s", cmd, result.Frame)
	if s.onSent != nil {
		s.onSent(result)
	}

	if !cmd.Operation.ExpectsReply() {
		result.Outcome = OutcomeSent
		return result, nil
	}

	return s.readStatus(ctx, transport, result)
}

func (s *Session) open(ctx context.Context) (Transport, error) {
	transport, err := s.factory(ctx, s.config)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, NewTransportUnavailableError(s.config.Device, err)
	}
	if transport == nil {
		return nil, NewTransportUnavailableError(s.config.Device, errors.New("factory returned nil transport"))
	}
	return transport, nil
}

// send writes the frame and drains it so the scan only ever sees bytes sent
// after this command.
func (s *Session) send(transport Transport, f frame.Frame) error {
	n, err := transport.Write(f.Bytes())
	if err != nil {
		return NewTransportIOError("write", s.config.Device, err)
	}
	if n != frame.Length {
		return NewTransportIOError("write", s.config.Device,
			fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, frame.Length))
	}
	if err := transport.Flush(); err != nil {
		return NewTransportIOError("flush", s.config.Device, err)
	}
	return nil
}

func (s *Session) readStatus(ctx context.Context, transport Transport, result *Result) (*Result, error) {
	if err := transport.SetReadTimeout(s.config.ReadTimeout); err != nil {
		return nil, NewTransportIOError("set read timeout", s.config.Device, err)
	}

	scanner := frame.NewStatusScanner(s.config.ScanTimeout)
	scanner.MaxPayload = s.config.MaxPayload
	scanner.SetClock(s.now)

	payload, err := scanner.Scan(ctx, transport)
	switch {
	case err == nil:
		result.Outcome = OutcomeStatus
		result.Payload = payload
		result.Status = frame.DecodeText(payload)
		Debugf("RX status: %s (%q)", frame.FormatHex(payload), result.Status)
		return result, nil
	case errors.Is(err, frame.ErrScanTimeout), errors.Is(err, frame.ErrPayloadTooLarge):
		Debugf("status scan: %v", err)
		result.Outcome = OutcomeNoResponse
		return result, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Debugln("status scan aborted")
		result.Outcome = OutcomeAborted
		return result, nil
	default:
		return nil, NewTransportIOError("read", s.config.Device, err)
	}
}
