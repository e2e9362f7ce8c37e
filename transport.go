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

package powerctl

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Transport is the byte link to the board. The UART backend lives in
// transport/uart; tests use MockTransport or the simulator in internal/testing.
//
// The transport is not expected to enforce any overall deadline. PollByte only
// has to honour the per-read timeout set with SetReadTimeout.
type Transport interface {
	// Write sends raw bytes
	Write(p []byte) (int, error)

	// Flush blocks until written bytes have left the host
	Flush() error

	// PollByte reads one byte, returning ok=false if the read timeout elapsed
	// without data
	PollByte() (b byte, ok bool, err error)

	// SetReadTimeout sets the per-read timeout used by PollByte
	SetReadTimeout(timeout time.Duration) error

	// Close releases the underlying device
	Close() error
}

// TransportFactory opens a transport for one exchange. Errors are reported
// to the caller as ErrTransportUnavailable.
type TransportFactory func(ctx context.Context, cfg *Config) (Transport, error)

// Transport call names recorded by MockTransport
const (
	CallWrite      = "write"
	CallFlush      = "flush"
	CallPoll       = "poll"
	CallSetTimeout = "set_timeout"
	CallClose      = "close"
)

// MockTransport provides a mock implementation of Transport for testing
type MockTransport struct {
	writeErr  error
	flushErr  error
	readErr   error
	written   []byte
	response  []byte
	calls     []string
	timeout   time.Duration
	shortBy   int
	mu        sync.RWMutex
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
	}
}

// Write implements Transport interface
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, CallWrite)

	if !m.connected {
		return 0, errors.New("transport not connected")
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	n := len(p) - m.shortBy
	if n < 0 {
		n = 0
	}
	m.written = append(m.written, p[:n]...)
	return n, nil
}

// Flush implements Transport interface
func (m *MockTransport) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, CallFlush)
	if !m.connected {
		return errors.New("transport not connected")
	}
	return m.flushErr
}

// PollByte implements Transport interface. When the scripted response is
// exhausted it returns ok=false immediately.
func (m *MockTransport) PollByte() (byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, CallPoll)

	if !m.connected {
		return 0, false, errors.New("transport not connected")
	}
	if m.readErr != nil {
		return 0, false, m.readErr
	}
	if len(m.response) == 0 {
		return 0, false, nil
	}
	b := m.response[0]
	m.response = m.response[1:]
	return b, true, nil
}

// SetReadTimeout implements Transport interface
func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.calls = append(m.calls, CallSetTimeout)
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.calls = append(m.calls, CallClose)
	m.connected = false
	m.mu.Unlock()
	return nil
}

// Test helper methods

// SetResponse scripts the bytes returned by PollByte
func (m *MockTransport) SetResponse(response []byte) {
	m.mu.Lock()
	m.response = append([]byte(nil), response...)
	m.mu.Unlock()
}

// SetWriteError configures an error returned by Write
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// SetShortWrite makes Write report n fewer bytes than requested
func (m *MockTransport) SetShortWrite(n int) {
	m.mu.Lock()
	m.shortBy = n
	m.mu.Unlock()
}

// SetFlushError configures an error returned by Flush
func (m *MockTransport) SetFlushError(err error) {
	m.mu.Lock()
	m.flushErr = err
	m.mu.Unlock()
}

// SetReadError configures an error returned by PollByte
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Written returns all bytes accepted by Write
func (m *MockTransport) Written() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.written...)
}

// Calls returns the sequence of transport calls made so far
func (m *MockTransport) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls...)
}

// Timeout returns the last read timeout set
func (m *MockTransport) Timeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeout
}

// IsConnected returns false once Close has been called
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Factory returns a TransportFactory that always hands out this mock
func (m *MockTransport) Factory() TransportFactory {
	return func(context.Context, *Config) (Transport, error) {
		return m, nil
	}
}
