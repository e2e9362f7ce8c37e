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

// Package uart implements powerctl.Transport over a serial port.
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-powerctl"
	"go.bug.st/serial"
)

// ErrNotOpen is returned by I/O on a transport without an open port.
var ErrNotOpen = errors.New("UART port not open")

// Transport implements the powerctl.Transport interface for UART communication.
type Transport struct {
	port     serial.Port
	portName string
	mu       sync.Mutex
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// defaultReadTimeout returns the platform-specific per-read timeout.
// USB serial drivers on Windows need the longer value.
func defaultReadTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay gives the Windows driver time to hand bytes to the
// adapter before Drain is called.
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// New opens portName at baud, 8N1.
func New(portName string, baud int) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(defaultReadTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// Factory returns a powerctl.TransportFactory that opens cfg.Device at
// cfg.BaudRate for each exchange.
func Factory() powerctl.TransportFactory {
	return func(ctx context.Context, cfg *powerctl.Config) (powerctl.Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := New(cfg.Device, cfg.BaudRate)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// Write sends p in a single call. A short write is reported as an error.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return 0, ErrNotOpen
	}

	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	}
	if n != len(p) {
		return n, fmt.Errorf("UART write failed: wrote %d of %d bytes", n, len(p))
	}
	return n, nil
}

// Flush blocks until the written bytes have been transmitted.
func (t *Transport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return ErrNotOpen
	}

	windowsPostWriteDelay()
	return t.drainWithRetry("flush")
}

// PollByte reads a single byte. A read that times out with no data returns
// ok=false and a nil error.
func (t *Transport) PollByte() (byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return 0, false, ErrNotOpen
	}

	var buf [1]byte
	n, err := t.port.Read(buf[:])
	if err != nil {
		if isInterruptedSystemCall(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("UART read failed: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}

// SetReadTimeout sets the read timeout for the transport
func (t *Transport) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return ErrNotOpen
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// PortName returns the device path the transport was opened on
func (t *Transport) PortName() string {
	return t.portName
}

func (t *Transport) String() string {
	return "uart:" + t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}
