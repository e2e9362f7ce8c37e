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
	"errors"
	"fmt"
	"io"
	"runtime"
	"syscall"

	"github.com/ZaparooProject/go-powerctl/internal/frame"
)

// Error categories
var (
	// Caller input errors - handled locally, never fatal
	ErrUsage = errors.New("invalid usage")

	// Transport errors - fatal for the current invocation
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrTransportIO          = errors.New("transport I/O failed")
	ErrShortWrite           = errors.New("short write")

	// Protocol outcomes - informational
	ErrScanTimeout     = frame.ErrScanTimeout
	ErrPayloadTooLarge = frame.ErrPayloadTooLarge
	ErrUserAbort       = errors.New("aborted by user")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoTransport   = errors.New("no transport factory configured")
)

// UsageError describes malformed caller input. It wraps ErrUsage.
type UsageError struct {
	Arg    string // "action" or "port"
	Value  string // Offending input as given
	Reason string
}

func newUsageError(arg, value, reason string) *UsageError {
	return &UsageError{Arg: arg, Value: value, Reason: reason}
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Arg, e.Value, e.Reason)
}

func (*UsageError) Unwrap() error {
	return ErrUsage
}

// ErrorType separates the two fatal transport failure kinds.
type ErrorType int

const (
	// ErrorTypeUnavailable means the device path could not be opened
	ErrorTypeUnavailable ErrorType = iota
	// ErrorTypeIO means a write, flush or read failed on an open transport
	ErrorTypeIO
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeUnavailable:
		return "unavailable"
	case ErrorTypeIO:
		return "io"
	default:
		return "unknown"
	}
}

// TransportError wraps transport-level errors with additional context.
// errors.Is matches both the category sentinel and the underlying cause.
type TransportError struct {
	Err  error     // Underlying error
	Op   string    // Operation that failed
	Port string    // Device path
	Type ErrorType // Error category
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Port, e.sentinel(), e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.sentinel(), e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *TransportError) sentinel() error {
	if e.Type == ErrorTypeUnavailable {
		return ErrTransportUnavailable
	}
	return ErrTransportIO
}

// NewTransportUnavailableError reports that the device could not be opened.
func NewTransportUnavailableError(port string, err error) *TransportError {
	return &TransportError{Op: "open", Port: port, Err: err, Type: ErrorTypeUnavailable}
}

// NewTransportIOError reports an I/O failure on an open transport.
func NewTransportIOError(op, port string, err error) *TransportError {
	return &TransportError{Op: op, Port: port, Err: err, Type: ErrorTypeIO}
}

// IsUsage reports whether err stems from malformed caller input.
func IsUsage(err error) bool {
	return errors.Is(err, ErrUsage)
}

// IsFatal returns true if the error should terminate the invocation with a
// failure status: transport unavailability and transport I/O errors.
// Scan timeouts, usage errors and user aborts are not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrUsage),
		errors.Is(err, ErrScanTimeout),
		errors.Is(err, ErrUserAbort):
		return false
	case errors.Is(err, ErrTransportUnavailable),
		errors.Is(err, ErrTransportIO),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	}

	return isDeviceGoneError(err)
}

// Windows error codes for device disconnection detection.
// These are defined here because they're not available on non-Windows platforms.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors raised when a USB serial
// adapter is unplugged mid-exchange.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}

	return false
}
