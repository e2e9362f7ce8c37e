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
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportError_Unavailable(t *testing.T) {
	t.Parallel()
	cause := errors.New("no such file or directory")
	err := NewTransportUnavailableError("/dev/ttyUSB0", cause)

	require.ErrorIs(t, err, ErrTransportUnavailable)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTransportIO)
	assert.Equal(t, "open /dev/ttyUSB0: transport unavailable: no such file or directory", err.Error())
	assert.True(t, IsFatal(err))
}

func TestTransportError_IO(t *testing.T) {
	t.Parallel()
	err := NewTransportIOError("write", "", syscall.EIO)

	require.ErrorIs(t, err, ErrTransportIO)
	require.ErrorIs(t, err, syscall.EIO)
	assert.Equal(t, "write: transport I/O failed: input/output error", err.Error())
	assert.Equal(t, "io", err.Type.String())

	wrapped := fmt.Errorf("exchange failed: %w", err)
	var te *TransportError
	require.ErrorAs(t, wrapped, &te)
	assert.Equal(t, "write", te.Op)
	assert.True(t, IsFatal(wrapped))
}

func TestUsageError(t *testing.T) {
	t.Parallel()
	err := newUsageError("port", "9", "must be less than 8")

	assert.Equal(t, `invalid port "9": must be less than 8`, err.Error())
	assert.ErrorIs(t, err, ErrUsage)
	assert.True(t, IsUsage(err))
	assert.False(t, IsUsage(ErrTransportIO))
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err   error
		name  string
		fatal bool
	}{
		{name: "nil", err: nil, fatal: false},
		{name: "usage", err: newUsageError("action", "x", "bad"), fatal: false},
		{name: "scan timeout", err: fmt.Errorf("scan: %w", ErrScanTimeout), fatal: false},
		{name: "user abort", err: ErrUserAbort, fatal: false},
		{name: "unavailable", err: NewTransportUnavailableError("COM3", errors.New("denied")), fatal: true},
		{name: "eof", err: io.EOF, fatal: true},
		{name: "closed pipe", err: io.ErrClosedPipe, fatal: true},
		{name: "device gone errno", err: fmt.Errorf("read: %w", syscall.ENODEV), fatal: true},
		{name: "unrelated", err: errors.New("something else"), fatal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}
