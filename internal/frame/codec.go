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
	"fmt"
	"strings"
	"unicode/utf8"
)

// Frame is a single encoded command as it goes on the wire.
//
// Layout:
//
//	[StartMagic][port][code][EndMagic]
type Frame [Length]byte

// Encode builds the command frame for the given port index and operation code.
// Range checks on port and code are the caller's job; encoding cannot fail.
func Encode(port, code byte) Frame {
	return Frame{StartMagic, port, code, EndMagic}
}

// IsStatusRequest reports whether the operation code expects a reply.
func IsStatusRequest(code byte) bool {
	return code == CodeStatus
}

// Port returns the target port index.
func (f Frame) Port() byte {
	return f[1]
}

// Code returns the operation code.
func (f Frame) Code() byte {
	return f[2]
}

// Bytes returns the frame as a slice ready for Write.
func (f Frame) Bytes() []byte {
	out := make([]byte, Length)
	copy(out, f[:])
	return out
}

// String formats the frame as space separated uppercase hex, e.g. "42 00 01 24".
func (f Frame) String() string {
	return FormatHex(f[:])
}

// Valid reports whether the fixed magic bytes are in place.
func (f Frame) Valid() bool {
	return f[0] == StartMagic && f[Length-1] == EndMagic
}

// Decode parses a raw four byte command frame. It is the inverse of Encode and
// is used by device simulators and diagnostics.
func Decode(data []byte) (Frame, error) {
	if len(data) != Length {
		return Frame{}, fmt.Errorf("frame must be exactly %d bytes, got %d", Length, len(data))
	}
	var f Frame
	copy(f[:], data)
	if !f.Valid() {
		return Frame{}, fmt.Errorf("bad frame markers: %s", f)
	}
	return f, nil
}

// FormatHex renders bytes as space separated uppercase hex pairs.
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		_, _ = fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// DecodeText interprets a status payload as UTF-8 text. Invalid sequences are
// replaced with U+FFFD rather than rejected.
func DecodeText(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	return strings.ToValidUTF8(string(payload), string(utf8.RuneError))
}
