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

// Command frame markers
const (
	StartMagic = 0x42 // First byte of every command frame
	EndMagic   = 0x24 // Last byte of every command frame
)

// Status response markers
const (
	StatusStartMagic = 0x32 // Opens a status payload in the device stream
	StatusEndMagic   = 0x23 // Closes a status payload
)

// Operation codes carried in byte 2 of a command frame
const (
	CodeOff    = 0x00
	CodeOn     = 0x01
	CodeReboot = 0x02
	CodeStatus = 0x03
)

// Frame size
const (
	Length = 4 // Command frames are always exactly four bytes
)
