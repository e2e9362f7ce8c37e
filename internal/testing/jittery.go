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

package testing

import (
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of JitterySource.
type JitterConfig struct {
	// MaxLatency is the upper bound of the random delay added before each byte.
	MaxLatency time.Duration
	// PollTimeout is how long PollByte waits before reporting "no data".
	PollTimeout time.Duration
	// StallAfterBytes stops delivery after this many bytes (0 disables).
	StallAfterBytes int
	Seed            uint64
}

// DefaultJitterConfig returns a configuration resembling a USB-UART bridge
// with a 5ms per-read timeout.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:  2 * time.Millisecond,
		PollTimeout: 5 * time.Millisecond,
	}
}

// JitterySource replays a fixed byte stream one byte per poll with simulated
// latency, and can stall partway through to emulate a device that stops
// talking mid-response.
//
// Once the stream is exhausted (or stalled) every poll blocks for PollTimeout
// and returns ok=false, the same way a serial read with a timeout behaves.
type JitterySource struct {
	rng    *rand.Rand
	data   []byte
	config JitterConfig
	pos    int
	polls  int
}

// NewJitterySource wraps data with jitter simulation.
func NewJitterySource(data []byte, config JitterConfig) *JitterySource {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}

	return &JitterySource{
		data:   append([]byte(nil), data...),
		config: config,
		rng:    rng,
	}
}

// PollByte returns the next byte of the stream, or ok=false after PollTimeout
// when no byte is available.
func (j *JitterySource) PollByte() (byte, bool, error) {
	j.polls++

	stalled := j.config.StallAfterBytes > 0 && j.pos >= j.config.StallAfterBytes
	if stalled || j.pos >= len(j.data) {
		if j.config.PollTimeout > 0 {
			time.Sleep(j.config.PollTimeout)
		}
		return 0, false, nil
	}

	if j.config.MaxLatency > 0 {
		delay := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1))
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	b := j.data[j.pos]
	j.pos++
	return b, true, nil
}

// Consumed returns how many bytes have been delivered so far.
func (j *JitterySource) Consumed() int {
	return j.pos
}

// Remaining returns the undelivered tail of the stream.
func (j *JitterySource) Remaining() []byte {
	return j.data[j.pos:]
}

// Polls returns the total number of PollByte calls, including empty ones.
func (j *JitterySource) Polls() int {
	return j.polls
}
