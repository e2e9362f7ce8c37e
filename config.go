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
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// MaxPorts is the largest port count a single frame can address.
const MaxPorts = 256

// Config holds everything a Session needs to talk to one board.
type Config struct {
	// Device is the serial device path, e.g. /dev/ttyUSB0 or COM3
	Device string `toml:"device"`
	// BaudRate of the serial link
	BaudRate int `toml:"baud_rate"`
	// NumPorts is the number of switchable ports on the board
	NumPorts int `toml:"num_ports"`
	// ScanTimeout is the aggregate deadline for reading a status reply
	ScanTimeout time.Duration `toml:"scan_timeout"`
	// ReadTimeout is the per-read timeout handed to the transport
	ReadTimeout time.Duration `toml:"read_timeout"`
	// MaxPayload bounds a status reply (0 = unbounded)
	MaxPayload int `toml:"max_payload"`
	// Verbose echoes transmitted frames
	Verbose bool `toml:"verbose"`
}

// DefaultConfig returns the default board configuration
func DefaultConfig() *Config {
	return &Config{
		Device:      "/dev/ttyUSB0",
		BaudRate:    115200,
		NumPorts:    2, // relay outputs on the stock board
		ScanTimeout: 8 * time.Second, // board waits 5s before acting on a frame
		ReadTimeout: 50 * time.Millisecond,
	}
}

// Validate checks the configuration for values the session cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.BaudRate <= 0:
		return fmt.Errorf("%w: baud rate must be positive, got %d", ErrInvalidConfig, c.BaudRate)
	case c.NumPorts <= 0 || c.NumPorts > MaxPorts:
		return fmt.Errorf("%w: port count must be in 1..%d, got %d", ErrInvalidConfig, MaxPorts, c.NumPorts)
	case c.ScanTimeout <= 0:
		return fmt.Errorf("%w: scan timeout must be positive, got %v", ErrInvalidConfig, c.ScanTimeout)
	case c.ReadTimeout <= 0:
		return fmt.Errorf("%w: read timeout must be positive, got %v", ErrInvalidConfig, c.ReadTimeout)
	case c.ReadTimeout > c.ScanTimeout:
		return fmt.Errorf("%w: read timeout %v exceeds scan timeout %v",
			ErrInvalidConfig, c.ReadTimeout, c.ScanTimeout)
	case c.MaxPayload < 0:
		return fmt.Errorf("%w: max payload must not be negative, got %d", ErrInvalidConfig, c.MaxPayload)
	}
	return nil
}

// Clone returns a copy that can be modified independently.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// LoadConfigFile reads a TOML file on top of DefaultConfig. Keys missing from
// the file keep their defaults. Durations are written as strings ("2s").
//
//	device = "/dev/ttyACM0"
//	num_ports = 4
//	scan_timeout = "1500ms"
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig decodes TOML config data. name is used in error messages only.
func ParseConfig(data []byte, name string) (*Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", name, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return cfg, nil
}
