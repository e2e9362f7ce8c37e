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

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeAndConfidence_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "passive", Passive.String())
	assert.Equal(t, "safe", Safe.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())

	assert.Equal(t, Low, Confidence(0))
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "unknown", Confidence(99).String())
}

func TestDeviceInfo_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		expected string
		device   DeviceInfo
	}{
		{
			name:     "low confidence",
			device:   DeviceInfo{Transport: "uart", Path: "/dev/ttyS0", Confidence: Low},
			expected: "uart device at /dev/ttyS0 (confidence: low)",
		},
		{
			name: "usb bridge",
			device: DeviceInfo{
				Transport:  "uart",
				Path:       "/dev/ttyUSB0",
				Confidence: Medium,
				Metadata:   map[string]string{"vidpid": "1A86:7523"},
			},
			expected: "uart device at /dev/ttyUSB0 (confidence: medium) [1A86:7523]",
		},
		{
			name:     "answered probe",
			device:   DeviceInfo{Transport: "uart", Path: "COM3", Confidence: High},
			expected: "uart device at COM3 (confidence: high)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, tc.device.String())
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()
	opts := DefaultOptions()

	assert.Equal(t, Passive, opts.Mode)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 115200, opts.BaudRate)
	assert.Positive(t, opts.ProbeTimeout)
	assert.NotEmpty(t, opts.Blocklist)
	assert.False(t, IsBlocked("2341:0043", opts.Blocklist), "Arduino Uno must stay detectable")
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()
	blocklist := []string{"1234:5678", " abcd:ef01 "}

	assert.True(t, IsBlocked("1234:5678", blocklist))
	assert.True(t, IsBlocked("ABCD:EF01", blocklist))
	assert.True(t, IsBlocked("abcd:ef01", blocklist))
	assert.False(t, IsBlocked("1234:9999", blocklist))
	assert.False(t, IsBlocked("", blocklist))
	assert.False(t, IsBlocked("1234:5678", nil))
}

func TestFormatVIDPID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		vid, pid string
		want     string
	}{
		{"1a86", "7523", "1A86:7523"},
		{"0x0403", "0x6001", "0403:6001"},
		{"403", "6001", "0403:6001"},
		{"", "6001", ""},
		{"zz", "6001", ""},
		{"10C4", "12345", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatVIDPID(tt.vid, tt.pid), "FormatVIDPID(%q, %q)", tt.vid, tt.pid)
	}
}

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		devicePath  string
		ignorePaths []string
		expected    bool
	}{
		{"empty ignore list", "/dev/ttyUSB0", []string{}, false},
		{"empty device path", "", []string{"/dev/ttyUSB0"}, false},
		{"exact match", "/dev/ttyUSB0", []string{"/dev/ttyUSB0"}, true},
		{"no match", "/dev/ttyUSB0", []string{"/dev/ttyUSB1"}, false},
		{"uncleaned ignore path", "/dev/ttyUSB0", []string{"/dev/../dev/ttyUSB0"}, true},
		{"windows case folding", "COM3", []string{"com3"}, true},
		{"blank entries skipped", "/dev/ttyACM0", []string{"", "/dev/ttyACM0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsPathIgnored(tt.devicePath, tt.ignorePaths))
		})
	}
}

func TestSortByConfidence(t *testing.T) {
	t.Parallel()
	devices := []DeviceInfo{
		{Path: "/dev/ttyS0", Confidence: Low},
		{Path: "/dev/ttyUSB1", Confidence: Medium},
		{Path: "/dev/ttyACM0", Confidence: High},
		{Path: "/dev/ttyUSB0", Confidence: Medium},
	}
	SortByConfidence(devices)

	var paths []string
	for _, d := range devices {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyS0"}, paths)
}

// MockDetector implements Detector interface for testing.
type MockDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
}

func (m *MockDetector) Detect(_ context.Context, _ *Options) ([]DeviceInfo, error) {
	return m.devices, m.err
}

func (m *MockDetector) Transport() string {
	return m.transport
}

// BlockingDetector is a detector that never returns before ctx is done.
type BlockingDetector struct{}

func (*BlockingDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (*BlockingDetector) Transport() string {
	return "blocking"
}

// withRegistry swaps the detector registry for the duration of a test.
func withRegistry(t *testing.T, detectors ...Detector) {
	t.Helper()
	registryMu.Lock()
	original := registry
	registry = detectors
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		registry = original
		registryMu.Unlock()
	})
}

//nolint:paralleltest // Mutates package-level registry
func TestGetDetectors_FilterByTransport(t *testing.T) {
	withRegistry(t,
		&MockDetector{transport: "uart"},
		&MockDetector{transport: "tcp"},
	)

	assert.Len(t, getDetectors(nil), 2)
	assert.Len(t, getDetectors([]string{"uart"}), 1)
	assert.Len(t, getDetectors([]string{"uart", "tcp"}), 2)
	assert.Empty(t, getDetectors([]string{"usb"}))
}

//nolint:paralleltest // Mutates package-level registry
func TestDetectAll_NoDetectors(t *testing.T) {
	withRegistry(t)

	opts := DefaultOptions()
	opts.Transports = []string{"nonexistent"}

	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDetectors)
}

//nolint:paralleltest // Mutates package-level registry
func TestDetectAll_Timeout(t *testing.T) {
	withRegistry(t, &BlockingDetector{})

	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond

	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

//nolint:paralleltest // Mutates package-level registry
func TestDetectAll_MergesAndFilters(t *testing.T) {
	withRegistry(t,
		&MockDetector{transport: "uart", devices: []DeviceInfo{
			{Transport: "uart", Path: "/dev/ttyS0", Confidence: Low},
			{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Medium,
				Metadata: map[string]string{"vidpid": "1234:5678"}},
		}},
		&MockDetector{transport: "uart", devices: []DeviceInfo{
			{Transport: "uart", Path: "/dev/ttyACM0", Confidence: High},
			{Transport: "uart", Path: "/dev/ttyACM1", Confidence: High},
		}},
	)

	opts := DefaultOptions()
	opts.Blocklist = []string{"1234:5678"}
	opts.IgnorePaths = []string{"/dev/ttyACM1"}

	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/ttyACM0", devices[0].Path)
	assert.Equal(t, "/dev/ttyS0", devices[1].Path)
}

//nolint:paralleltest // Mutates package-level registry
func TestDetectAll_PartialFailure(t *testing.T) {
	boom := errors.New("enumeration failed")
	withRegistry(t,
		&MockDetector{transport: "uart", err: boom},
		&MockDetector{transport: "tcp", devices: []DeviceInfo{{Transport: "tcp", Path: "host:23"}}},
	)

	opts := DefaultOptions()
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

//nolint:paralleltest // Mutates package-level registry
func TestDetectAll_Errors(t *testing.T) {
	boom := errors.New("enumeration failed")
	withRegistry(t,
		&MockDetector{transport: "uart", err: boom},
		&MockDetector{transport: "tcp", err: ErrNoDevicesFound},
	)

	opts := DefaultOptions()
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "uart detection")

	withRegistry(t, &MockDetector{transport: "uart", err: ErrNoDevicesFound})
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}
