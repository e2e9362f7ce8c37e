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

//nolint:paralleltest // Tests mutate package-level listPortsFn, portUsableFn and probeDeviceFn
package uart

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ZaparooProject/go-powerctl/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

// stubEnvironment replaces the enumeration, tty check and probe hooks.
func stubEnvironment(t *testing.T, ports []*enumerator.PortDetails, usable map[string]bool,
	probe func(context.Context, string, *detection.Options) bool,
) {
	t.Helper()
	origList, origUsable, origProbe := listPortsFn, portUsableFn, probeDeviceFn
	t.Cleanup(func() {
		listPortsFn, portUsableFn, probeDeviceFn = origList, origUsable, origProbe
	})

	listPortsFn = func() ([]*enumerator.PortDetails, error) { return ports, nil }
	portUsableFn = func(path string) bool { return usable[path] }
	if probe == nil {
		probe = func(context.Context, string, *detection.Options) bool {
			t.Error("probe must not run in passive mode")
			return false
		}
	}
	probeDeviceFn = probe
}

var testPorts = []*enumerator.PortDetails{
	{Name: "/dev/ttyS0"},
	{Name: "/dev/ttyS1"},
	{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", Product: "USB Serial"},
	{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", Product: "Arduino Uno"},
	{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0bda", PID: "0001", Product: "8CH Relay Board", SerialNumber: "A1"},
}

func TestDetect_Passive(t *testing.T) {
	stubEnvironment(t, testPorts, map[string]bool{"/dev/ttyS0": true}, nil)

	opts := detection.DefaultOptions()
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)

	byPath := make(map[string]detection.DeviceInfo)
	for _, d := range devices {
		byPath[d.Path] = d
	}
	require.Len(t, byPath, 4, "phantom ttyS1 is dropped")

	assert.Equal(t, detection.Low, byPath["/dev/ttyS0"].Confidence)
	assert.Equal(t, detection.Medium, byPath["/dev/ttyUSB0"].Confidence)
	assert.Equal(t, "1A86:7523", byPath["/dev/ttyUSB0"].Metadata["vidpid"])
	assert.Equal(t, "ttyUSB0", byPath["/dev/ttyUSB0"].Name)

	board := byPath["/dev/ttyACM0"]
	assert.Equal(t, detection.Medium, board.Confidence)
	assert.Equal(t, "2341:0043", board.Metadata["vidpid"])

	relay := byPath["/dev/ttyUSB1"]
	assert.Equal(t, detection.Medium, relay.Confidence)
	assert.Equal(t, "A1", relay.Metadata["serial"])
	assert.Equal(t, "8CH Relay Board", relay.Metadata["product"])
}

func TestDetect_IgnorePaths(t *testing.T) {
	stubEnvironment(t, testPorts, map[string]bool{"/dev/ttyS0": true}, nil)

	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"/dev/ttyS0", "/dev/ttyUSB1"}
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
}

func TestDetect_SafeModeKeepsOnlyResponders(t *testing.T) {
	var probed []string
	stubEnvironment(t, testPorts, map[string]bool{"/dev/ttyS0": true},
		func(_ context.Context, path string, _ *detection.Options) bool {
			probed = append(probed, path)
			return path == "/dev/ttyUSB1"
		})

	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB1", devices[0].Path)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.ElementsMatch(t, []string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyACM0", "/dev/ttyUSB1"}, probed)
}

func TestDetect_SafeModeFindsArduinoBoard(t *testing.T) {
	uno := []*enumerator.PortDetails{
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", Product: "Arduino Uno"},
	}
	stubEnvironment(t, uno, nil,
		func(_ context.Context, path string, _ *detection.Options) bool { return path == "/dev/ttyACM0" })

	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyACM0", devices[0].Path)
	assert.Equal(t, detection.High, devices[0].Confidence)
}

func TestDetect_SafeModeDiscardsLikelyBridgeWhenProbeFails(t *testing.T) {
	stubEnvironment(t, testPorts[2:3], nil,
		func(context.Context, string, *detection.Options) bool { return false })

	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetect_NoPorts(t *testing.T) {
	stubEnvironment(t, nil, nil, nil)

	opts := detection.DefaultOptions()
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetect_EnumerationError(t *testing.T) {
	stubEnvironment(t, nil, nil, nil)
	boom := errors.New("sysfs unavailable")
	listPortsFn = func() ([]*enumerator.PortDetails, error) { return nil, boom }

	opts := detection.DefaultOptions()
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to enumerate serial ports")
}

func TestDetect_CancelledContext(t *testing.T) {
	stubEnvironment(t, testPorts, map[string]bool{"/dev/ttyS0": true}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := detection.DefaultOptions()
	_, err := New().Detect(ctx, &opts)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDetectAll_UsesRegisteredDetector(t *testing.T) {
	stubEnvironment(t, testPorts[2:3], nil, nil)

	opts := detection.DefaultOptions()
	opts.Transports = []string{"uart"}
	devices, err := detection.DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
}

func TestProbeDevice_MissingPort(t *testing.T) {
	opts := detection.DefaultOptions()
	opts.ProbeTimeout = 20 * time.Millisecond
	path := filepath.Join(t.TempDir(), "ttyMissing")

	assert.False(t, probeDevice(context.Background(), path, &opts))
}

func TestPortUsable_NotATTY(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("tty check is linux only")
	}
	path := filepath.Join(t.TempDir(), "plain")
	assert.False(t, portUsable(path), "missing file")

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	assert.False(t, portUsable(path), "regular file is not a tty")
}

func TestPortName(t *testing.T) {
	assert.Equal(t, "ttyUSB0", portName("/dev/ttyUSB0"))
	assert.Equal(t, "COM3", portName("COM3"))
	assert.Equal(t, "COM4", portName(`\\.\COM4`))
}
