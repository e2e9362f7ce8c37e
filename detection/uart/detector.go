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

// Package uart detects serial ports that may have a power switch board
// attached. Importing it registers the detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-powerctl"
	"github.com/ZaparooProject/go-powerctl/detection"
	"github.com/ZaparooProject/go-powerctl/transport/uart"
	"go.bug.st/serial/enumerator"
)

// Replaced in tests.
var (
	listPortsFn   = enumerator.GetDetailedPortsList
	portUsableFn  = portUsable
	probeDeviceFn = probeDevice
)

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

// Detect lists serial ports and, in Safe mode, keeps only those that answer
// a status request.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.enumeratePorts()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for i := range ports {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		port := &ports[i]
		if !d.includePort(port, opts) {
			continue
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// enumeratePorts gets the list of available serial ports
func (*detector) enumeratePorts() ([]serialPort, error) {
	details, err := listPortsFn()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]serialPort, 0, len(details))
	for _, pd := range details {
		if pd == nil || pd.Name == "" {
			continue
		}
		port := serialPort{
			Path:         pd.Name,
			Name:         portName(pd.Name),
			Product:      pd.Product,
			SerialNumber: pd.SerialNumber,
			IsUSB:        pd.IsUSB,
		}
		if pd.IsUSB {
			port.VIDPID = detection.FormatVIDPID(pd.VID, pd.PID)
		}
		ports = append(ports, port)
	}

	if len(ports) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return ports, nil
}

// includePort applies the blocklist and ignore list, then drops on-board
// ports that are not backed by hardware.
func (*detector) includePort(port *serialPort, opts *detection.Options) bool {
	if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
		return false
	}
	if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
		return false
	}
	// USB adapters are never opened here, some reset when DTR toggles
	if port.IsUSB {
		return true
	}
	return portUsableFn(port.Path)
}

// processPort handles a single port's detection logic
func (d *detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	device := d.createDeviceInfo(port, baseConfidence(port))
	if opts.Mode != detection.Safe {
		return device, true
	}

	if !probeDeviceFn(ctx, port.Path, opts) {
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	return device, true
}

// createDeviceInfo builds a DeviceInfo struct from port data
func (*detector) createDeviceInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// knownBridges are USB-serial chips commonly fitted to relay and power
// switch boards, plus the Arduino boards the switch firmware runs on.
var knownBridges = []string{
	"2341:0043", // Arduino Uno
	"2341:0001", // Arduino Uno (early)
	"2A03:0043", // Arduino Uno (arduino.org)
	"2341:0042", // Arduino Mega 2560
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
	"1A86:55D4", // QinHeng CH9102
}

var productKeywords = []string{"relay", "power", "switch", "pdu"}

func baseConfidence(port *serialPort) detection.Confidence {
	upperVIDPID := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if upperVIDPID == known {
			return detection.Medium
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	for _, keyword := range productKeywords {
		if strings.Contains(lowerProduct, keyword) {
			return detection.Medium
		}
	}
	return detection.Low
}

func portName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// probeDevice sends a single status request for port 0 and reports whether
// a well-formed reply arrived within opts.ProbeTimeout. Status requests do
// not switch anything, and there is no retry.
func probeDevice(ctx context.Context, path string, opts *detection.Options) bool {
	cfg := powerctl.DefaultConfig()
	cfg.Device = path
	if opts.BaudRate > 0 {
		cfg.BaudRate = opts.BaudRate
	}
	if opts.ProbeTimeout > 0 {
		cfg.ScanTimeout = opts.ProbeTimeout
		cfg.ReadTimeout = min(cfg.ReadTimeout, cfg.ScanTimeout)
	}

	session, err := powerctl.NewSession(cfg, powerctl.WithTransportFactory(uart.Factory()))
	if err != nil {
		powerctl.Debugf("probe %s: %v", path, err)
		return false
	}

	res, err := session.Execute(ctx, powerctl.Command{Port: 0, Operation: powerctl.OpStatus})
	if err != nil {
		powerctl.Debugf("probe %s: %v", path, err)
		return false
	}
	powerctl.Debugf("probe %s: %s", path, res.Outcome)
	return res.Outcome == powerctl.OutcomeStatus
}
