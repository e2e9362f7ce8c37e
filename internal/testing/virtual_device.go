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

// Package testing provides test utilities including a wire-level simulator of
// the power switch board.
//
// VirtualDevice satisfies powerctl.Transport structurally. It accepts 4-byte
// command frames, applies them to its port table and, for status requests,
// queues a response of the form
//
//	[noise...] 0x32 [text...] 0x23 [trailer...]
//
// which the host reads back one byte at a time through PollByte. With Echo and
// ReplyDelay set it also mimics the firmware's acknowledgement line and the
// pause before it acts on a command.
package testing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-powerctl/internal/frame"
	"github.com/ZaparooProject/go-powerctl/internal/syncutil"
)

// ErrDeviceClosed is returned by any I/O on a closed VirtualDevice.
var ErrDeviceClosed = errors.New("virtual device closed")

// ResponseMode selects how the simulated board answers a status request.
type ResponseMode int

const (
	// RespondNormally sends a complete status payload.
	RespondNormally ResponseMode = iota
	// RespondNever stays silent.
	RespondNever
	// RespondStartOnly sends the start marker and part of the payload, then stalls.
	RespondStartOnly
)

// VirtualDevice simulates the remote board on the other end of the link.
type VirtualDevice struct {
	writeErr    error
	flushErr    error
	readErr     error
	statusText  *string
	ports       []bool
	reboots     []int
	written     []byte
	pending     []byte
	delayed     []byte
	frames      []frame.Frame
	readyAt     time.Time
	Noise       []byte // sent before the status start marker
	Trailer     []byte // sent after the status end marker
	ReplyDelay  time.Duration
	pollTimeout time.Duration
	readTimeout time.Duration
	mode        ResponseMode
	flushes     int
	polls       int
	mu          syncutil.Mutex
	Echo        bool // acknowledge each frame with "Cmd received: <Action>\r\n"
	readEarly   bool
	closed      bool
}

var actionNames = [...]string{"Off", "On", "Reboot", "Status"}

// NewVirtualDevice creates a board with numPorts ports, all switched off.
func NewVirtualDevice(numPorts int) *VirtualDevice {
	return &VirtualDevice{
		ports:       make([]bool, numPorts),
		reboots:     make([]int, numPorts),
		pollTimeout: time.Millisecond,
	}
}

// Write accepts whole command frames. Partial or malformed frames are
// recorded but otherwise ignored, the way the real firmware drops them.
func (d *VirtualDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDeviceClosed
	}
	if d.writeErr != nil {
		return 0, d.writeErr
	}

	d.written = append(d.written, p...)
	for off := 0; off+frame.Length <= len(p); off += frame.Length {
		f, err := frame.Decode(p[off : off+frame.Length])
		if err != nil {
			continue
		}
		d.frames = append(d.frames, f)
		d.apply(f)
	}
	return len(p), nil
}

// apply must be called with mu held.
func (d *VirtualDevice) apply(f frame.Frame) {
	if d.Echo && int(f.Code()) < len(actionNames) {
		d.pending = append(d.pending, "Cmd received: "+actionNames[f.Code()]+"\r\n"...)
	}

	port := int(f.Port())
	if port >= len(d.ports) {
		return
	}
	switch f.Code() {
	case frame.CodeOff:
		d.ports[port] = false
	case frame.CodeOn:
		d.ports[port] = true
	case frame.CodeReboot:
		d.ports[port] = true
		d.reboots[port]++
	case frame.CodeStatus:
		d.queueStatus(port)
	}
}

func (d *VirtualDevice) queueStatus(port int) {
	text := d.renderStatus(port)
	var resp []byte
	switch d.mode {
	case RespondNever:
		return
	case RespondStartOnly:
		resp = append(resp, d.Noise...)
		resp = append(resp, frame.StatusStartMagic)
		resp = append(resp, text[:len(text)/2]...)
	default:
		resp = append(resp, d.Noise...)
		resp = append(resp, frame.StatusStartMagic)
		resp = append(resp, text...)
		resp = append(resp, frame.StatusEndMagic)
		resp = append(resp, d.Trailer...)
	}

	if d.ReplyDelay > 0 {
		d.delayed = append(d.delayed, resp...)
		d.readyAt = time.Now().Add(d.ReplyDelay)
		return
	}
	d.pending = append(d.pending, resp...)
}

// renderStatus reports the port as "on" or "off", as the firmware does.
func (d *VirtualDevice) renderStatus(port int) string {
	if d.statusText != nil {
		return *d.statusText
	}
	if d.ports[port] {
		return "on"
	}
	return "off"
}

// Flush records that the host drained its output.
func (d *VirtualDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	if d.flushErr != nil {
		return d.flushErr
	}
	d.flushes++
	return nil
}

// PollByte hands out one pending byte, or waits the poll timeout and reports
// no data.
func (d *VirtualDevice) PollByte() (byte, bool, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, false, ErrDeviceClosed
	}
	if d.readErr != nil {
		err := d.readErr
		d.mu.Unlock()
		return 0, false, err
	}
	d.polls++
	if d.flushes == 0 {
		d.readEarly = true
	}
	if len(d.delayed) > 0 && !time.Now().Before(d.readyAt) {
		d.pending = append(d.pending, d.delayed...)
		d.delayed = nil
	}
	if len(d.pending) > 0 {
		b := d.pending[0]
		d.pending = d.pending[1:]
		d.mu.Unlock()
		return b, true, nil
	}
	wait := d.pollTimeout
	d.mu.Unlock()

	time.Sleep(wait)
	return 0, false, nil
}

// SetReadTimeout records the requested per-read timeout. The simulated poll
// wait is capped so tests stay fast.
func (d *VirtualDevice) SetReadTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.readTimeout = timeout
	d.pollTimeout = min(timeout, 5*time.Millisecond)
	return nil
}

// Close marks the device closed. Closing twice is an error.
func (d *VirtualDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDeviceClosed
	}
	d.closed = true
	return nil
}

// Reopen clears the closed flag so the same board can serve another exchange.
func (d *VirtualDevice) Reopen() {
	d.mu.Lock()
	d.closed = false
	d.flushes = 0
	d.mu.Unlock()
}

// Test helpers

// SetMode changes how status requests are answered.
func (d *VirtualDevice) SetMode(mode ResponseMode) {
	d.mu.Lock()
	d.mode = mode
	d.mu.Unlock()
}

// SetStatusText overrides the generated status payload.
func (d *VirtualDevice) SetStatusText(text string) {
	d.mu.Lock()
	d.statusText = &text
	d.mu.Unlock()
}

// SetWriteError injects an error for subsequent writes.
func (d *VirtualDevice) SetWriteError(err error) {
	d.mu.Lock()
	d.writeErr = err
	d.mu.Unlock()
}

// SetFlushError injects an error for subsequent flushes.
func (d *VirtualDevice) SetFlushError(err error) {
	d.mu.Lock()
	d.flushErr = err
	d.mu.Unlock()
}

// SetReadError injects an error for subsequent polls.
func (d *VirtualDevice) SetReadError(err error) {
	d.mu.Lock()
	d.readErr = err
	d.mu.Unlock()
}

// Written returns every byte the host has written.
func (d *VirtualDevice) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...)
}

// Frames returns the valid command frames received so far.
func (d *VirtualDevice) Frames() []frame.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]frame.Frame(nil), d.frames...)
}

// PortOn reports the current state of a port.
func (d *VirtualDevice) PortOn(port int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ports[port]
}

// Reboots returns how many reboot commands a port has received.
func (d *VirtualDevice) Reboots(port int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reboots[port]
}

// Pending returns the bytes the host has not read yet.
func (d *VirtualDevice) Pending() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]byte(nil), d.pending...)
	return append(out, d.delayed...)
}

// IsClosed reports whether Close has been called.
func (d *VirtualDevice) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ReadBeforeFlush reports whether the host polled before flushing.
func (d *VirtualDevice) ReadBeforeFlush() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readEarly
}

// ReadTimeout returns the last per-read timeout requested by the host.
func (d *VirtualDevice) ReadTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readTimeout
}

// Polls returns the number of PollByte calls that reached the device.
func (d *VirtualDevice) Polls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// String summarises the port table, e.g. "[ON OFF OFF OFF]".
func (d *VirtualDevice) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	states := make([]string, len(d.ports))
	for i, on := range d.ports {
		if on {
			states[i] = "ON"
		} else {
			states[i] = "OFF"
		}
	}
	return fmt.Sprintf("[%s]", strings.Join(states, " "))
}
