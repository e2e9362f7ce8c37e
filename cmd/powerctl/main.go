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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-powerctl"
	"github.com/ZaparooProject/go-powerctl/detection"
	_ "github.com/ZaparooProject/go-powerctl/detection/uart"
	"github.com/ZaparooProject/go-powerctl/internal/syncutil"
	"github.com/ZaparooProject/go-powerctl/transport/uart"
)

const autoDevice = "auto"

const usageHeader = `Usage: powerctl [flags] <off|on|reboot|status> <port>

Sends one command to a serial power switch board. "status" prints the port
state reported by the board, or "device not responding" if no reply arrives
before the scan timeout.

Flags:
`

// options holds the raw flag values.
type options struct {
	configPath string
	device     string
	logDir     string
	baud       int
	ports      int
	timeout    time.Duration
	verbose    bool
	debug      bool
	list       bool
}

// app carries the collaborators the CLI talks to, so tests can swap them.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	factory powerctl.TransportFactory
	detect  func(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error)
}

func newApp() *app {
	return &app{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		factory: uart.Factory(),
		detect:  detection.DetectAll,
	}
}

func newFlagSet(opts *options, output io.Writer) *flag.FlagSet {
	def := powerctl.DefaultConfig()
	fs := flag.NewFlagSet("powerctl", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "TOML config file")
	fs.StringVar(&opts.device, "device", def.Device, `serial device path, or "auto" to use the best port that answers a status probe`)
	fs.IntVar(&opts.baud, "baud", def.BaudRate, "baud rate")
	fs.IntVar(&opts.ports, "ports", def.NumPorts, "number of switchable ports on the board")
	fs.DurationVar(&opts.timeout, "timeout", def.ScanTimeout, "how long to wait for a status reply")
	fs.BoolVar(&opts.verbose, "v", false, "print the transmitted frame")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug output")
	fs.StringVar(&opts.logDir, "log", "", "write a session log file into this directory")
	fs.BoolVar(&opts.list, "list", false, "list candidate serial ports and exit")
	fs.Usage = func() {
		_, _ = fmt.Fprint(output, usageHeader)
		fs.PrintDefaults()
	}
	return fs
}

// buildConfig layers the config file (if any) over the defaults, then any
// flag given explicitly on the command line over that.
func buildConfig(fs *flag.FlagSet, opts *options) (*powerctl.Config, error) {
	cfg := powerctl.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := powerctl.LoadConfigFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = opts.device
		case "baud":
			cfg.BaudRate = opts.baud
		case "ports":
			cfg.NumPorts = opts.ports
		case "timeout":
			cfg.ScanTimeout = opts.timeout
			cfg.ReadTimeout = min(cfg.ReadTimeout, cfg.ScanTimeout)
		case "v":
			cfg.Verbose = opts.verbose
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) run(ctx context.Context, args []string) int {
	var opts options
	fs := newFlagSet(&opts, a.stderr)
	if err := fs.Parse(args); err != nil {
		// flag has already printed the problem and the usage text
		return 0
	}

	if opts.debug {
		powerctl.SetDebugEnabled(true)
	}

	cfg, err := buildConfig(fs, &opts)
	if err != nil {
		_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}

	if opts.list {
		return a.listDevices(ctx, cfg)
	}

	if fs.NArg() != 2 {
		fs.Usage()
		return 0
	}

	if cfg.Device == autoDevice {
		path, detectErr := a.resolveDevice(ctx, cfg)
		if detectErr != nil {
			_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", detectErr)
			return 1
		}
		cfg.Device = path
	}

	if opts.logDir != "" {
		path, logErr := powerctl.InitSessionLog(opts.logDir, cfg)
		if logErr != nil {
			_, _ = fmt.Fprintf(a.stderr, "Warning: %v\n", logErr)
		} else {
			defer func() { _ = powerctl.CloseSessionLog() }()
			_, _ = fmt.Fprintf(a.stderr, "Session log: %s\n", path)
		}
	}

	// Under -tags deadlock, flag a lock held longer than any exchange can take
	syncutil.SetHoldLimit(cfg.ScanTimeout + 10*time.Second)

	sessionOpts := []powerctl.Option{powerctl.WithTransportFactory(a.factory)}
	if cfg.Verbose {
		// Echo as soon as the frame is out, even if reading the reply fails later
		sessionOpts = append(sessionOpts, powerctl.WithSentHook(func(res *powerctl.Result) {
			_, _ = fmt.Fprintf(a.stdout, "Sent: %s\n", res.Frame)
		}))
	}

	session, err := powerctl.NewSession(cfg, sessionOpts...)
	if err != nil {
		_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}

	res, err := session.Run(ctx, fs.Arg(0), fs.Arg(1))
	if powerctl.IsUsage(err) {
		_, _ = fmt.Fprintf(a.stderr, "Error: %v\n\n", err)
		fs.Usage()
		return 0
	}
	if err != nil {
		_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return a.report(res)
}

// report prints the result of a completed exchange. Every outcome that
// reaches here exits 0.
func (a *app) report(res *powerctl.Result) int {
	switch res.Outcome {
	case powerctl.OutcomeStatus:
		_, _ = fmt.Fprintln(a.stdout, res.Status)
	case powerctl.OutcomeNoResponse:
		_, _ = fmt.Fprintln(a.stdout, powerctl.ErrScanTimeout.Error())
	case powerctl.OutcomeAborted:
		powerctl.Debugf("%s aborted after %v", res.Command, res.Elapsed)
	case powerctl.OutcomeSent:
	}
	return 0
}

func detectionOptions(cfg *powerctl.Config) *detection.Options {
	opts := detection.DefaultOptions()
	opts.BaudRate = cfg.BaudRate
	return &opts
}

func (a *app) listDevices(ctx context.Context, cfg *powerctl.Config) int {
	devices, err := a.detect(ctx, detectionOptions(cfg))
	if errors.Is(err, detection.ErrNoDevicesFound) {
		_, _ = fmt.Fprintln(a.stdout, "No serial ports found")
		return 0
	}
	if err != nil {
		_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	for _, d := range devices {
		_, _ = fmt.Fprintln(a.stdout, d.String())
	}
	return 0
}

// resolveDevice picks the highest-confidence port that answered a status
// probe. Power commands never go to a port that has not replied.
func (a *app) resolveDevice(ctx context.Context, cfg *powerctl.Config) (string, error) {
	opts := detectionOptions(cfg)
	opts.Mode = detection.Safe
	devices, err := a.detect(ctx, opts)
	if err != nil {
		return "", powerctl.NewTransportUnavailableError(autoDevice, err)
	}
	if len(devices) == 0 {
		return "", powerctl.NewTransportUnavailableError(autoDevice, detection.ErrNoDevicesFound)
	}
	powerctl.Debugf("auto-detected %s", devices[0])
	return devices[0].Path, nil
}

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Setup signal handling; an interrupted exchange releases the port and
	// exits cleanly
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return newApp().run(ctx, os.Args[1:])
}
