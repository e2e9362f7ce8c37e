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
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Session log state
var (
	sessionLogMu     sync.Mutex
	sessionLogFile   *os.File
	sessionLogPath   string
	sessionLogWriter io.Writer
)

func sessionWriter() io.Writer {
	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()
	return sessionLogWriter
}

// InitSessionLog creates a new session log file in dir ("" = current
// directory). Returns the log file path for display to the user.
func InitSessionLog(dir string, cfg *Config) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("powerctl_%s.log", timestamp)
	if dir != "" {
		filename = filepath.Join(dir, filename)
	}

	logFile, err := os.Create(filename) //nolint:gosec // filename is constructed internally
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	sessionLogMu.Lock()
	sessionLogFile = logFile
	sessionLogPath = filename
	sessionLogWriter = logFile
	sessionLogMu.Unlock()

	writeSessionHeader(logFile, cfg)

	return filename, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()

	if sessionLogFile == nil {
		return nil
	}

	timestamp := time.Now().Format("15:04:05.000")
	_, _ = fmt.Fprintf(sessionLogWriter, "\n%s === Session ended ===\n", timestamp)

	err := sessionLogFile.Close()
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLogWriter = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()
	return sessionLogPath
}

// writeSessionHeader writes metadata about the run and the board settings.
func writeSessionHeader(writer io.Writer, cfg *Config) {
	_, _ = fmt.Fprint(writer, "=== powerctl Session Log ===\n")
	_, _ = fmt.Fprintf(writer, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(writer, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(writer, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(writer, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(writer, "Command Line: %s\n", strings.Join(os.Args, " "))
	if cfg != nil {
		_, _ = fmt.Fprintf(writer, "Device: %s @ %d baud\n", cfg.Device, cfg.BaudRate)
		_, _ = fmt.Fprintf(writer, "Ports: %d\n", cfg.NumPorts)
		_, _ = fmt.Fprintf(writer, "Scan Timeout: %v (read timeout %v)\n", cfg.ScanTimeout, cfg.ReadTimeout)
	}
	_, _ = fmt.Fprint(writer, "============================\n\n")
}
