//go:build deadlock

// Package syncutil provides the mutex used to serialise device exchanges.
// This file is compiled when building with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockDetection reports whether the deadlock detector is compiled in.
const DeadlockDetection = true

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// SetHoldLimit sets how long a lock may be waited on before the detector
// reports it. Callers size this from the longest exchange they allow.
func SetHoldLimit(d time.Duration) {
	if d > 0 {
		deadlock.Opts.DeadlockTimeout = d
	}
}
