//go:build !deadlock

// Package syncutil provides the mutex used to serialise device exchanges.
// By default it is a plain sync.Mutex. Build with -tags=deadlock to swap in
// github.com/sasha-s/go-deadlock, which reports a lock held past the detector
// timeout, e.g. a scan that never returns.
package syncutil

import (
	"sync"
	"time"
)

// DeadlockDetection reports whether the deadlock detector is compiled in.
const DeadlockDetection = false

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// SetHoldLimit is a no-op without the deadlock tag.
func SetHoldLimit(time.Duration) {}
