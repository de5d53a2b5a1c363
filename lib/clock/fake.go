// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests. After and Sleep do not
// block: each call advances the fake's notion of now by the requested
// duration and fires immediately, while recording the duration so
// tests can assert on backoff schedules. This keeps retry tests
// instant and deterministic without goroutine coordination.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

// NewFake creates a Fake starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After records d, advances the fake time by d, and returns a channel
// that already holds the new time.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	if d > 0 {
		f.waits = append(f.waits, d)
		f.now = f.now.Add(d)
	}
	now := f.now
	f.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Sleep advances the fake time by d and returns immediately.
func (f *Fake) Sleep(d time.Duration) {
	<-f.After(d)
}

// Advance moves the fake time forward without recording a wait.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Waits returns the durations passed to After and Sleep, in order.
func (f *Fake) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.waits))
	copy(out, f.waits)
	return out
}
