// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject a Fake with deterministic time
// control. Functions that would otherwise call time.Now, time.After,
// or time.Sleep accept a Clock instead, so retry backoff and timeout
// behavior can be tested without real waiting.
package clock

import "time"

// Clock provides the time operations the pipeline needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}
