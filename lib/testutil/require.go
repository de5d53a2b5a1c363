// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Docforge packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls when coordinating with
// goroutines.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Docforge-internal dependencies.
package testutil

import (
	"fmt"
	"time"
)

// RequireReceive reads one value from ch within timeout, or fails the
// test.
//
//	result := testutil.RequireReceive(t, ch, 5*time.Second, "waiting for result")
func RequireReceive[T any](t interface {
	Helper()
	Fatalf(format string, args ...any)
}, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to be closed (or receive a value) within
// timeout, or fails the test. Use this for readiness channels that
// signal by closing.
//
//	testutil.RequireClosed(t, started, 5*time.Second, "upload started")
func RequireClosed(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

// formatMessage formats optional message arguments into a string.
// Accepts either a single string or a format string followed by args.
func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if len(msgAndArgs) == 1 {
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
