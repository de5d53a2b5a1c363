// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/docforge-foundation/docforge/lib/schema"
)

// requirePython skips the test when no Python interpreter is on PATH.
// Mirrors the capability-skip convention used for bwrap-dependent
// tests: missing host features skip, never fail.
func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
}

func testExecutor(t *testing.T, limits Limits) *Executor {
	t.Helper()
	profile, err := DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile: %v", err)
	}
	profile.Isolation = IsolationNone
	profile.Limits = limits

	executor, err := NewExecutor(ExecutorConfig{Profile: profile})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return executor
}

func testLimits() Limits {
	return Limits{
		CPUTime:        5 * time.Second,
		WallTime:       10 * time.Second,
		MemoryBytes:    512 << 20,
		MaxOutputBytes: 1 << 20,
	}
}

func TestRunWritesArtifact(t *testing.T) {
	t.Parallel()
	requirePython(t)

	executor := testExecutor(t, testLimits())
	ec, err := NewContext(t.TempDir(), "req-ok", schema.FormatMarkdown, testLimits())
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ec.Release(nil)

	script := fmt.Sprintf("with open(%q, \"w\") as handle:\n    handle.write(\"hello artifact\")\n", ec.OutputPath)
	result := executor.Run(context.Background(), script, ec)

	if result.Status != schema.StatusOK {
		t.Fatalf("status = %s, detail = %s, stderr = %s", result.Status, result.ErrorDetail, result.Stderr)
	}
	data, err := os.ReadFile(ec.OutputPath)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(data) != "hello artifact" {
		t.Errorf("artifact content = %q", data)
	}
}

func TestRunClassifiesRuntimeError(t *testing.T) {
	t.Parallel()
	requirePython(t)

	executor := testExecutor(t, testLimits())
	ec, err := NewContext(t.TempDir(), "req-err", schema.FormatMarkdown, testLimits())
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ec.Release(nil)

	result := executor.Run(context.Background(), "raise ValueError(\"boom\")\n", ec)

	if result.Status != schema.StatusExecutionFailed {
		t.Fatalf("status = %s, want execution_failed", result.Status)
	}
	if !strings.Contains(result.ErrorDetail, "boom") {
		t.Errorf("error detail should carry the template's message, got %q", result.ErrorDetail)
	}
}

func TestRunEnforcesWallClock(t *testing.T) {
	t.Parallel()
	requirePython(t)

	limits := testLimits()
	limits.WallTime = 500 * time.Millisecond
	executor := testExecutor(t, limits)
	ec, err := NewContext(t.TempDir(), "req-slow", schema.FormatMarkdown, limits)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ec.Release(nil)

	start := time.Now()
	result := executor.Run(context.Background(), "import time\ntime.sleep(60)\n", ec)
	elapsed := time.Since(start)

	if result.Status != schema.StatusTimeout {
		t.Fatalf("status = %s, want timeout (detail: %s)", result.Status, result.ErrorDetail)
	}
	// Resolution must come within the limit plus a small grace bound.
	if elapsed > limits.WallTime+waitDelay+2*time.Second {
		t.Errorf("timeout took %v to resolve", elapsed)
	}
}

func TestRunCapsStreamOutput(t *testing.T) {
	t.Parallel()
	requirePython(t)

	limits := testLimits()
	limits.MaxOutputBytes = 4096
	executor := testExecutor(t, limits)
	ec, err := NewContext(t.TempDir(), "req-chatty", schema.FormatMarkdown, limits)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ec.Release(nil)

	result := executor.Run(context.Background(), "print(\"x\" * 1000000)\n", ec)

	if result.Status != schema.StatusExecutionFailed {
		t.Fatalf("status = %s, want execution_failed", result.Status)
	}
	if !strings.Contains(result.ErrorDetail, schema.ReasonOutputTooLarge) {
		t.Errorf("error detail should carry output_too_large, got %q", result.ErrorDetail)
	}
}

func TestRunCapturesPartialOutputOnFailure(t *testing.T) {
	t.Parallel()
	requirePython(t)

	executor := testExecutor(t, testLimits())
	ec, err := NewContext(t.TempDir(), "req-partial", schema.FormatMarkdown, testLimits())
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ec.Release(nil)

	result := executor.Run(context.Background(), "print(\"progress marker\")\nraise RuntimeError(\"late failure\")\n", ec)

	if result.Status != schema.StatusExecutionFailed {
		t.Fatalf("status = %s", result.Status)
	}
	if !strings.Contains(result.Stdout, "progress marker") {
		t.Errorf("stdout should retain pre-failure output, got %q", result.Stdout)
	}
}

func TestNewExecutorRequiresBwrapWhenConfigured(t *testing.T) {
	t.Parallel()

	profile, err := DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile: %v", err)
	}
	profile.Isolation = IsolationBwrap

	_, err = NewExecutor(ExecutorConfig{
		Profile:      profile,
		Capabilities: &Capabilities{},
	})
	if err == nil {
		t.Error("expected error when bwrap is required but unavailable")
	}
}

func TestNewExecutorAutoFallbackError(t *testing.T) {
	t.Parallel()

	profile, err := DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile: %v", err)
	}
	profile.Isolation = IsolationAuto
	profile.Fallback = FallbackError

	_, err = NewExecutor(ExecutorConfig{
		Profile:      profile,
		Capabilities: &Capabilities{},
	})
	if err == nil {
		t.Error("expected error for fallback=error without isolation support")
	}
}

func TestNewExecutorAutoFallbackSkip(t *testing.T) {
	t.Parallel()

	profile, err := DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile: %v", err)
	}
	profile.Isolation = IsolationAuto
	profile.Fallback = FallbackSkip

	executor, err := NewExecutor(ExecutorConfig{
		Profile:      profile,
		Capabilities: &Capabilities{},
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if executor.Isolated() {
		t.Error("executor should not report isolation without bwrap")
	}
}
