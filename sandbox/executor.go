// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/docforge-foundation/docforge/lib/schema"
)

// scriptFileName is the rendered template's name inside the working
// directory.
const scriptFileName = "template.py"

// waitDelay is the grace period between cancelling a run and forcibly
// reaping the process if it ignores the kill.
const waitDelay = 5 * time.Second

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Profile supplies the interpreter, limits, and isolation policy.
	// Required.
	Profile *Profile

	// Capabilities overrides host feature detection. Nil runs Detect().
	Capabilities *Capabilities

	// Logger for execution events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Executor runs rendered template scripts. Safe for concurrent use;
// each Run operates only on its own Context.
type Executor struct {
	profile *Profile
	caps    *Capabilities
	isolate bool
	logger  *slog.Logger
}

// NewExecutor validates the isolation policy against host
// capabilities. IsolationBwrap and the "error" fallback fail here, at
// startup, rather than on the first request.
func NewExecutor(config ExecutorConfig) (*Executor, error) {
	if config.Profile == nil {
		return nil, fmt.Errorf("profile is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	caps := config.Capabilities
	if caps == nil {
		caps = Detect()
	}

	isolate := false
	switch config.Profile.Isolation {
	case IsolationBwrap:
		if !caps.CanIsolate() {
			return nil, fmt.Errorf("bwrap isolation required but unavailable: %s", caps.SkipReason())
		}
		isolate = true
	case IsolationAuto:
		if caps.CanIsolate() {
			isolate = true
			break
		}
		switch config.Profile.Fallback {
		case FallbackError:
			return nil, fmt.Errorf("sandbox isolation unavailable: %s", caps.SkipReason())
		case FallbackWarn:
			logger.Warn("running without filesystem isolation", "reason", caps.SkipReason())
		default:
			logger.Debug("running without filesystem isolation", "reason", caps.SkipReason())
		}
	case IsolationNone:
	}

	return &Executor{
		profile: config.Profile,
		caps:    caps,
		isolate: isolate,
		logger:  logger,
	}, nil
}

// Isolated reports whether runs are wrapped in bubblewrap.
func (e *Executor) Isolated() bool { return e.isolate }

// Run executes the rendered script inside the execution context and
// classifies the outcome. It is single-attempt: a failed run is never
// retried here, because the template may already have written partial
// output.
func (e *Executor) Run(ctx context.Context, script string, ec *Context) schema.ExecutionResult {
	scriptPath := filepath.Join(ec.WorkDir, scriptFileName)
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return failure(schema.StatusExecutionFailed, schema.ReasonRuntimeError,
			fmt.Sprintf("writing script: %v", err), nil, nil)
	}

	wallCtx, cancel := context.WithTimeout(ctx, ec.Limits.WallTime)
	defer cancel()

	stdout := newCappedBuffer(ec.Limits.MaxOutputBytes, cancel)
	stderr := newCappedBuffer(ec.Limits.MaxOutputBytes, cancel)

	cmd, err := e.command(wallCtx, scriptPath, ec)
	if err != nil {
		return failure(schema.StatusExecutionFailed, schema.ReasonRuntimeError, err.Error(), nil, nil)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return failure(schema.StatusExecutionFailed, schema.ReasonRuntimeError,
			fmt.Sprintf("starting interpreter: %v", err), stdout, stderr)
	}
	e.applyRlimits(cmd.Process.Pid, ec.Limits)

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	e.logger.Debug("template run finished",
		"request_id", ec.RequestID,
		"elapsed", elapsed,
		"isolated", e.isolate,
		"error", waitErr,
	)

	switch {
	case stdout.Overflowed() || stderr.Overflowed():
		return failure(schema.StatusExecutionFailed, schema.ReasonOutputTooLarge,
			fmt.Sprintf("template output exceeded %d bytes", ec.Limits.MaxOutputBytes), stdout, stderr)

	case errors.Is(wallCtx.Err(), context.DeadlineExceeded):
		return failure(schema.StatusTimeout, schema.ReasonTimeout,
			fmt.Sprintf("template exceeded wall-clock limit of %s", ec.Limits.WallTime), stdout, stderr)

	case waitErr != nil:
		reason := schema.ReasonRuntimeError
		detail := waitErr.Error()
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				switch status.Signal() {
				case syscall.SIGXFSZ:
					reason = schema.ReasonOutputTooLarge
					detail = fmt.Sprintf("artifact exceeded file size limit of %d bytes", ec.Limits.MaxOutputBytes)
				case syscall.SIGXCPU:
					detail = fmt.Sprintf("template exceeded CPU limit of %s", ec.Limits.CPUTime)
				}
			}
			if reason == schema.ReasonRuntimeError {
				if tail := lastLines(stderr.String(), 5); tail != "" {
					detail = tail
				}
			}
		}
		return failure(schema.StatusExecutionFailed, reason, detail, stdout, stderr)
	}

	return schema.ExecutionResult{
		Status:     schema.StatusOK,
		OutputPath: ec.OutputPath,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}
}

// command assembles the interpreter invocation, wrapped in bwrap when
// isolation is active. The host-side environment is always minimal:
// even when bwrap clears the environment internally, the wrapper
// process itself must not expose secrets via /proc/<pid>/environ.
func (e *Executor) command(ctx context.Context, scriptPath string, ec *Context) (*exec.Cmd, error) {
	base := []string{e.profile.Interpreter, scriptPath}

	var argv []string
	if e.isolate {
		bwrapArgs, err := buildBwrapArgs(e.profile, ec.WorkDir, ec.AllowNetwork, base)
		if err != nil {
			return nil, fmt.Errorf("building bwrap command: %w", err)
		}
		argv = append([]string{e.caps.BwrapPath}, bwrapArgs...)
	} else {
		argv = base
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = ec.WorkDir
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + ec.WorkDir,
		"TMPDIR=" + ec.WorkDir,
	}

	// New process group, killed as a unit on cancellation so the
	// interpreter cannot leave orphans behind.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = waitDelay

	return cmd, nil
}

// lastLines returns the trailing n non-empty lines of s, joined.
func lastLines(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func failure(status schema.Status, reason, detail string, stdout, stderr *cappedBuffer) schema.ExecutionResult {
	result := schema.ExecutionResult{
		Status:      status,
		ErrorDetail: reason + ": " + detail,
	}
	if stdout != nil {
		result.Stdout = stdout.String()
	}
	if stderr != nil {
		result.Stderr = stderr.String()
	}
	return result
}
