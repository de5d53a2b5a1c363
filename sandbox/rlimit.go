// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"golang.org/x/sys/unix"
)

// applyRlimits sets the CPU, address-space, and file-size ceilings on
// the just-started process. Children inherit rlimits at fork, so the
// limits cover the interpreter even when it runs under the bwrap
// wrapper. Failures are logged and otherwise ignored: the wall-clock
// timeout is the backstop, and a run that cannot be limited is still
// bounded in time.
func (e *Executor) applyRlimits(pid int, limits Limits) {
	set := func(resource int, value uint64, name string) {
		rlimit := &unix.Rlimit{Cur: value, Max: value}
		if err := unix.Prlimit(pid, resource, rlimit, nil); err != nil {
			e.logger.Warn("failed to set rlimit", "resource", name, "error", err)
		}
	}

	if limits.CPUTime > 0 {
		seconds := uint64(limits.CPUTime.Seconds())
		if seconds == 0 {
			seconds = 1
		}
		set(unix.RLIMIT_CPU, seconds, "cpu")
	}
	if limits.MemoryBytes > 0 {
		set(unix.RLIMIT_AS, uint64(limits.MemoryBytes), "address-space")
	}
	if limits.MaxOutputBytes > 0 {
		set(unix.RLIMIT_FSIZE, uint64(limits.MaxOutputBytes), "file-size")
	}
}
