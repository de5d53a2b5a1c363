// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox executes approved template scripts in isolated,
// resource-limited interpreter processes.
//
// The central type is [Executor], which runs a rendered script inside
// a [Context] — a per-request, exclusively owned working directory
// that is destroyed when the request resolves, success or failure.
// Resource ceilings come from a [Profile]: wall-clock timeout enforced
// by context cancellation with a process-group kill, CPU time, address
// space, and file size enforced as rlimits on the interpreter process,
// and stdout/stderr capture capped at the profile's output byte limit.
//
// Filesystem isolation is provided by bubblewrap when available: the
// interpreter sees read-only system mounts, the working directory
// read-write, any profile-declared read-only library data paths, and
// no network. [Detect] probes the host for bwrap and unprivileged user
// namespaces; when they are missing the executor follows the
// configured fallback policy (skip, warn, or error), so development
// machines can run unsandboxed while production refuses to.
//
// The executor never retries: templates may have non-idempotent side
// effects, so a failed run resolves to a terminal ExecutionResult and
// nothing else. A crash inside the template is captured and
// classified; it never propagates as a crash of the host process.
package sandbox
