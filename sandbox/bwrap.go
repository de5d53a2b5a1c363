// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"path/filepath"
)

// systemPaths are bind-mounted read-only so the interpreter and its
// libraries resolve. Missing paths are skipped (--ro-bind-try), which
// keeps the argument list portable across distributions.
var systemPaths = []string{"/usr", "/bin", "/sbin", "/lib", "/lib64", "/etc"}

// buildBwrapArgs translates a profile and working directory into
// bubblewrap arguments. Every mount is explicit: the sandbox sees the
// read-only system paths, the profile's read-only library data paths,
// and the working directory read-write — nothing else. All namespaces
// are unshared; the network namespace is shared back in only when the
// request's format grants the network capability.
func buildBwrapArgs(profile *Profile, workDir string, allowNetwork bool, command []string) ([]string, error) {
	if !filepath.IsAbs(workDir) {
		return nil, fmt.Errorf("working directory must be absolute, got %q", workDir)
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("command is required")
	}

	args := []string{
		"--unshare-all",
	}
	if allowNetwork {
		args = append(args, "--share-net")
	}
	args = append(args,
		"--die-with-parent",
		"--new-session",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
	)

	for _, path := range systemPaths {
		args = append(args, "--ro-bind-try", path, path)
	}

	for _, path := range profile.ReadOnlyPaths {
		if !filepath.IsAbs(path) {
			return nil, fmt.Errorf("readonly path must be absolute, got %q", path)
		}
		args = append(args, "--ro-bind-try", path, path)
	}

	// The working directory is the only writable host mount.
	args = append(args, "--bind", workDir, workDir)

	args = append(args,
		"--clearenv",
		"--setenv", "PATH", "/usr/local/bin:/usr/bin:/bin",
		"--setenv", "HOME", workDir,
		"--setenv", "TMPDIR", workDir,
		"--chdir", workDir,
		"--",
	)
	args = append(args, command...)
	return args, nil
}
