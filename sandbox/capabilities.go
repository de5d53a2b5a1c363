// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"os/exec"
	"strings"
)

// Capabilities describes what isolation features the host offers.
type Capabilities struct {
	// BwrapAvailable is true if bubblewrap is installed.
	BwrapAvailable bool

	// BwrapPath is the path to bwrap if available.
	BwrapPath string

	// UserNamespacesEnabled is true if unprivileged user namespaces
	// work, which bwrap needs when not setuid.
	UserNamespacesEnabled bool
}

// Detect probes the host for sandbox features.
func Detect() *Capabilities {
	caps := &Capabilities{}

	path, err := exec.LookPath("bwrap")
	if err != nil {
		return caps
	}
	caps.BwrapAvailable = true
	caps.BwrapPath = path
	caps.UserNamespacesEnabled = checkUserNamespaces(path)
	return caps
}

// CanIsolate returns true if bwrap-based isolation is possible.
func (c *Capabilities) CanIsolate() bool {
	return c.BwrapAvailable && c.UserNamespacesEnabled
}

// SkipReason returns a human-readable reason isolation is unavailable,
// or "" when it is available.
func (c *Capabilities) SkipReason() string {
	if !c.BwrapAvailable {
		return "bubblewrap not installed"
	}
	if !c.UserNamespacesEnabled {
		return "unprivileged user namespaces not enabled"
	}
	return ""
}

// checkUserNamespaces tests whether unprivileged user namespaces work
// by consulting the sysctl and then actually creating one with bwrap.
func checkUserNamespaces(bwrapPath string) bool {
	data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err == nil && strings.TrimSpace(string(data)) == "0" {
		return false
	}
	// File not existing usually means userns is allowed; confirm by
	// running true inside a fresh namespace.
	cmd := exec.Command(bwrapPath,
		"--unshare-user",
		"--ro-bind", "/", "/",
		"--",
		"true",
	)
	return cmd.Run() == nil
}
