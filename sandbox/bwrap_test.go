// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"slices"
	"testing"
)

func TestBuildBwrapArgs(t *testing.T) {
	t.Parallel()

	profile, err := DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile: %v", err)
	}
	profile.ReadOnlyPaths = []string{"/usr/share/pandoc"}

	args, err := buildBwrapArgs(profile, "/tmp/work", false, []string{"python3", "/tmp/work/template.py"})
	if err != nil {
		t.Fatalf("buildBwrapArgs: %v", err)
	}

	for _, want := range []string{"--unshare-all", "--clearenv", "--die-with-parent"} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %s: %v", want, args)
		}
	}
	if slices.Contains(args, "--share-net") {
		t.Error("network must stay unshared without the network capability")
	}

	// The working directory is the only writable bind.
	bindIndex := slices.Index(args, "--bind")
	if bindIndex < 0 || args[bindIndex+1] != "/tmp/work" || args[bindIndex+2] != "/tmp/work" {
		t.Errorf("expected --bind /tmp/work /tmp/work, got %v", args)
	}
	if slices.Contains(args[bindIndex+3:], "--bind") {
		t.Error("exactly one writable bind expected")
	}

	// Library data path is bound read-only.
	found := false
	for i, arg := range args {
		if arg == "--ro-bind-try" && args[i+1] == "/usr/share/pandoc" {
			found = true
		}
	}
	if !found {
		t.Errorf("readonly path not mounted: %v", args)
	}

	// Command appears after the -- separator.
	sep := slices.Index(args, "--")
	if sep < 0 || !slices.Equal(args[sep+1:], []string{"python3", "/tmp/work/template.py"}) {
		t.Errorf("command not terminal after --: %v", args)
	}
}

func TestBuildBwrapArgsSharesNetworkWhenGranted(t *testing.T) {
	t.Parallel()

	profile, err := DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile: %v", err)
	}

	args, err := buildBwrapArgs(profile, "/tmp/work", true, []string{"python3"})
	if err != nil {
		t.Fatalf("buildBwrapArgs: %v", err)
	}

	unshare := slices.Index(args, "--unshare-all")
	share := slices.Index(args, "--share-net")
	if share < 0 {
		t.Fatalf("args missing --share-net: %v", args)
	}
	// --share-net must come after --unshare-all to take effect.
	if share < unshare {
		t.Errorf("--share-net must follow --unshare-all: %v", args)
	}
}

func TestBuildBwrapArgsRejectsRelativePaths(t *testing.T) {
	t.Parallel()

	profile, err := DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile: %v", err)
	}

	if _, err := buildBwrapArgs(profile, "work", false, []string{"python3"}); err == nil {
		t.Error("expected error for relative working directory")
	}

	profile.ReadOnlyPaths = []string{"share/pandoc"}
	if _, err := buildBwrapArgs(profile, "/tmp/work", false, []string{"python3"}); err == nil {
		t.Error("expected error for relative readonly path")
	}
}
