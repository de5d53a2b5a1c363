// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Isolation selects the filesystem isolation mechanism.
type Isolation string

const (
	// IsolationAuto uses bubblewrap when the host supports it and
	// falls back per the fallback policy otherwise.
	IsolationAuto Isolation = "auto"

	// IsolationBwrap requires bubblewrap; execution fails without it.
	IsolationBwrap Isolation = "bwrap"

	// IsolationNone runs the interpreter directly. The working
	// directory and resource limits still apply; only the mount
	// namespace isolation is absent. Development and tests only.
	IsolationNone Isolation = "none"
)

// Fallback policies for IsolationAuto when bwrap is unavailable.
const (
	FallbackSkip  = "skip"
	FallbackWarn  = "warn"
	FallbackError = "error"
)

// Limits are the per-request resource ceilings.
type Limits struct {
	// CPUTime is the RLIMIT_CPU ceiling for the interpreter.
	CPUTime time.Duration

	// WallTime is the hard wall-clock timeout for the whole run.
	WallTime time.Duration

	// MemoryBytes is the RLIMIT_AS address-space ceiling.
	MemoryBytes int64

	// MaxOutputBytes caps both the artifact file size (RLIMIT_FSIZE)
	// and the combined stdout/stderr capture.
	MaxOutputBytes int64
}

// Profile is the resolved executor configuration.
type Profile struct {
	// Interpreter is the command used to run template scripts.
	Interpreter string

	// Limits are the resource ceilings applied to every run.
	Limits Limits

	// ReadOnlyPaths are extra host paths bind-mounted read-only into
	// the sandbox (library data directories such as pandoc templates).
	ReadOnlyPaths []string

	// Isolation selects the isolation mechanism.
	Isolation Isolation

	// Fallback is the IsolationAuto policy when bwrap is missing.
	Fallback string
}

// profileConfig is the YAML file shape. Durations are strings ("30s")
// and sizes are bytes, matching how operators write them.
type profileConfig struct {
	Interpreter    string   `yaml:"interpreter"`
	CPUTime        string   `yaml:"cpu_time"`
	WallTime       string   `yaml:"wall_time"`
	MemoryBytes    int64    `yaml:"memory_bytes"`
	MaxOutputBytes int64    `yaml:"max_output_bytes"`
	ReadOnlyPaths  []string `yaml:"readonly_paths"`
	Isolation      string   `yaml:"isolation"`
	Fallback       string   `yaml:"fallback"`
}

// defaultProfileYAML is the built-in profile. Generous enough for a
// short single-purpose generation script, tight enough that a runaway
// template cannot monopolize the host.
const defaultProfileYAML = `
interpreter: python3
cpu_time: 10s
wall_time: 30s
memory_bytes: 536870912
max_output_bytes: 33554432
isolation: auto
fallback: skip
`

// DefaultProfile returns the built-in profile.
func DefaultProfile() (*Profile, error) {
	return ParseProfile([]byte(defaultProfileYAML))
}

// LoadProfile reads a profile YAML file. Unset fields keep the
// built-in defaults.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	merged := []byte(defaultProfileYAML + "\n" + string(data))
	profile, err := ParseProfile(merged)
	if err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	return profile, nil
}

// ParseProfile decodes and validates a profile document.
func ParseProfile(data []byte) (*Profile, error) {
	var raw profileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	profile := &Profile{
		Interpreter: raw.Interpreter,
		Limits: Limits{
			MemoryBytes:    raw.MemoryBytes,
			MaxOutputBytes: raw.MaxOutputBytes,
		},
		ReadOnlyPaths: raw.ReadOnlyPaths,
		Isolation:     Isolation(raw.Isolation),
		Fallback:      raw.Fallback,
	}

	var errs []error
	appendDuration := func(target *time.Duration, value, field string) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*target = d
	}
	appendDuration(&profile.Limits.CPUTime, raw.CPUTime, "cpu_time")
	appendDuration(&profile.Limits.WallTime, raw.WallTime, "wall_time")

	if profile.Interpreter == "" {
		errs = append(errs, fmt.Errorf("interpreter is required"))
	}
	if profile.Limits.WallTime <= 0 {
		errs = append(errs, fmt.Errorf("wall_time must be positive"))
	}
	if profile.Limits.MaxOutputBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_output_bytes must be positive"))
	}
	switch profile.Isolation {
	case IsolationAuto, IsolationBwrap, IsolationNone:
	default:
		errs = append(errs, fmt.Errorf("isolation must be one of: auto, bwrap, none"))
	}
	switch profile.Fallback {
	case FallbackSkip, FallbackWarn, FallbackError:
	default:
		errs = append(errs, fmt.Errorf("fallback must be one of: skip, warn, error"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return profile, nil
}
