// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docforge-foundation/docforge/lib/schema"
)

// Context is the per-request execution scope: an exclusively owned
// working directory with the artifact output path inside it, plus the
// resource limits for the run. Exactly one Context exists per request,
// and it is destroyed when the request resolves regardless of outcome.
type Context struct {
	// RequestID ties the context to its request.
	RequestID string

	// WorkDir is the scoped temporary directory. No other request
	// ever sees it.
	WorkDir string

	// OutputPath is where the template must write its artifact.
	// Always inside WorkDir; never a user-supplied path.
	OutputPath string

	// FileName is the artifact's base name without extension, used
	// for the download link text.
	FileName string

	// Limits are the resource ceilings for this run.
	Limits Limits

	// AllowNetwork keeps the network namespace shared when running
	// under bwrap. Set by the pipeline when the request's format
	// grants the network capability; defaults to no network.
	AllowNetwork bool

	released bool
}

// NewContext creates the working directory under tempRoot and derives
// the output path for the requested format. The directory is owned by
// this request alone; mode 0700 keeps other users on a shared host out.
func NewContext(tempRoot, requestID string, format schema.Format, limits Limits) (*Context, error) {
	if err := os.MkdirAll(tempRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp root: %w", err)
	}
	workDir, err := os.MkdirTemp(tempRoot, "docforge-*")
	if err != nil {
		return nil, fmt.Errorf("creating working directory: %w", err)
	}
	if err := os.Chmod(workDir, 0o700); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("restricting working directory: %w", err)
	}

	fileName := string(format) + "-" + shortID(requestID)
	return &Context{
		RequestID:  requestID,
		WorkDir:    workDir,
		OutputPath: filepath.Join(workDir, fileName+"."+format.Extension()),
		FileName:   fileName,
		Limits:     limits,
	}, nil
}

// Release removes the working directory. Safe to call more than once;
// removal failure is logged, never fatal, because by the time Release
// runs the request already has its terminal result.
func (c *Context) Release(logger *slog.Logger) {
	if c.released {
		return
	}
	c.released = true
	if err := os.RemoveAll(c.WorkDir); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("failed to remove working directory",
			"request_id", c.RequestID,
			"work_dir", c.WorkDir,
			"error", err,
		)
	}
}

// shortID returns the first 8 characters of the request ID, enough to
// make artifact names unique per working directory while keeping the
// download link readable.
func shortID(requestID string) string {
	if len(requestID) > 8 {
		return requestID[:8]
	}
	return requestID
}
