// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify independently confirms a generated artifact before
// upload. The executed template's own success claim is never trusted:
// the verifier checks that the file exists at the declared output
// path, is non-empty, and matches the container signature for the
// requested format — a readable zip archive for the Office formats,
// parseable UTF-8 markdown for markdown.
//
// Verification failures are terminal for the request. A template that
// produced no output is a template defect, not a transient fault, so
// the pipeline never re-runs on them.
package verify

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"

	"github.com/docforge-foundation/docforge/lib/schema"
)

// Reason classifies a verification failure.
type Reason string

const (
	ReasonMissingFile       Reason = "missing_file"
	ReasonEmptyFile         Reason = "empty_file"
	ReasonSignatureMismatch Reason = "signature_mismatch"
)

// Error is a verification failure with its sub-reason.
type Error struct {
	Reason Reason
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("verification failed (%s): %s", e.Reason, e.Detail)
}

// Artifact describes a verified file.
type Artifact struct {
	// Path is the verified file location.
	Path string

	// Size is the file size in bytes. Always > 0.
	Size int64

	// ContentHash is the hex-encoded file-domain BLAKE3 hash of the
	// artifact bytes.
	ContentHash string
}

// zipMagic is the local-file-header signature every Office Open XML
// container starts with.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// Verify checks the artifact at path against the format's container
// signature and returns its size and content hash. Every failure is a
// typed *Error carrying the specific sub-reason.
func Verify(path string, format schema.Format) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Reason: ReasonMissingFile, Detail: fmt.Sprintf("no artifact at %s", path)}
	}
	if info.Size() == 0 {
		return nil, &Error{Reason: ReasonEmptyFile, Detail: fmt.Sprintf("artifact at %s is empty", path)}
	}

	switch format.Container() {
	case schema.ContainerZip:
		if err := verifyZip(path); err != nil {
			return nil, err
		}
	case schema.ContainerText:
		if err := verifyMarkdown(path); err != nil {
			return nil, err
		}
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("hashing artifact: %w", err)
	}

	return &Artifact{Path: path, Size: info.Size(), ContentHash: hash}, nil
}

// verifyZip checks the leading magic bytes and then confirms the
// archive actually opens: a file that merely starts with "PK" but has
// a corrupt central directory is still a defective artifact.
func verifyZip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &Error{Reason: ReasonMissingFile, Detail: err.Error()}
	}
	defer f.Close()

	// ReadFull so a file shorter than the magic is classified as a
	// signature mismatch rather than depending on partial-read bytes.
	header := make([]byte, len(zipMagic))
	if _, err := io.ReadFull(f, header); err != nil || !bytes.Equal(header, zipMagic) {
		return &Error{
			Reason: ReasonSignatureMismatch,
			Detail: fmt.Sprintf("expected zip container signature, got % x", header),
		}
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return &Error{
			Reason: ReasonSignatureMismatch,
			Detail: fmt.Sprintf("zip container does not open: %v", err),
		}
	}
	defer reader.Close()

	if len(reader.File) == 0 {
		return &Error{Reason: ReasonSignatureMismatch, Detail: "zip container has no entries"}
	}
	return nil
}

// verifyMarkdown requires valid UTF-8 with no NUL bytes and a
// goldmark parse that yields at least one block element, rejecting
// binary junk written under a .md extension.
func verifyMarkdown(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Reason: ReasonMissingFile, Detail: err.Error()}
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return &Error{Reason: ReasonSignatureMismatch, Detail: "artifact is not valid UTF-8 text"}
	}

	document := goldmark.New().Parser().Parse(text.NewReader(data))
	if !document.HasChildren() {
		return &Error{Reason: ReasonSignatureMismatch, Detail: "markdown parse produced no content"}
	}
	return nil
}
