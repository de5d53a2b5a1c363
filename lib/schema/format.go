// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
)

// Format identifies one of the supported document output formats.
type Format string

const (
	// FormatSpreadsheet produces an .xlsx workbook.
	FormatSpreadsheet Format = "spreadsheet"

	// FormatDocument produces a .docx word-processor document.
	FormatDocument Format = "document"

	// FormatPresentation produces a .pptx presentation.
	FormatPresentation Format = "presentation"

	// FormatMarkdown produces a plain-text .md file.
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned when a format string is not one of the
// four supported values.
var ErrUnknownFormat = errors.New("unknown format")

// Formats lists all supported formats in a stable order. Used for
// registry iteration and help text.
func Formats() []Format {
	return []Format{FormatSpreadsheet, FormatDocument, FormatPresentation, FormatMarkdown}
}

// ParseFormat validates a format string from an external request.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatSpreadsheet, FormatDocument, FormatPresentation, FormatMarkdown:
		return Format(s), nil
	}
	return "", fmt.Errorf("%w: %q (expected spreadsheet, document, presentation, or markdown)", ErrUnknownFormat, s)
}

// Extension returns the file extension for the format, without the
// leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatSpreadsheet:
		return "xlsx"
	case FormatDocument:
		return "docx"
	case FormatPresentation:
		return "pptx"
	case FormatMarkdown:
		return "md"
	}
	return ""
}

// Container identifies the on-disk container structure a format's
// artifacts must have. The verifier dispatches on this.
type Container string

const (
	// ContainerZip covers the Office Open XML formats (xlsx, docx,
	// pptx), which are all zip archives.
	ContainerZip Container = "zip"

	// ContainerText covers plain-text formats (markdown).
	ContainerText Container = "text"
)

// Container returns the container kind for the format.
func (f Format) Container() Container {
	if f == FormatMarkdown {
		return ContainerText
	}
	return ContainerZip
}
