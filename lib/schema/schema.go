// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"time"
)

// GenerationRequest describes one document generation request. It is
// immutable once accepted: the intake layer assigns RequestID and
// AcceptedAt, and no pipeline stage mutates it afterwards.
type GenerationRequest struct {
	// Format is the requested output format.
	Format Format `json:"format"`

	// Intent is the free-form natural-language description of the
	// desired document. Opaque to the pipeline; it is passed through
	// to the template body verbatim.
	Intent string `json:"intent"`

	// RequestID is an opaque unique token assigned at intake.
	RequestID string `json:"request_id"`

	// AcceptedAt records when the request was admitted. It exists for
	// observability ordering only; no cross-request guarantee is
	// derived from it.
	AcceptedAt time.Time `json:"accepted_at"`
}

// Status is the terminal outcome classification for a request.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusCapabilityDenied   Status = "capability_denied"
	StatusExecutionFailed    Status = "execution_failed"
	StatusTimeout            Status = "timeout"
	StatusVerificationFailed Status = "verification_failed"
	StatusUploadFailed       Status = "upload_failed"
)

// Execution failure sub-reasons, carried in ExecutionResult.ErrorDetail
// prefixes and journal records.
const (
	ReasonRuntimeError   = "runtime_error"
	ReasonTimeout        = "timeout"
	ReasonOutputTooLarge = "output_too_large"
)

// ExecutionResult captures the outcome of running a template body in
// the sandbox, including partial output when the run was cut short.
type ExecutionResult struct {
	// Status classifies the outcome.
	Status Status `json:"status"`

	// OutputPath is the artifact location inside the working
	// directory. Set only when Status is ok.
	OutputPath string `json:"output_path,omitempty"`

	// Stdout and Stderr are the captured interpreter streams,
	// truncated at the executor's capture cap. Populated on failure
	// as well, so a timed-out run still surfaces partial output.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// ErrorDetail is the human-readable failure description. Empty
	// when Status is ok.
	ErrorDetail string `json:"error_detail,omitempty"`
}

// UploadReceipt is the external content store's acknowledgment of a
// stored artifact. It is produced only from a verified artifact and is
// immutable once issued.
type UploadReceipt struct {
	// ContentID is the store's stable identifier for the file.
	ContentID string `json:"content_id"`

	// DownloadURL is the deterministic download path derived from
	// ContentID ("/api/v1/files/{id}/content").
	DownloadURL string `json:"download_url"`

	// UploadedAt is when the store durably accepted the artifact.
	UploadedAt time.Time `json:"uploaded_at"`

	// ContentHash is the hex-encoded file-domain BLAKE3 hash of the
	// artifact bytes, computed during verification.
	ContentHash string `json:"content_hash,omitempty"`
}

// Result is the descriptor returned to the invoking collaborator: a
// markdown download link on success, or a stable machine-readable
// error kind plus a human-readable reason on failure.
type Result struct {
	// RequestID echoes the request's opaque token.
	RequestID string `json:"request_id"`

	// Status is the terminal outcome.
	Status Status `json:"status"`

	// DownloadURL is set only when Status is ok.
	DownloadURL string `json:"download_url,omitempty"`

	// Message is the markdown-formatted download link on success
	// ("[Download name.ext](url)").
	Message string `json:"message,omitempty"`

	// ErrorKind is the machine-readable failure kind (a Status value
	// or a sub-reason such as "output_too_large").
	ErrorKind string `json:"error_kind,omitempty"`

	// ErrorDetail is the human-readable failure reason.
	ErrorDetail string `json:"error_detail,omitempty"`

	// Receipt is the upload receipt backing DownloadURL. Present only
	// when Status is ok.
	Receipt *UploadReceipt `json:"receipt,omitempty"`
}

// DownloadLink formats the markdown hyperlink the collaborator relays
// to the end user.
func DownloadLink(fileName string, format Format, downloadURL string) string {
	return fmt.Sprintf("[Download %s.%s](%s)", fileName, format.Extension(), downloadURL)
}
