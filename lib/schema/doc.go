// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the shared data model for the document
// generation pipeline: output formats, generation requests, execution
// results, upload receipts, and the result descriptor returned to the
// invoking collaborator.
//
// Types here are plain data. They carry no behavior beyond parsing,
// validation, and formatting; all pipeline logic lives in the packages
// that consume them. Everything in this package is immutable once
// constructed — a GenerationRequest never changes after intake, and an
// UploadReceipt is issued exactly once per successful request.
package schema
