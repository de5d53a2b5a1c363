// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline drives a generation request through its full
// lifecycle: admission, template resolution, capability enforcement,
// sandboxed execution, artifact verification, upload, and the terminal
// result. State only moves forward; every failure branch is terminal
// and carries a stable machine-readable error kind.
//
// The pipeline owns the request's working directory for its whole
// lifetime and releases it on every path, success or failure, so a
// crashed template or a rejected upload never leaks scratch space.
package pipeline
