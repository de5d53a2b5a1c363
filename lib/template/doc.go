// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package template holds one generation template per output format
// and resolves them for the pipeline.
//
// Templates are data, not trusted code: loading a template never
// executes it. Each definition is a parameterized Python body that
// reads two injected variables — output_path and intent — writes its
// artifact to exactly output_path, and raises on failure. The body's
// own success claim is not trusted; the artifact verifier confirms the
// output independently.
//
// The store loads built-in defaults first, then an optional operator
// manifest file. At load time every definition's declared capabilities
// are cross-checked against the allow-list registry, so a defective
// template fails the process at startup rather than per request. In
// production mode the store is frozen after startup; development mode
// re-reads the manifest file on each Resolve so template authors can
// iterate without restarting.
package template
