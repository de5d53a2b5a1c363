// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"fmt"

	"github.com/docforge-foundation/docforge/lib/allowlist"
	"github.com/docforge-foundation/docforge/lib/schema"
	"github.com/docforge-foundation/docforge/lib/template"
)

// Violation reports a capability a template references or declares
// that is absent from its format's allow-list. A template with a
// violation is never executed.
type Violation struct {
	// Format is the template's output format.
	Format schema.Format

	// Capability is the offending capability name, or a description
	// of the dynamic construct for unresolvable references.
	Capability string

	// Detail is additional human-readable context (the offending
	// line for dynamic constructs).
	Detail string
}

func (v *Violation) Error() string {
	if v.Detail != "" {
		return fmt.Sprintf("capability violation for format %s: %s (%s)", v.Format, v.Capability, v.Detail)
	}
	return fmt.Sprintf("capability violation for format %s: %s not in allow-list", v.Format, v.Capability)
}

// Check scans the template body and verifies that every referenced
// and declared capability is permitted by the registry for the
// template's format. Dynamic constructs are violations regardless of
// the allow-list. The first violation found is returned; the body is
// never executed by this package.
func Check(definition *template.Definition, registry *allowlist.Registry) error {
	permitted, err := registry.CapabilitiesFor(definition.Format)
	if err != nil {
		return err
	}

	modules, dynamic := Scan(definition.Body)

	if len(dynamic) > 0 {
		return &Violation{
			Format:     definition.Format,
			Capability: "dynamic capability reference",
			Detail:     dynamic[0],
		}
	}

	for _, module := range modules {
		if !permitted.Contains(module) {
			return &Violation{Format: definition.Format, Capability: module}
		}
	}

	// Declared capabilities are re-checked here as well as at store
	// load time, so a definition constructed outside the store (tests,
	// future sources) gets the same policy.
	for _, declared := range definition.DeclaredCapabilities {
		if !permitted.Contains(declared) {
			return &Violation{Format: definition.Format, Capability: declared}
		}
	}

	return nil
}
