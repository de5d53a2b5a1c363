// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package allowlist holds the authoritative per-format capability
// policy: the set of external capabilities (Python module imports) a
// template body may reference for each output format.
//
// The registry is loaded once at process start — built-in defaults
// first, optionally overridden by an operator policy file — and is
// read-only afterwards. Centralizing the policy here lets every
// template be checked against one table instead of ad hoc
// per-template annotations.
//
// The policy file format is JSONC (JSON with comments), so operators
// can annotate why a capability is permitted.
package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/docforge-foundation/docforge/lib/schema"
)

// CapabilitySet is the set of capability names permitted for one
// format. Keys are top-level Python module names plus the special
// "network" capability, which keeps the sandbox's network namespace
// shared instead of unshared.
type CapabilitySet map[string]bool

// Contains reports whether the capability is in the set.
func (s CapabilitySet) Contains(name string) bool { return s[name] }

// Names returns the capability names in sorted order.
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry maps each output format to its permitted capabilities.
// Immutable after construction.
type Registry struct {
	byFormat map[schema.Format]CapabilitySet
}

// defaultRegistryJSONC is the built-in policy. The per-format module
// lists mirror the "Allowed packages" sections of the generation
// templates; "os" is included because every template probes its output
// path with os.path.exists before claiming success.
const defaultRegistryJSONC = `{
  // Capabilities are top-level Python module names. A template may
  // import only modules listed for its format. The special name
  // "network" keeps network access available inside the sandbox;
  // no format grants it.
  "spreadsheet":  ["openpyxl", "numpy", "os"],
  "document":     ["docx", "numpy", "os"],
  "presentation": ["pptx", "numpy", "os"],
  "markdown":     ["pypandoc", "numpy", "os"]
}`

// LoadDefaults builds the registry from the built-in policy.
func LoadDefaults() (*Registry, error) {
	registry, err := Parse([]byte(defaultRegistryJSONC))
	if err != nil {
		return nil, fmt.Errorf("parsing built-in allow-list: %w", err)
	}
	return registry, nil
}

// LoadFile builds the registry from a JSONC policy file. The file
// replaces the built-in policy entirely: an absent format in the file
// means that format has no permitted capabilities beyond the empty
// set, which the template store's load-time cross-check will reject.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading allow-list file: %w", err)
	}
	registry, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing allow-list file %s: %w", path, err)
	}
	return registry, nil
}

// Parse decodes a JSONC policy document. Unknown format keys are
// rejected so a typo in the policy file fails loudly at startup
// instead of silently granting nothing.
func Parse(data []byte) (*Registry, error) {
	var raw map[string][]string
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, err
	}

	byFormat := make(map[schema.Format]CapabilitySet, len(raw))
	for key, names := range raw {
		format, err := schema.ParseFormat(key)
		if err != nil {
			return nil, fmt.Errorf("allow-list key %q: %w", key, err)
		}
		set := make(CapabilitySet, len(names))
		for _, name := range names {
			if name == "" {
				return nil, fmt.Errorf("allow-list for %s contains an empty capability name", format)
			}
			set[name] = true
		}
		byFormat[format] = set
	}

	return &Registry{byFormat: byFormat}, nil
}

// CapabilitiesFor returns the permitted capability set for the format.
// An unregistered format yields schema.ErrUnknownFormat.
func (r *Registry) CapabilitiesFor(format schema.Format) (CapabilitySet, error) {
	set, ok := r.byFormat[format]
	if !ok {
		return nil, fmt.Errorf("%w: no allow-list entry for %q", schema.ErrUnknownFormat, format)
	}
	return set, nil
}
