// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability statically checks a template body against the
// allow-list registry before execution.
//
// The scan is conservative by construction: it detects the import
// statements a Python body can express statically, and treats every
// construct that could introduce a capability dynamically
// (__import__, importlib, eval, exec, compile, relative imports) as a
// violation outright. A fixed explicit allow-list beats best-effort
// static detection — false positives are acceptable, false negatives
// are not.
package capability

import (
	"regexp"
	"sort"
	"strings"
)

// Scan extracts the capability surface of a Python template body.
// modules holds the top-level module names referenced by static
// import statements; dynamic holds the constructs the scanner refuses
// to resolve, each a short description of the offending line.
func Scan(body string) (modules []string, dynamic []string) {
	moduleSet := make(map[string]bool)

	for _, rawLine := range strings.Split(body, "\n") {
		line := stripComment(rawLine)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if marker := dynamicMarker(trimmed); marker != "" {
			dynamic = append(dynamic, marker+": "+trimmed)
			continue
		}

		imported := importedModules(trimmed)
		for _, module := range imported {
			moduleSet[module] = true
		}

		// Any other appearance of the import keyword — a compound
		// statement like "x = 1; import socket" or "if True: import
		// socket" — is an import the line patterns cannot attribute to
		// a module. Refuse it rather than let it through unattributed.
		if len(imported) == 0 && importKeywordPattern.MatchString(trimmed) {
			dynamic = append(dynamic, "unrecognized import form: "+trimmed)
		}
	}

	modules = make([]string, 0, len(moduleSet))
	for module := range moduleSet {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules, dynamic
}

var (
	// importPattern matches "import a", "import a.b as c, d".
	importPattern = regexp.MustCompile(`^import\s+(.+)$`)

	// fromPattern matches "from a.b import c". A leading dot
	// (relative import) deliberately does not match; relative imports
	// fall through to the dynamic check below.
	fromPattern = regexp.MustCompile(`^from\s+([A-Za-z_][A-Za-z0-9_.]*)\s+import\b`)

	// importKeywordPattern flags the import keyword anywhere on a
	// line. Lines it matches must either parse as a whole-line import
	// statement or be rejected; a string literal containing the word
	// is a false positive, which the scan accepts by construction.
	importKeywordPattern = regexp.MustCompile(`\bimport\b`)

	// relativeImportPattern catches "from . import x" and
	// "from .pkg import x", which cannot be resolved statically
	// against a module allow-list.
	relativeImportPattern = regexp.MustCompile(`^from\s+\.`)

	// dynamicPatterns are constructs that can smuggle in a capability
	// the static scan cannot see. Matched as whole words.
	dynamicPatterns = map[string]*regexp.Regexp{
		"__import__ call":   regexp.MustCompile(`\b__import__\b`),
		"importlib use":     regexp.MustCompile(`\bimportlib\b`),
		"eval call":         regexp.MustCompile(`\beval\s*\(`),
		"exec call":         regexp.MustCompile(`\bexec\s*\(`),
		"compile call":      regexp.MustCompile(`\bcompile\s*\(`),
		"globals access":    regexp.MustCompile(`\bglobals\s*\(`),
		"builtins access":   regexp.MustCompile(`\bbuiltins\b`),
		"getattr on module": regexp.MustCompile(`\bgetattr\s*\(\s*__builtins__`),
	}
)

// dynamicMarker returns a description of the first dynamic construct
// found on the line, or "" if the line is statically analyzable.
func dynamicMarker(line string) string {
	if relativeImportPattern.MatchString(line) {
		return "relative import"
	}
	// Stable iteration order for deterministic error messages.
	names := make([]string, 0, len(dynamicPatterns))
	for name := range dynamicPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if dynamicPatterns[name].MatchString(line) {
			return name
		}
	}
	return ""
}

// importedModules returns the top-level modules named by an import
// statement line, or nil if the line is not an import.
func importedModules(line string) []string {
	if match := fromPattern.FindStringSubmatch(line); match != nil {
		return []string{topModule(match[1])}
	}
	if match := importPattern.FindStringSubmatch(line); match != nil {
		var modules []string
		for _, clause := range strings.Split(match[1], ",") {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			// Drop "as alias".
			if fields := strings.Fields(clause); len(fields) > 0 {
				modules = append(modules, topModule(fields[0]))
			}
		}
		return modules
	}
	return nil
}

func topModule(dotted string) string {
	if i := strings.IndexByte(dotted, '.'); i >= 0 {
		return dotted[:i]
	}
	return dotted
}

// stripComment removes a trailing # comment, respecting single- and
// double-quoted string literals so a "#" inside a string is kept.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}
