// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package template

import (
	"fmt"
	"strconv"
	"strings"
)

// Render produces the executable script: a prelude binding the
// injected output_path and intent variables, followed by the template
// body. The prelude is the only code the pipeline adds; the body is
// used verbatim so the capability scan that approved it is the exact
// text that runs.
//
// Values are embedded as quoted string literals, never interpolated
// into code positions, so intent text cannot alter the script's
// structure.
func Render(definition *Definition, outputPath, intent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "output_path = %s\n", pythonQuote(outputPath))
	fmt.Fprintf(&b, "intent = %s\n\n", pythonQuote(intent))
	b.WriteString(definition.Body)
	if !strings.HasSuffix(definition.Body, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

// pythonQuote renders s as a double-quoted Python string literal.
// strconv.Quote's escape repertoire (\", \\, \n, \t, \xNN, \uNNNN,
// \UNNNNNNNN) is a subset of Python's string escape syntax, so the Go
// quoting is reused directly.
func pythonQuote(s string) string {
	return strconv.Quote(s)
}
