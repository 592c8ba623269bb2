// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// ParseResponse turns the model's labeled lines into a record. Each line is
// split at its first colon and both halves are trimmed; lines without a
// colon are ignored. Labels that name a PREP field, possibly decorated as
// "1. Patient" or "**EVENT**", are stored under the canonical key; other
// labels are kept verbatim when they carry a value, so a preamble such as
// "Here is the extracted information:" is dropped. A response with no labeled line at all is a
// types.ErrParse.
func ParseResponse(raw string) (types.Record, error) {
	rec := make(types.Record)
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if field, isPREP := canonicalField(key); isPREP {
			rec[field] = cleanValue(value)
			continue
		}
		if key != "" && value != "" {
			rec[key] = value
		}
	}
	if len(rec) == 0 {
		return nil, fmt.Errorf("%w: no labeled lines in model response", types.ErrParse)
	}
	return rec, nil
}

// canonicalField strips list numbering and markdown emphasis from a label
// and reports which PREP field, if any, it names.
func canonicalField(label string) (string, bool) {
	l := strings.TrimFunc(label, func(r rune) bool {
		return r == '*' || r == '#' || r == '-' || r == '_' || unicode.IsSpace(r)
	})
	l = strings.TrimLeftFunc(l, func(r rune) bool {
		return unicode.IsDigit(r) || r == '.' || r == ')' || unicode.IsSpace(r)
	})
	l = strings.Trim(l, "*_ ")
	for _, f := range types.PREPFields {
		if strings.EqualFold(l, f) {
			return f, true
		}
	}
	return "", false
}

// cleanValue removes emphasis left over from a "**LABEL:** value" line and
// a single pair of template brackets.
func cleanValue(v string) string {
	v = strings.TrimSpace(strings.TrimLeft(v, "*"))
	if len(v) >= 2 && strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	return v
}
