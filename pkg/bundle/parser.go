// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package bundle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MalformedError reports bundle text whose module boundaries cannot be
// located. It is fatal to the parse call; there is nothing to retry.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed bundle: %s", e.Reason)
}

// moduleRE matches one Metro module definition:
//
//	__d(<function expression>,<id>,[<dep ids>]);
//
// The body match is non-greedy so each match ends at the first well-formed
// trailer following it.
var moduleRE = regexp.MustCompile(`(?s)__d\((.*?),(\d+),\[([0-9,\s]*)\]\);`)

// Parse turns bundle source text into an addressable Bundle.
//
// # Description
//
// Locates every __d module definition, records the text before the first as
// the prelude and the text after the last as the postlude, and builds the
// module table. Parse is deterministic and total for well-formed input: the
// same source always yields the same structure, and Assemble on the result
// reproduces the source exactly.
//
// # Inputs
//
//   - source: Raw bundle text, as fetched whole from object storage.
//
// # Outputs
//
//   - *Bundle: The parsed structure. Owned by the caller.
//   - error: *MalformedError if no module definitions are found, module
//     separators are inconsistent, or a module id repeats.
func Parse(source string) (*Bundle, error) {
	matches := moduleRE.FindAllStringSubmatchIndex(source, -1)
	if len(matches) == 0 {
		return nil, &MalformedError{Reason: "no module definitions found"}
	}

	b := &Bundle{
		Prelude:  source[:matches[0][0]],
		Postlude: source[matches[len(matches)-1][1]:],
		Modules:  make(map[int]*Module, len(matches)),
		sep:      "\n",
	}

	// Metro separates module definitions uniformly: "\n" in development
	// output, "" when minified. A mixed or non-whitespace gap means the
	// module boundaries were not where the scan thought they were.
	if len(matches) > 1 {
		b.sep = source[matches[0][1]:matches[1][0]]
		if strings.TrimSpace(b.sep) != "" {
			return nil, &MalformedError{Reason: "unparsed text between module definitions"}
		}
	}

	for i, m := range matches {
		if i > 0 {
			if gap := source[matches[i-1][1]:m[0]]; gap != b.sep {
				return nil, &MalformedError{Reason: "inconsistent module separators"}
			}
		}

		code := source[m[2]:m[3]]
		id, err := strconv.Atoi(source[m[4]:m[5]])
		if err != nil {
			return nil, &MalformedError{Reason: fmt.Sprintf("invalid module id %q", source[m[4]:m[5]])}
		}
		depsRaw := source[m[6]:m[7]]
		deps, err := parseDependencies(depsRaw)
		if err != nil {
			return nil, &MalformedError{Reason: fmt.Sprintf("module %d: %v", id, err)}
		}

		mod := &Module{
			ID:           id,
			Code:         code,
			Dependencies: deps,
			Hash:         HashString(code),
			depsRaw:      depsRaw,
		}
		if !b.Add(mod) {
			return nil, &MalformedError{Reason: fmt.Sprintf("duplicate module id %d", id)}
		}
	}
	return b, nil
}

// parseDependencies parses the comma-separated id list inside the
// dependency array literal.
func parseDependencies(raw string) ([]int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []int{}, nil
	}
	parts := strings.Split(trimmed, ",")
	deps := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid dependency id %q", p)
		}
		deps = append(deps, id)
	}
	return deps, nil
}
