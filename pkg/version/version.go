// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package version compares app and bundle versions.
//
// Mobile builds report bare semver strings ("1.2.0") while
// golang.org/x/mod/semver expects a leading "v"; this package bridges the
// two so the rest of the codebase never handles the prefix.
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonical normalizes a version string for x/mod/semver.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// IsValid reports whether v is a well-formed semver string, with or
// without the "v" prefix.
func IsValid(v string) bool {
	return semver.IsValid(canonical(v))
}

// Compare returns -1, 0, or +1 ordering a against b in semver precedence.
// Invalid versions sort before valid ones, matching x/mod/semver.
func Compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// Less reports whether a has lower precedence than b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}
