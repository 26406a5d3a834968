// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// HashPrefix is the textual prefix of every content digest.
const HashPrefix = "sha256:"

// hashRE matches the exact digest shape: "sha256:" followed by exactly 64
// lowercase hex characters. Anything else is a format error, not a
// mismatch.
var hashRE = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// Hash computes the content digest of serialized bundle text.
//
// The digest is SHA-256 over the exact byte sequence, rendered as
// "sha256:<hex>". Identical inputs always yield identical outputs; patch
// verification and CDN cache keys both depend on hash equality implying
// content equality.
func Hash(source string) string {
	return HashString(source)
}

// HashString computes the digest of an arbitrary string in the same
// "sha256:<hex>" form. Used for per-module change detection during diffing.
func HashString(code string) string {
	sum := sha256.Sum256([]byte(code))
	return HashPrefix + hex.EncodeToString(sum[:])
}

// ValidHash reports whether s has the exact digest shape. Consumers must
// check this before using a hash string as a comparison key.
func ValidHash(s string) bool {
	return hashRE.MatchString(s)
}
