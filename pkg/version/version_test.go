// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.2.0", -1},
		{"1.2.0", "1.0.0", 1},
		{"1.2.0", "1.2.0", 0},
		{"v1.2.0", "1.2.0", 0},
		{"1.10.0", "1.9.0", 1},
		{"2.0.0-beta.1", "2.0.0", -1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Compare(tc.a, tc.b), "Compare(%q, %q)", tc.a, tc.b)
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("1.2.3"))
	assert.True(t, IsValid("v1.2.3"))
	assert.True(t, IsValid("1.2.3-rc.1"))
	assert.False(t, IsValid("not-a-version"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("1.2.3.4"))
}

func TestLess(t *testing.T) {
	assert.True(t, Less("1.0.0", "1.2.0"))
	assert.False(t, Less("1.2.0", "1.2.0"))
}
