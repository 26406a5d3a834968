// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package bundle

import (
	"strconv"
	"strings"
)

// Assemble serializes the bundle back to text: prelude, each module in its
// __d call-expression form in emission order, postlude. For a bundle that
// came straight from Parse the result is byte-identical to the input.
func (b *Bundle) Assemble() string {
	var sb strings.Builder
	sb.WriteString(b.Prelude)
	for i, id := range b.order {
		if i > 0 {
			sb.WriteString(b.sep)
		}
		writeModule(&sb, b.Modules[id])
	}
	sb.WriteString(b.Postlude)
	return sb.String()
}

func writeModule(sb *strings.Builder, m *Module) {
	sb.WriteString("__d(")
	sb.WriteString(m.Code)
	sb.WriteString(",")
	sb.WriteString(strconv.Itoa(m.ID))
	sb.WriteString(",[")
	sb.WriteString(m.DependencySource())
	sb.WriteString("]);")
}
