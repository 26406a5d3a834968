// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patch

import (
	"slices"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
)

// Diff compares two parsed bundles and emits the minimal set of module
// operations transforming old into new.
//
// # Description
//
// Module ids only in new become adds; ids in both whose content changed
// become replaces; ids only in old become deletes. Unchanged modules are
// omitted entirely, so the operation count equals the number of modules
// that changed. Prelude and postlude are included only when they differ
// byte-for-byte.
//
// Operations are emitted deletes first, then adds, then replaces, each in
// ascending module id. Ordering across unrelated ids carries no semantics;
// the deterministic order exists for reproducible artifacts and tests.
func Diff(oldBundle, newBundle *bundle.Bundle) *Patch {
	p := &Patch{Operations: []Operation{}}

	if oldBundle.Prelude != newBundle.Prelude {
		prelude := newBundle.Prelude
		p.Prelude = &prelude
	}
	if oldBundle.Postlude != newBundle.Postlude {
		postlude := newBundle.Postlude
		p.Postlude = &postlude
	}

	var deletes, adds, replaces []Operation
	for _, id := range sortedIDs(oldBundle) {
		if newBundle.Module(id) == nil {
			deletes = append(deletes, Operation{Op: OpDelete, ModuleID: id})
		}
	}
	for _, id := range sortedIDs(newBundle) {
		newMod := newBundle.Module(id)
		oldMod := oldBundle.Module(id)
		switch {
		case oldMod == nil:
			adds = append(adds, Operation{
				Op:           OpAdd,
				ModuleID:     id,
				Code:         newMod.Code,
				Dependencies: slices.Clone(newMod.Dependencies),
			})
		case moduleChanged(oldMod, newMod):
			replaces = append(replaces, Operation{
				Op:           OpReplace,
				ModuleID:     id,
				Code:         newMod.Code,
				Dependencies: slices.Clone(newMod.Dependencies),
			})
		}
	}

	p.Operations = append(p.Operations, deletes...)
	p.Operations = append(p.Operations, adds...)
	p.Operations = append(p.Operations, replaces...)
	return p
}

// moduleChanged reports whether a module differs between the two bundles in
// a way reassembly can see. The content hash covers the code body; the
// dependency list is compared by its rendered text rather than its parsed
// ids, because a formatting-only difference ("[1, 7]" versus "[1,7]") still
// changes the assembled bytes and needs a replace for the applied result to
// reproduce the new bundle exactly.
func moduleChanged(oldMod, newMod *bundle.Module) bool {
	return oldMod.Hash != newMod.Hash ||
		oldMod.DependencySource() != newMod.DependencySource()
}

func sortedIDs(b *bundle.Bundle) []int {
	ids := b.ModuleIDs()
	slices.Sort(ids)
	return ids
}
