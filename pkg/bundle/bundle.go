// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package bundle models a React Native JavaScript bundle as an addressable
// structure: a prelude, a table of numbered modules, and a postlude.
//
// # Description
//
// A Metro-produced bundle is a single concatenated payload. The runtime
// prelude comes first, followed by one module definition per call expression:
//
//	__d(function(global, require, module, exports) { ... },42,[1,7]);
//
// and finally the postlude that kicks off execution (require calls, source
// map comment). Parse locates the module boundaries and exposes each module
// by its integer id; Assemble reverses the process byte-for-byte, so that
// for any well-formed bundle text x:
//
//	Parse(x).Assemble() == x
//
// That round-trip guarantee is what makes module-level patching safe: the
// diff and patch engines in pkg/patch operate on this structure and rely on
// reassembly reproducing exact bytes.
//
// # Thread Safety
//
// Parse and Assemble have no shared state; distinct Bundle values may be
// used concurrently. A single Bundle is not safe for concurrent mutation.
package bundle

import (
	"slices"
	"strconv"
	"strings"
)

// Module is one addressable unit of code within a bundle.
type Module struct {
	// ID is the module's integer id, unique within a bundle.
	ID int

	// Code is the verbatim module body: the full function expression
	// passed as the first argument of the __d call.
	Code string

	// Dependencies are the module ids this module requires, in the
	// order they appear in the bundle text.
	Dependencies []int

	// Hash is a content digest of Code in "sha256:<hex>" form. It is
	// used for cheap equality checks during diffing, not as a security
	// boundary.
	Hash string

	// depsRaw is the verbatim dependency list text from the source,
	// preserved so Assemble can reproduce the original bytes even when
	// the source formats the list unusually. Empty for constructed
	// modules, which render canonically.
	depsRaw string
}

// NewModule builds a module from its parts, computing the content hash.
// Used for modules introduced by patch operations rather than parsed from
// source text.
func NewModule(id int, code string, deps []int) *Module {
	if deps == nil {
		deps = []int{}
	}
	return &Module{
		ID:           id,
		Code:         code,
		Dependencies: deps,
		Hash:         HashString(code),
	}
}

// DependencySource returns the dependency list text exactly as Assemble
// emits it: the verbatim source text for parsed modules, the canonical
// comma-joined rendering for constructed ones. Two modules with equal
// Dependencies can still assemble into different bytes when their source
// formatted the list differently (say "[1, 7]" versus "[1,7]"), so
// byte-exact comparisons must use this text rather than the parsed ids.
func (m *Module) DependencySource() string {
	if m.depsRaw != "" {
		return m.depsRaw
	}
	parts := make([]string, len(m.Dependencies))
	for i, dep := range m.Dependencies {
		parts[i] = strconv.Itoa(dep)
	}
	return strings.Join(parts, ",")
}

// clone returns a deep copy of the module.
func (m *Module) clone() *Module {
	return &Module{
		ID:           m.ID,
		Code:         m.Code,
		Dependencies: slices.Clone(m.Dependencies),
		Hash:         m.Hash,
		depsRaw:      m.depsRaw,
	}
}

// Bundle is a parsed JavaScript bundle.
//
// Modules are held in an owned table keyed by id. The emission order of the
// source text is preserved separately so that Assemble can reproduce the
// original byte sequence; modules added later are appended at the end of
// that order.
type Bundle struct {
	// Prelude is everything before the first module definition.
	Prelude string

	// Postlude is everything after the last module definition.
	Postlude string

	// Modules maps module id to module. Treat as owned by the Bundle;
	// mutate through pkg/patch, not directly.
	Modules map[int]*Module

	// order records module ids in source emission order.
	order []int

	// sep is the separator between consecutive module definitions.
	// Metro emits "\n" for development bundles and "" for minified
	// production bundles; it is uniform within one bundle.
	sep string
}

// New returns an empty bundle with newline-separated module output.
func New() *Bundle {
	return &Bundle{
		Modules: make(map[int]*Module),
		sep:     "\n",
	}
}

// Len reports the number of modules in the bundle.
func (b *Bundle) Len() int {
	return len(b.order)
}

// ModuleIDs returns the module ids in source emission order. The returned
// slice is a copy.
func (b *Bundle) ModuleIDs() []int {
	return slices.Clone(b.order)
}

// Module returns the module with the given id, or nil if absent.
func (b *Bundle) Module(id int) *Module {
	return b.Modules[id]
}

// Add inserts a module the bundle does not yet contain, appending it to the
// emission order. It reports false if the id is already present.
func (b *Bundle) Add(m *Module) bool {
	if _, ok := b.Modules[m.ID]; ok {
		return false
	}
	b.Modules[m.ID] = m
	b.order = append(b.order, m.ID)
	return true
}

// Replace swaps in a new body for a module already present, keeping its
// position in the emission order. It reports false if the id is absent.
func (b *Bundle) Replace(m *Module) bool {
	if _, ok := b.Modules[m.ID]; !ok {
		return false
	}
	b.Modules[m.ID] = m
	return true
}

// Remove deletes the module with the given id, reporting whether it was
// present.
func (b *Bundle) Remove(id int) bool {
	if _, ok := b.Modules[id]; !ok {
		return false
	}
	delete(b.Modules, id)
	if i := slices.Index(b.order, id); i >= 0 {
		b.order = slices.Delete(b.order, i, i+1)
	}
	return true
}

// Clone returns a deep copy of the bundle. Mutating the clone never affects
// the original; the patch applier uses this to keep unverified intermediate
// states private.
func (b *Bundle) Clone() *Bundle {
	modules := make(map[int]*Module, len(b.Modules))
	for id, m := range b.Modules {
		modules[id] = m.clone()
	}
	return &Bundle{
		Prelude:  b.Prelude,
		Postlude: b.Postlude,
		Modules:  modules,
		order:    slices.Clone(b.order),
		sep:      b.sep,
	}
}
