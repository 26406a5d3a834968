// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package patch implements module-granular bundle diffing, patch
// application, and verified patch application.
//
// # Description
//
// A Patch is a minimal description of the differences between two bundles:
// per-module add/replace/delete operations plus optional prelude/postlude
// overwrites. Diff runs offline when a release is created; Apply and
// ApplyVerified run per device at request time, turning the device's current
// bundle plus a patch into the new bundle — which is only ever handed back
// after its hash matches the expected target ("build and verify, then
// commit").
//
// # Wire Format
//
// Patches persist and travel as JSON:
//
//	{
//	  "prelude":  "...",              // optional
//	  "postlude": "...",              // optional
//	  "operations": [
//	    {"op": "delete",  "moduleId": 2},
//	    {"op": "add",     "moduleId": 3, "code": "...", "dependencies": []},
//	    {"op": "replace", "moduleId": 1, "code": "...", "dependencies": [3]}
//	  ]
//	}
//
// # Thread Safety
//
// All functions are pure with respect to shared state; concurrent calls on
// unrelated inputs need no coordination.
package patch

import (
	"encoding/json"
	"fmt"
)

// OpType tags a patch operation.
type OpType string

const (
	// OpAdd introduces a module the target bundle must not yet contain.
	OpAdd OpType = "add"
	// OpReplace swaps the body of a module the target bundle must contain.
	OpReplace OpType = "replace"
	// OpDelete removes a module the target bundle must contain.
	OpDelete OpType = "delete"
)

// Operation is one module-level change. Code and Dependencies are only
// meaningful for add and replace.
type Operation struct {
	Op           OpType `json:"op"`
	ModuleID     int    `json:"moduleId"`
	Code         string `json:"code,omitempty"`
	Dependencies []int  `json:"dependencies,omitempty"`
}

// Patch is an ordered set of operations plus optional prelude/postlude
// overwrites. Operations apply in listed order; later operations may
// reference modules added earlier in the same patch.
type Patch struct {
	Prelude    *string     `json:"prelude,omitempty"`
	Postlude   *string     `json:"postlude,omitempty"`
	Operations []Operation `json:"operations"`
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return p.Prelude == nil && p.Postlude == nil && len(p.Operations) == 0
}

// Marshal renders the patch in its stable wire form.
func (p *Patch) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a patch from its wire form.
func Unmarshal(data []byte) (*Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal patch: %w", err)
	}
	for _, op := range p.Operations {
		switch op.Op {
		case OpAdd, OpReplace, OpDelete:
		default:
			return nil, fmt.Errorf("unmarshal patch: unknown operation %q", op.Op)
		}
	}
	return &p, nil
}
