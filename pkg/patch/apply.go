// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patch

import (
	"fmt"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
)

// ApplyOperation applies a single operation to the bundle's module table.
//
// Fails with *ModuleExistsError if an add targets an existing id, and with
// *ModuleNotFoundError if a replace or delete targets a missing id. No
// other side effects.
func ApplyOperation(b *bundle.Bundle, op Operation) error {
	switch op.Op {
	case OpAdd:
		if !b.Add(bundle.NewModule(op.ModuleID, op.Code, op.Dependencies)) {
			return &ModuleExistsError{ModuleID: op.ModuleID}
		}
	case OpReplace:
		if !b.Replace(bundle.NewModule(op.ModuleID, op.Code, op.Dependencies)) {
			return &ModuleNotFoundError{ModuleID: op.ModuleID}
		}
	case OpDelete:
		if !b.Remove(op.ModuleID) {
			return &ModuleNotFoundError{ModuleID: op.ModuleID}
		}
	default:
		return fmt.Errorf("unknown operation %q", op.Op)
	}
	return nil
}

// Apply applies prelude/postlude overwrites, then each operation in listed
// order. It stops at the first failing operation and surfaces the error
// unchanged; there is no partial-success signaling. Callers mutate only
// bundles they own — typically a clone that is discarded on failure.
func Apply(b *bundle.Bundle, p *Patch) error {
	if p.Prelude != nil {
		b.Prelude = *p.Prelude
	}
	if p.Postlude != nil {
		b.Postlude = *p.Postlude
	}
	for i, op := range p.Operations {
		if err := ApplyOperation(b, op); err != nil {
			return fmt.Errorf("operation %d (%s module %d): %w", i, op.Op, op.ModuleID, err)
		}
	}
	return nil
}

// ApplyVerified applies a patch to raw bundle text and verifies the result
// against an expected content hash before releasing it.
//
// # Description
//
// This is the only code path permitted to hand back a patched bundle. The
// sequence is:
//
//  1. Reject targetHash unless it has the exact digest shape
//     (ErrInvalidHashFormat) — before touching the bundle.
//  2. Parse sourceText; all work happens on the freshly parsed private
//     structure, so a mid-patch failure can never leave caller-visible
//     state half-modified.
//  3. Apply the patch; an operation failure surfaces as-is with no result.
//  4. Reassemble, hash, and compare against targetHash. On mismatch the
//     assembled text is discarded (ErrHashMismatch) — an unverified bundle
//     must never be servable.
//
// # Inputs
//
//   - sourceText: The device's current bundle text.
//   - p: The patch to apply.
//   - targetHash: Expected digest of the patched bundle, "sha256:<hex>".
//
// # Outputs
//
//   - string: The verified patched bundle text. Empty on any failure.
//   - error: ErrInvalidHashFormat, *bundle.MalformedError, a wrapped
//     operation error, or ErrHashMismatch. Callers must treat any non-nil
//     error as "do not serve; fall back to full bundle download."
func ApplyVerified(sourceText string, p *Patch, targetHash string) (string, error) {
	if !bundle.ValidHash(targetHash) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHashFormat, targetHash)
	}

	parsed, err := bundle.Parse(sourceText)
	if err != nil {
		return "", err
	}

	// Parse already returned a private structure, but patching a clone
	// keeps the invariant local instead of depending on the call site.
	work := parsed.Clone()
	if err := Apply(work, p); err != nil {
		return "", err
	}

	assembled := work.Assemble()
	if bundle.Hash(assembled) != targetHash {
		return "", ErrHashMismatch
	}
	return assembled, nil
}
