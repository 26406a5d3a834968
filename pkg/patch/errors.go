// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patch

import (
	"errors"
	"fmt"
)

// ErrInvalidHashFormat means the caller supplied a target hash that is not
// "sha256:" + 64 lowercase hex characters. A data error, not a runtime
// condition to retry.
var ErrInvalidHashFormat = errors.New("invalid hash format")

// ErrHashMismatch means a patch applied cleanly but the reassembled bundle
// did not reproduce the expected content. A definite integrity failure: the
// result must be discarded and the caller should fall back to a full bundle
// download.
var ErrHashMismatch = errors.New("hash mismatch")

// ModuleExistsError means an add operation targeted a module id already
// present, indicating the patch was computed against a different base
// bundle than the one supplied.
type ModuleExistsError struct {
	ModuleID int
}

func (e *ModuleExistsError) Error() string {
	return fmt.Sprintf("module %d already exists", e.ModuleID)
}

// ModuleNotFoundError means a replace or delete operation targeted a module
// id absent from the bundle, indicating a base bundle mismatch.
type ModuleNotFoundError struct {
	ModuleID int
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module %d not found", e.ModuleID)
}
