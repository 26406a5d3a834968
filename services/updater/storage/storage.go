// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage defines the updater's persistence boundaries.
//
// Release metadata lives in an embedded BadgerDB (storage/badger); bundle
// and patch artifacts live in object storage (storage/gcs in deployment,
// storage/memory in tests and lightweight mode). The resolution and patch
// engines never perform I/O themselves — handlers fetch through these
// interfaces and hand plain values to the core.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports a missing object or release record.
var ErrNotFound = errors.New("not found")

// BundleStore persists bundle text and patch artifacts.
type BundleStore interface {
	// PutBundle stores a release's full bundle text and returns its URL.
	PutBundle(ctx context.Context, appID, releaseID, contents string) (string, error)

	// GetBundle fetches a release's full bundle text.
	GetBundle(ctx context.Context, appID, releaseID string) (string, error)

	// PutPatch stores a release's patch artifact (wire-form JSON) and
	// returns its URL.
	PutPatch(ctx context.Context, appID, releaseID string, patchJSON []byte) (string, error)

	// GetPatch fetches a release's patch artifact.
	GetPatch(ctx context.Context, appID, releaseID string) ([]byte, error)
}
