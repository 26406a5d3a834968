// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory is an in-process bundle store for tests and for running
// the updater without cloud credentials (lightweight mode).
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bundlenudge/bundlenudge/services/updater/storage"
)

// Store implements storage.BundleStore with in-process maps.
//
// # Thread Safety
//
// Safe for concurrent use; a single RWMutex guards both maps.
type Store struct {
	mu      sync.RWMutex
	bundles map[string]string
	patches map[string][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		bundles: make(map[string]string),
		patches: make(map[string][]byte),
	}
}

func objectKey(appID, releaseID string) string {
	return appID + "/" + releaseID
}

// PutBundle stores a release's bundle text and returns a mem:// URL.
func (s *Store) PutBundle(_ context.Context, appID, releaseID, contents string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[objectKey(appID, releaseID)] = contents
	return fmt.Sprintf("mem://bundles/%s/%s/main.jsbundle", appID, releaseID), nil
}

// GetBundle fetches a release's bundle text.
func (s *Store) GetBundle(_ context.Context, appID, releaseID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contents, ok := s.bundles[objectKey(appID, releaseID)]
	if !ok {
		return "", fmt.Errorf("bundle %s/%s: %w", appID, releaseID, storage.ErrNotFound)
	}
	return contents, nil
}

// PutPatch stores a release's patch artifact and returns a mem:// URL.
func (s *Store) PutPatch(_ context.Context, appID, releaseID string, patchJSON []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(patchJSON))
	copy(stored, patchJSON)
	s.patches[objectKey(appID, releaseID)] = stored
	return fmt.Sprintf("mem://patches/%s/%s/patch.json", appID, releaseID), nil
}

// GetPatch fetches a release's patch artifact.
func (s *Store) GetPatch(_ context.Context, appID, releaseID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patchJSON, ok := s.patches[objectKey(appID, releaseID)]
	if !ok {
		return nil, fmt.Errorf("patch %s/%s: %w", appID, releaseID, storage.ErrNotFound)
	}
	out := make([]byte, len(patchJSON))
	copy(out, patchJSON)
	return out, nil
}
