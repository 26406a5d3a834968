// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/bundlenudge/bundlenudge/services/updater/datatypes"
	"github.com/bundlenudge/bundlenudge/services/updater/storage"
)

// keyPrefix namespaces release records within the database.
const keyPrefix = "release/"

// ReleaseStore persists release metadata.
//
// # Description
//
// Records are keyed release/<appID>/<inverted createdAt>/<releaseID> with
// JSON-encoded values. Inverting the timestamp makes lexicographic key
// order equal newest-first creation order, so listing an app's releases
// is a single forward prefix scan with no sort.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type ReleaseStore struct {
	db *badger.DB
}

// NewReleaseStore wraps an open database.
func NewReleaseStore(db *badger.DB) *ReleaseStore {
	return &ReleaseStore{db: db}
}

// Close closes the underlying database.
func (s *ReleaseStore) Close() error {
	return s.db.Close()
}

func releaseKey(appID string, createdAt int64, releaseID string) []byte {
	inverted := uint64(math.MaxInt64 - createdAt)
	return []byte(fmt.Sprintf("%s%s/%020d/%s", keyPrefix, appID, inverted, releaseID))
}

func appPrefix(appID string) []byte {
	return []byte(keyPrefix + appID + "/")
}

// Put stores a release record, overwriting any record with the same app,
// creation time, and id.
func (s *ReleaseStore) Put(ctx context.Context, release *datatypes.Release) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put release: %w", err)
	}
	value, err := json.Marshal(release)
	if err != nil {
		return fmt.Errorf("encode release %s: %w", release.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(releaseKey(release.AppID, release.CreatedAt, release.ID), value)
	})
	if err != nil {
		return fmt.Errorf("put release %s: %w", release.ID, err)
	}
	return nil
}

// ListByApp returns an app's releases newest first.
func (s *ReleaseStore) ListByApp(ctx context.Context, appID string) ([]datatypes.Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}

	var releases []datatypes.Release
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := appPrefix(appID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var release datatypes.Release
				if err := json.Unmarshal(value, &release); err != nil {
					return fmt.Errorf("decode release at %s: %w", it.Item().Key(), err)
				}
				releases = append(releases, release)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list releases for %s: %w", appID, err)
	}
	return releases, nil
}

// Get returns one release by id.
func (s *ReleaseStore) Get(ctx context.Context, appID, releaseID string) (*datatypes.Release, error) {
	release, err := s.find(ctx, appID, releaseID)
	if err != nil {
		return nil, err
	}
	return release, nil
}

// UpdateRollout sets a release's rollout percentage.
func (s *ReleaseStore) UpdateRollout(ctx context.Context, appID, releaseID string, percentage int) (*datatypes.Release, error) {
	return s.update(ctx, appID, releaseID, func(release *datatypes.Release) {
		release.RolloutPercentage = percentage
	})
}

// UpdateStatus sets a release's status. Setting StatusInactive is how a
// release is rolled back: resolution skips inactive releases and devices
// fall through to the next matching candidate.
func (s *ReleaseStore) UpdateStatus(ctx context.Context, appID, releaseID, status string) (*datatypes.Release, error) {
	return s.update(ctx, appID, releaseID, func(release *datatypes.Release) {
		release.Status = status
	})
}

// find scans the app's prefix for the release id. Release counts per app
// are small, so a scan beats maintaining a secondary index.
func (s *ReleaseStore) find(ctx context.Context, appID, releaseID string) (*datatypes.Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get release: %w", err)
	}

	var found *datatypes.Release
	err := s.db.View(func(txn *badger.Txn) error {
		_, release, err := findInTxn(txn, appID, releaseID)
		if err != nil {
			return err
		}
		found = release
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("release %s for app %s: %w", releaseID, appID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get release %s: %w", releaseID, err)
	}
	return found, nil
}

// findInTxn locates a release within txn by scanning the app's prefix. The
// iterator is closed before returning so the caller may write to txn.
func findInTxn(txn *badger.Txn, appID, releaseID string) ([]byte, *datatypes.Release, error) {
	opts := badger.DefaultIteratorOptions
	prefix := appPrefix(appID)
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	suffix := "/" + releaseID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if !strings.HasSuffix(string(it.Item().Key()), suffix) {
			continue
		}
		key := it.Item().KeyCopy(nil)
		var release datatypes.Release
		err := it.Item().Value(func(value []byte) error {
			return json.Unmarshal(value, &release)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("decode release at %s: %w", key, err)
		}
		return key, &release, nil
	}
	return nil, nil, storage.ErrNotFound
}

// update applies mutate inside a single read-modify-write transaction, so
// two concurrent updates to the same release serialize instead of one
// overwriting the other. Badger aborts the losing transaction with
// ErrConflict; it is retried against the winner's write.
func (s *ReleaseStore) update(ctx context.Context, appID, releaseID string, mutate func(*datatypes.Release)) (*datatypes.Release, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("update release: %w", err)
		}

		var updated *datatypes.Release
		err := s.db.Update(func(txn *badger.Txn) error {
			key, release, err := findInTxn(txn, appID, releaseID)
			if err != nil {
				return err
			}
			mutate(release)
			value, err := json.Marshal(release)
			if err != nil {
				return fmt.Errorf("encode release %s: %w", releaseID, err)
			}
			updated = release
			return txn.Set(key, value)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("release %s for app %s: %w", releaseID, appID, storage.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("update release %s: %w", releaseID, err)
		}
		return updated, nil
	}
}
