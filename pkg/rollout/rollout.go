// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rollout implements deterministic device bucketing for staged
// release rollouts.
//
// # Description
//
// Each (device, release) pair maps to a stable bucket in [0, 100). A
// release at rollout percentage p includes exactly the devices whose bucket
// is below p, so raising the percentage only ever adds devices — a device
// already included at 10% stays included at 50%.
//
// The bucket is derived from xxhash, a fast non-cryptographic hash with
// uniform distribution. Stability is a correctness requirement: the same
// device and release must bucket identically across calls, retries, and
// process restarts, so the hash input is exactly "deviceID:releaseID" with
// no per-request salt. An earlier implementation used a non-uniform hash
// that left some devices permanently excluded regardless of percentage;
// TestBucket_UniformDistribution guards against regressing to that.
package rollout

import (
	"github.com/cespare/xxhash/v2"
)

// Bucket returns the stable rollout bucket in [0, 100) for a device and
// release pair.
func Bucket(deviceID, releaseID string) int {
	return int(xxhash.Sum64String(deviceID+":"+releaseID) % 100)
}

// Included reports whether the device falls inside the rollout for the
// given percentage. Percentages at or below 0 include no devices; at or
// above 100, all devices.
func Included(deviceID, releaseID string, percentage int) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	return Bucket(deviceID, releaseID) < percentage
}
