// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolve selects the release, if any, to offer a device.
//
// # Description
//
// Resolution scans an app's releases newest first and returns the first
// candidate that is active, satisfies every targeting rule, and includes
// the device in its rollout bucket — "newest matching wins." The scan does
// not continue looking for a "better" match once one passes.
//
// Post-selection gates then decide what the match means for this device:
// already running the release's version means no update; an app binary
// below the release's minimum means the device needs an app-store update;
// an app binary above the release's maximum means no update for this check
// cycle (resolution deliberately does not fall through to older
// candidates — see DESIGN.md).
//
// # Thread Safety
//
// Resolve is pure: it reads its arguments and shares no state. Any number
// of device resolutions may run concurrently.
package resolve

import (
	"sort"

	"github.com/bundlenudge/bundlenudge/pkg/rollout"
	"github.com/bundlenudge/bundlenudge/pkg/version"
	"github.com/bundlenudge/bundlenudge/services/updater/datatypes"
)

// Reason explains a no_update decision, for logging and metrics.
const (
	// ReasonNoMatch: no candidate passed status, targeting, and rollout.
	ReasonNoMatch = "no_matching_release"
	// ReasonAlreadyCurrent: the device already runs the resolved version.
	ReasonAlreadyCurrent = "already_current"
	// ReasonAboveMaxAppVersion: the device's app binary is newer than
	// the resolved release supports.
	ReasonAboveMaxAppVersion = "above_max_app_version"
)

// Decision is the outcome of resolving one device against an app's
// releases.
type Decision struct {
	// Outcome is one of the datatypes.Decision constants.
	Outcome string

	// Release is the resolved release for update_available and
	// requires_app_update outcomes, nil otherwise.
	Release *datatypes.Release

	// Reason explains a no_update outcome.
	Reason string

	// MinAppVersion is set for requires_app_update.
	MinAppVersion string
}

// Resolve picks at most one release for the device.
//
// # Inputs
//
//   - candidates: The app's releases. Order is not trusted; Resolve sorts
//     a copy by CreatedAt descending.
//   - device: The device's attributes, immutable for this call.
//
// # Outputs
//
//   - Decision: The outcome plus the selected release, if any. "No
//     matching release" is a normal outcome, not an error.
func Resolve(candidates []datatypes.Release, device datatypes.DeviceAttributes) Decision {
	ordered := make([]datatypes.Release, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt > ordered[j].CreatedAt
	})

	for i := range ordered {
		release := &ordered[i]
		if release.Status != datatypes.StatusActive {
			continue
		}
		if !rulesMatch(release.TargetingRules, &device) {
			continue
		}
		if !rollout.Included(device.DeviceID, release.ID, release.RolloutPercentage) {
			continue
		}
		return gate(release, &device)
	}

	return Decision{Outcome: datatypes.DecisionNoUpdate, Reason: ReasonNoMatch}
}

// gate applies the post-selection checks to the resolved release.
func gate(release *datatypes.Release, device *datatypes.DeviceAttributes) Decision {
	if device.CurrentBundleVersion != "" &&
		version.Compare(device.CurrentBundleVersion, release.Version) == 0 {
		return Decision{
			Outcome: datatypes.DecisionNoUpdate,
			Release: release,
			Reason:  ReasonAlreadyCurrent,
		}
	}
	if release.MinAppVersion != "" && version.Less(device.AppVersion, release.MinAppVersion) {
		return Decision{
			Outcome:       datatypes.DecisionRequiresAppUpdate,
			Release:       release,
			MinAppVersion: release.MinAppVersion,
		}
	}
	if release.MaxAppVersion != "" && version.Less(release.MaxAppVersion, device.AppVersion) {
		return Decision{
			Outcome: datatypes.DecisionNoUpdate,
			Release: release,
			Reason:  ReasonAboveMaxAppVersion,
		}
	}
	return Decision{
		Outcome: datatypes.DecisionUpdateAvailable,
		Release: release,
	}
}
