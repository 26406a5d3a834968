// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the updater service.
//
// This file contains request and response types for the update-check and
// release-management endpoints.
package datatypes

import (
	"encoding/json"
	"errors"
)

// MaxBundleBytes caps the bundle text accepted on release creation.
// Bundles beyond this are a data error, not something to store and choke
// on later.
const MaxBundleBytes = 64 * 1024 * 1024 // 64MB

// ErrBundleTooLarge rejects release creation with a bundle above
// MaxBundleBytes.
var ErrBundleTooLarge = errors.New("bundle exceeds maximum size")

// =============================================================================
// Update Check
// =============================================================================

// Decision values for an update check.
const (
	// DecisionNoUpdate means no release applies; the device keeps its
	// current bundle. A normal, frequent outcome — not an error.
	DecisionNoUpdate = "no_update"
	// DecisionUpdateAvailable means a release was resolved; the response
	// carries the bundle location and optionally an inline patch.
	DecisionUpdateAvailable = "update_available"
	// DecisionRequiresAppUpdate means the resolved bundle needs a newer
	// native binary; the device should be sent to the app store instead.
	DecisionRequiresAppUpdate = "requires_app_update"
)

// CheckUpdateRequest is the device check-in body for POST /v1/updates/check.
type CheckUpdateRequest struct {
	// AppID identifies the app checking in.
	AppID string `json:"appId" validate:"required"`

	// Device carries the attributes targeting and rollout decide on.
	Device DeviceAttributes `json:"device" validate:"required"`
}

// Validate checks the request against its declared constraints.
func (r *CheckUpdateRequest) Validate() error {
	return validate.Struct(r)
}

// CheckUpdateResponse is the decision envelope returned to the device.
type CheckUpdateResponse struct {
	// Decision is one of the Decision constants.
	Decision string `json:"decision"`

	// ReleaseID and Version identify the resolved release when Decision
	// is update_available.
	ReleaseID string `json:"releaseId,omitempty"`
	Version   string `json:"version,omitempty"`

	// BundleURL and BundleHash locate and authenticate the full bundle.
	BundleURL  string `json:"bundleUrl,omitempty"`
	BundleHash string `json:"bundleHash,omitempty"`

	// Patch is the inline module patch when the device's current bundle
	// is the patch base; TargetHash is the digest the patched result
	// must reproduce before the device may load it.
	Patch      json.RawMessage `json:"patch,omitempty"`
	TargetHash string          `json:"targetHash,omitempty"`

	// MinAppVersion is set when Decision is requires_app_update.
	MinAppVersion string `json:"minAppVersion,omitempty"`
}

// =============================================================================
// Release Management
// =============================================================================

// CreateReleaseRequest is the body for POST /v1/apps/:appId/releases.
type CreateReleaseRequest struct {
	// Version is the new bundle's semver string.
	Version string `json:"version" validate:"required,semverstr"`

	// RolloutPercentage is the initial staged-rollout fraction, 0-100.
	RolloutPercentage int `json:"rolloutPercentage" validate:"min=0,max=100"`

	// MinAppVersion / MaxAppVersion bound the native app versions this
	// bundle supports. Either may be empty.
	MinAppVersion string `json:"minAppVersion,omitempty" validate:"omitempty,semverstr"`
	MaxAppVersion string `json:"maxAppVersion,omitempty" validate:"omitempty,semverstr"`

	// TargetingRules restrict which devices are eligible.
	TargetingRules []TargetingRule `json:"targetingRules,omitempty" validate:"omitempty,dive"`

	// Bundle is the full bundle source text.
	Bundle string `json:"bundle" validate:"required"`
}

// Validate checks the request, including the bundle size cap.
func (r *CreateReleaseRequest) Validate() error {
	if len(r.Bundle) > MaxBundleBytes {
		return ErrBundleTooLarge
	}
	return validate.Struct(r)
}

// CreateReleaseResponse reports the stored release and whether a patch was
// built against the previous release.
type CreateReleaseResponse struct {
	Release    Release `json:"release"`
	PatchBuilt bool    `json:"patchBuilt"`

	// PatchOperations is the operation count of the built patch, for
	// operator feedback; zero when no patch was built.
	PatchOperations int `json:"patchOperations,omitempty"`
}

// ListReleasesResponse returns an app's releases, newest first.
type ListReleasesResponse struct {
	Releases []Release `json:"releases"`
}

// UpdateRolloutRequest adjusts a release's rollout percentage.
type UpdateRolloutRequest struct {
	RolloutPercentage int `json:"rolloutPercentage" validate:"min=0,max=100"`
}

// Validate checks the request against its declared constraints.
func (r *UpdateRolloutRequest) Validate() error {
	return validate.Struct(r)
}

// UpdateStatusRequest activates or deactivates a release. Deactivating the
// newest release is the rollback path: resolution falls through to the next
// matching release.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// Validate checks the request against its declared constraints.
func (r *UpdateStatusRequest) Validate() error {
	return validate.Struct(r)
}
