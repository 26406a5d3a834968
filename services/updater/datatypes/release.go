// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the updater service.
//
// This file contains the release record and device attribute shapes shared
// by the resolver, the release store, and the HTTP handlers. Request and
// response types for the update-check and release-management endpoints live
// in update.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
	"github.com/bundlenudge/bundlenudge/pkg/version"
)

// =============================================================================
// Release Status
// =============================================================================

const (
	// StatusActive marks a release eligible for resolution.
	StatusActive = "active"
	// StatusInactive marks a rolled-back or paused release; the resolver
	// skips it.
	StatusInactive = "inactive"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate is the validator instance for updater datatypes, extended with
// domain-specific rules in init.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("semverstr", validateSemver)
	_ = validate.RegisterValidation("hashformat", validateHashFormat)
}

// validateSemver accepts semver strings with or without the "v" prefix.
func validateSemver(fl validator.FieldLevel) bool {
	return version.IsValid(fl.Field().String())
}

// validateHashFormat enforces the exact "sha256:<64 hex>" digest shape.
func validateHashFormat(fl validator.FieldLevel) bool {
	return bundle.ValidHash(fl.Field().String())
}

// =============================================================================
// Release
// =============================================================================

// Release is the metadata record for one published bundle version of an
// app. Records are immutable except for RolloutPercentage and Status, which
// operators adjust during a staged rollout.
//
// Releases for an app are considered in strictly descending CreatedAt
// order; the newest matching release wins.
type Release struct {
	// ID uniquely identifies the release (UUID v4).
	ID string `json:"id" validate:"required"`

	// AppID identifies the app this release belongs to.
	AppID string `json:"appId" validate:"required"`

	// Version is the bundle's semver string ("1.4.0").
	Version string `json:"version" validate:"required,semverstr"`

	// Status is StatusActive or StatusInactive.
	Status string `json:"status" validate:"required,oneof=active inactive"`

	// RolloutPercentage is the fraction of eligible devices offered this
	// release, 0-100.
	RolloutPercentage int `json:"rolloutPercentage" validate:"min=0,max=100"`

	// MinAppVersion is the lowest native app version that can run this
	// bundle. Empty means no lower bound.
	MinAppVersion string `json:"minAppVersion,omitempty" validate:"omitempty,semverstr"`

	// MaxAppVersion is the highest native app version this bundle was
	// built for. Empty means no upper bound.
	MaxAppVersion string `json:"maxAppVersion,omitempty" validate:"omitempty,semverstr"`

	// TargetingRules restrict eligibility by device attributes. A device
	// must satisfy every rule. Empty means no restriction.
	TargetingRules []TargetingRule `json:"targetingRules,omitempty" validate:"omitempty,dive"`

	// BundleHash is the content digest of the full bundle text.
	BundleHash string `json:"bundleHash" validate:"required,hashformat"`

	// BundleURL locates the full bundle in object storage.
	BundleURL string `json:"bundleUrl" validate:"required"`

	// PatchURL locates the patch artifact built against the previous
	// release, if one was built.
	PatchURL string `json:"patchUrl,omitempty"`

	// PatchFromVersion is the bundle version the patch applies to. A
	// device reporting this exact current version may be served the
	// patch instead of the full bundle.
	PatchFromVersion string `json:"patchFromVersion,omitempty"`

	// CreatedAt is a Unix millisecond timestamp, the ordering key for
	// resolution.
	CreatedAt int64 `json:"createdAt" validate:"required"`
}

// Validate checks the release record against its declared constraints.
func (r *Release) Validate() error {
	return validate.Struct(r)
}

// =============================================================================
// Targeting Rules
// =============================================================================

// Rule operators. The rule language is deliberately a closed set of
// predicate variants evaluated against DeviceAttributes — no expression
// interpreter.
const (
	// OpEquals matches an attribute exactly.
	OpEquals = "equals"
	// OpIn matches when the attribute is any of Values.
	OpIn = "in"
	// OpSemverRange matches a version attribute against [Min, Max]
	// inclusive; either bound may be empty.
	OpSemverRange = "semver_range"
	// OpMatches matches the attribute against a glob pattern
	// ("iPhone1*").
	OpMatches = "matches"
)

// Targetable attribute names.
const (
	AttrOS          = "os"
	AttrOSVersion   = "osVersion"
	AttrDeviceModel = "deviceModel"
	AttrTimezone    = "timezone"
	AttrLocale      = "locale"
	AttrAppVersion  = "appVersion"
)

// TargetingRule is one predicate over a device attribute.
type TargetingRule struct {
	// Attribute names the device attribute under test.
	Attribute string `json:"attribute" validate:"required,oneof=os osVersion deviceModel timezone locale appVersion"`

	// Operator selects the predicate variant.
	Operator string `json:"operator" validate:"required,oneof=equals in semver_range matches"`

	// Value is the operand for equals and matches.
	Value string `json:"value,omitempty"`

	// Values is the operand set for in.
	Values []string `json:"values,omitempty"`

	// Min and Max are the inclusive bounds for semver_range.
	Min string `json:"min,omitempty" validate:"omitempty,semverstr"`
	Max string `json:"max,omitempty" validate:"omitempty,semverstr"`
}

// =============================================================================
// Device Attributes
// =============================================================================

// DeviceAttributes describes the device asking for an update. Immutable
// per resolution call; supplied by the request after parsing.
type DeviceAttributes struct {
	// DeviceID is the install-scoped stable identifier used for rollout
	// bucketing.
	DeviceID string `json:"deviceId" validate:"required"`

	// OS is "ios" or "android".
	OS string `json:"os" validate:"required"`

	// OSVersion is the operating system version string.
	OSVersion string `json:"osVersion,omitempty"`

	// DeviceModel is the hardware model identifier ("iPhone14,2").
	DeviceModel string `json:"deviceModel,omitempty"`

	// Timezone is the IANA timezone name ("Europe/Berlin").
	Timezone string `json:"timezone,omitempty"`

	// Locale is the BCP-47 locale tag ("de-DE").
	Locale string `json:"locale,omitempty"`

	// AppVersion is the native binary's semver string.
	AppVersion string `json:"appVersion" validate:"required,semverstr"`

	// CurrentBundleVersion is the bundle version the device currently
	// runs, empty on first check-in after install.
	CurrentBundleVersion string `json:"currentBundleVersion,omitempty"`
}

// Attribute returns the named attribute's value and whether the name is a
// targetable attribute.
func (d *DeviceAttributes) Attribute(name string) (string, bool) {
	switch name {
	case AttrOS:
		return d.OS, true
	case AttrOSVersion:
		return d.OSVersion, true
	case AttrDeviceModel:
		return d.DeviceModel, true
	case AttrTimezone:
		return d.Timezone, true
	case AttrLocale:
		return d.Locale, true
	case AttrAppVersion:
		return d.AppVersion, true
	default:
		return "", false
	}
}
