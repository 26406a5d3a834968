// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
)

func validRelease() Release {
	return Release{
		ID:                "9f6f2f5e-4a6e-4c7a-9a1c-0f4a2d3b5c6d",
		AppID:             "app-1",
		Version:           "1.2.0",
		Status:            StatusActive,
		RolloutPercentage: 50,
		BundleHash:        bundle.HashString("bundle text"),
		BundleURL:         "gs://bundles/app-1/rel-1/main.jsbundle",
		CreatedAt:         1700000000000,
	}
}

func TestRelease_Validate(t *testing.T) {
	t.Run("valid release passes", func(t *testing.T) {
		r := validRelease()
		require.NoError(t, r.Validate())
	})

	t.Run("bad semver rejected", func(t *testing.T) {
		r := validRelease()
		r.Version = "latest"
		assert.Error(t, r.Validate())
	})

	t.Run("bad status rejected", func(t *testing.T) {
		r := validRelease()
		r.Status = "draft"
		assert.Error(t, r.Validate())
	})

	t.Run("rollout percentage bounds", func(t *testing.T) {
		r := validRelease()
		r.RolloutPercentage = 101
		assert.Error(t, r.Validate())
		r.RolloutPercentage = -1
		assert.Error(t, r.Validate())
	})

	t.Run("malformed bundle hash rejected", func(t *testing.T) {
		r := validRelease()
		r.BundleHash = "sha256:tooshort"
		assert.Error(t, r.Validate())
	})

	t.Run("bad targeting rule attribute rejected", func(t *testing.T) {
		r := validRelease()
		r.TargetingRules = []TargetingRule{{Attribute: "batteryLevel", Operator: OpEquals, Value: "full"}}
		assert.Error(t, r.Validate())
	})
}

func TestCheckUpdateRequest_Validate(t *testing.T) {
	req := CheckUpdateRequest{
		AppID: "app-1",
		Device: DeviceAttributes{
			DeviceID:   "dev-42",
			OS:         "ios",
			AppVersion: "1.2.0",
		},
	}
	require.NoError(t, req.Validate())

	req.Device.AppVersion = "not-semver"
	assert.Error(t, req.Validate())

	req.Device.AppVersion = "1.2.0"
	req.Device.DeviceID = ""
	assert.Error(t, req.Validate())
}

func TestCreateReleaseRequest_Validate(t *testing.T) {
	req := CreateReleaseRequest{
		Version:           "1.3.0",
		RolloutPercentage: 10,
		Bundle:            `__d(function(){},0,[]);`,
	}
	require.NoError(t, req.Validate())

	t.Run("bundle size cap", func(t *testing.T) {
		big := req
		big.Bundle = strings.Repeat("x", MaxBundleBytes+1)
		assert.ErrorIs(t, big.Validate(), ErrBundleTooLarge)
	})

	t.Run("bad min app version", func(t *testing.T) {
		bad := req
		bad.MinAppVersion = "one.two"
		assert.Error(t, bad.Validate())
	})
}

func TestDeviceAttributes_Attribute(t *testing.T) {
	d := DeviceAttributes{
		OS:          "android",
		OSVersion:   "14",
		DeviceModel: "Pixel 8",
		Timezone:    "Europe/Berlin",
		Locale:      "de-DE",
		AppVersion:  "2.0.0",
	}

	for name, want := range map[string]string{
		AttrOS:          "android",
		AttrOSVersion:   "14",
		AttrDeviceModel: "Pixel 8",
		AttrTimezone:    "Europe/Berlin",
		AttrLocale:      "de-DE",
		AttrAppVersion:  "2.0.0",
	} {
		got, ok := d.Attribute(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok := d.Attribute("batteryLevel")
	assert.False(t, ok)
}
