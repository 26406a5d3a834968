// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bundlenudge/bundlenudge/services/updater/datatypes"
	"github.com/bundlenudge/bundlenudge/services/updater/observability"
	"github.com/bundlenudge/bundlenudge/services/updater/resolve"
	"github.com/bundlenudge/bundlenudge/services/updater/storage"
	badgerstore "github.com/bundlenudge/bundlenudge/services/updater/storage/badger"
)

// CheckUpdate handles POST /v1/updates/check, the device-facing hot path.
//
// The device posts its identity and attributes; the resolver picks at most
// one release. For update_available, the response carries the full bundle
// location, and additionally an inline patch when the device's current
// bundle version is exactly the version the release's patch was built
// from. A device that cannot apply the patch still has the bundle URL to
// fall back to.
func CheckUpdate(releases *badgerstore.ReleaseStore, bundles storage.BundleStore, metrics *observability.UpdaterMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CheckUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		candidates, err := releases.ListByApp(c.Request.Context(), req.AppID)
		if err != nil {
			slog.Error("failed to list releases for update check",
				"appId", req.AppID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load releases"})
			return
		}

		decision := resolve.Resolve(candidates, req.Device)
		metrics.RecordCheck(decision.Outcome, decision.Reason)

		switch decision.Outcome {
		case datatypes.DecisionNoUpdate:
			slog.Debug("update check resolved to no update",
				"appId", req.AppID, "deviceId", req.Device.DeviceID, "reason", decision.Reason)
			c.JSON(http.StatusOK, datatypes.CheckUpdateResponse{
				Decision: datatypes.DecisionNoUpdate,
			})

		case datatypes.DecisionRequiresAppUpdate:
			c.JSON(http.StatusOK, datatypes.CheckUpdateResponse{
				Decision:      datatypes.DecisionRequiresAppUpdate,
				ReleaseID:     decision.Release.ID,
				Version:       decision.Release.Version,
				MinAppVersion: decision.MinAppVersion,
			})

		case datatypes.DecisionUpdateAvailable:
			release := decision.Release
			resp := datatypes.CheckUpdateResponse{
				Decision:   datatypes.DecisionUpdateAvailable,
				ReleaseID:  release.ID,
				Version:    release.Version,
				BundleURL:  release.BundleURL,
				BundleHash: release.BundleHash,
			}
			if patchJSON := inlinePatch(c, bundles, release, &req.Device); patchJSON != nil {
				resp.Patch = patchJSON
				resp.TargetHash = release.BundleHash
				metrics.RecordServe(observability.ModePatch)
			} else {
				metrics.RecordServe(observability.ModeFullBundle)
			}
			slog.Info("update resolved",
				"appId", req.AppID, "deviceId", req.Device.DeviceID,
				"releaseId", release.ID, "version", release.Version,
				"patched", resp.Patch != nil)
			c.JSON(http.StatusOK, resp)
		}
	}
}

// inlinePatch fetches the release's patch artifact when this device is
// eligible for patch delivery. Any fetch failure downgrades to full-bundle
// delivery rather than failing the check.
func inlinePatch(c *gin.Context, bundles storage.BundleStore, release *datatypes.Release, device *datatypes.DeviceAttributes) []byte {
	if release.PatchURL == "" || release.PatchFromVersion == "" {
		return nil
	}
	if device.CurrentBundleVersion != release.PatchFromVersion {
		return nil
	}
	patchJSON, err := bundles.GetPatch(c.Request.Context(), release.AppID, release.ID)
	if err != nil {
		slog.Warn("failed to fetch patch artifact, serving full bundle",
			"appId", release.AppID, "releaseId", release.ID, "error", err)
		return nil
	}
	return patchJSON
}
