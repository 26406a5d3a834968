// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
	"github.com/bundlenudge/bundlenudge/pkg/patch"
	"github.com/bundlenudge/bundlenudge/services/updater/datatypes"
	"github.com/bundlenudge/bundlenudge/services/updater/observability"
	"github.com/bundlenudge/bundlenudge/services/updater/storage"
	badgerstore "github.com/bundlenudge/bundlenudge/services/updater/storage/badger"
)

// CreateRelease handles POST /v1/apps/:appId/releases.
//
// Publishing a release parses and hashes the bundle, uploads it, builds a
// module patch against the previous active release when one exists, and
// stores the release record. The patch is best-effort: if the previous
// bundle cannot be fetched or diffed the release still publishes and
// devices get full-bundle delivery.
func CreateRelease(releases *badgerstore.ReleaseStore, bundles storage.BundleStore, metrics *observability.UpdaterMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("appId")

		var req datatypes.CreateReleaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			if errors.Is(err, datatypes.ErrBundleTooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		newBundle, err := bundle.Parse(req.Bundle)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed bundle: " + err.Error()})
			return
		}

		existing, err := releases.ListByApp(c.Request.Context(), appID)
		if err != nil {
			slog.Error("failed to list releases for publish", "appId", appID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load releases"})
			return
		}
		prior := newestActive(existing)

		release := datatypes.Release{
			ID:                uuid.NewString(),
			AppID:             appID,
			Version:           req.Version,
			Status:            datatypes.StatusActive,
			RolloutPercentage: req.RolloutPercentage,
			MinAppVersion:     req.MinAppVersion,
			MaxAppVersion:     req.MaxAppVersion,
			TargetingRules:    req.TargetingRules,
			BundleHash:        bundle.Hash(req.Bundle),
			CreatedAt:         time.Now().UnixMilli(),
		}

		// Upload the bundle and build the patch concurrently; the patch
		// side needs a fetch of the prior bundle, the slowest step here.
		var builtPatch *patch.Patch
		g, gctx := errgroup.WithContext(c.Request.Context())
		g.Go(func() error {
			url, err := bundles.PutBundle(gctx, appID, release.ID, req.Bundle)
			if err != nil {
				return err
			}
			release.BundleURL = url
			return nil
		})
		if prior != nil {
			g.Go(func() error {
				p, err := buildPatch(gctx, bundles, prior, newBundle)
				if err != nil {
					// Patch failures never block the release.
					metrics.RecordPatchBuild(observability.PatchFailed, 0)
					slog.Warn("patch build failed, publishing without patch",
						"appId", appID, "fromVersion", prior.Version, "error", err)
					return nil
				}
				builtPatch = p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			slog.Error("failed to upload bundle", "appId", appID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store bundle"})
			return
		}

		if builtPatch != nil {
			if builtPatch.Empty() {
				metrics.RecordPatchBuild(observability.PatchSkipped, 0)
			} else if patchJSON, err := builtPatch.Marshal(); err != nil {
				metrics.RecordPatchBuild(observability.PatchFailed, 0)
				slog.Warn("failed to encode patch, publishing without patch",
					"appId", appID, "error", err)
			} else if url, err := bundles.PutPatch(c.Request.Context(), appID, release.ID, patchJSON); err != nil {
				metrics.RecordPatchBuild(observability.PatchFailed, 0)
				slog.Warn("failed to store patch artifact, publishing without patch",
					"appId", appID, "error", err)
			} else {
				release.PatchURL = url
				release.PatchFromVersion = prior.Version
				metrics.RecordPatchBuild(observability.PatchBuilt, len(builtPatch.Operations))
				metrics.RecordPatchSize(len(patchJSON), len(req.Bundle))
			}
		}

		if err := releases.Put(c.Request.Context(), &release); err != nil {
			slog.Error("failed to store release record", "appId", appID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store release"})
			return
		}
		metrics.RecordRelease(len(req.Bundle))

		slog.Info("release published",
			"appId", appID, "releaseId", release.ID, "version", release.Version,
			"rolloutPercentage", release.RolloutPercentage,
			"patchBuilt", release.PatchURL != "")

		resp := datatypes.CreateReleaseResponse{Release: release}
		if release.PatchURL != "" {
			resp.PatchBuilt = true
			resp.PatchOperations = len(builtPatch.Operations)
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// ListReleases handles GET /v1/apps/:appId/releases, newest first.
func ListReleases(releases *badgerstore.ReleaseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("appId")
		records, err := releases.ListByApp(c.Request.Context(), appID)
		if err != nil {
			slog.Error("failed to list releases", "appId", appID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load releases"})
			return
		}
		if records == nil {
			records = []datatypes.Release{}
		}
		c.JSON(http.StatusOK, datatypes.ListReleasesResponse{Releases: records})
	}
}

// UpdateRollout handles PATCH /v1/apps/:appId/releases/:releaseId/rollout.
func UpdateRollout(releases *badgerstore.ReleaseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("appId")
		releaseID := c.Param("releaseId")

		var req datatypes.UpdateRolloutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		release, err := releases.UpdateRollout(c.Request.Context(), appID, releaseID, req.RolloutPercentage)
		if err != nil {
			writeStoreError(c, appID, releaseID, err)
			return
		}
		slog.Info("rollout updated",
			"appId", appID, "releaseId", releaseID, "rolloutPercentage", req.RolloutPercentage)
		c.JSON(http.StatusOK, release)
	}
}

// UpdateStatus handles POST /v1/apps/:appId/releases/:releaseId/status.
// Setting status to inactive is the rollback path.
func UpdateStatus(releases *badgerstore.ReleaseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("appId")
		releaseID := c.Param("releaseId")

		var req datatypes.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		release, err := releases.UpdateStatus(c.Request.Context(), appID, releaseID, req.Status)
		if err != nil {
			writeStoreError(c, appID, releaseID, err)
			return
		}
		slog.Info("release status updated",
			"appId", appID, "releaseId", releaseID, "status", req.Status)
		c.JSON(http.StatusOK, release)
	}
}

// newestActive returns the first active release in a newest-first list.
func newestActive(records []datatypes.Release) *datatypes.Release {
	for i := range records {
		if records[i].Status == datatypes.StatusActive {
			return &records[i]
		}
	}
	return nil
}

// buildPatch fetches and parses the prior release's bundle and diffs it
// against the new one.
func buildPatch(ctx context.Context, bundles storage.BundleStore, prior *datatypes.Release, newBundle *bundle.Bundle) (*patch.Patch, error) {
	priorText, err := bundles.GetBundle(ctx, prior.AppID, prior.ID)
	if err != nil {
		return nil, err
	}
	priorBundle, err := bundle.Parse(priorText)
	if err != nil {
		return nil, err
	}
	return patch.Diff(priorBundle, newBundle), nil
}

func writeStoreError(c *gin.Context, appID, releaseID string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "release not found"})
		return
	}
	slog.Error("release store operation failed",
		"appId", appID, "releaseId", releaseID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update release"})
}
