// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
	"github.com/bundlenudge/bundlenudge/pkg/patch"
	"github.com/bundlenudge/bundlenudge/services/updater/datatypes"
	"github.com/bundlenudge/bundlenudge/services/updater/observability"
	badgerstore "github.com/bundlenudge/bundlenudge/services/updater/storage/badger"
	"github.com/bundlenudge/bundlenudge/services/updater/storage/memory"
)

const (
	bundleV1 = "var __DEV__=false;\n__d(function(){return 1},0,[1]);\n__d(function(){return 2},1,[]);\nrequire(0);"
	bundleV2 = "var __DEV__=false;\n__d(function(){return 1},0,[1]);\n__d(function(){return 42},1,[]);\nrequire(0);"
)

type testEnv struct {
	router   *gin.Engine
	releases *badgerstore.ReleaseStore
	bundles  *memory.Store
	metrics  *observability.UpdaterMetrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	releases := badgerstore.NewReleaseStore(db)
	t.Cleanup(func() { releases.Close() })

	bundles := memory.NewStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.POST("/v1/updates/check", CheckUpdate(releases, bundles, metrics))
	router.POST("/v1/apps/:appId/releases", CreateRelease(releases, bundles, metrics))
	router.GET("/v1/apps/:appId/releases", ListReleases(releases))
	router.PATCH("/v1/apps/:appId/releases/:releaseId/rollout", UpdateRollout(releases))
	router.POST("/v1/apps/:appId/releases/:releaseId/status", UpdateStatus(releases))

	return &testEnv{router: router, releases: releases, bundles: bundles, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) publish(t *testing.T, version, bundleText string) datatypes.CreateReleaseResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/apps/app-1/releases", datatypes.CreateReleaseRequest{
		Version:           version,
		RolloutPercentage: 100,
		Bundle:            bundleText,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp datatypes.CreateReleaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) check(t *testing.T, device datatypes.DeviceAttributes) datatypes.CheckUpdateResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/updates/check", datatypes.CheckUpdateRequest{
		AppID:  "app-1",
		Device: device,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp datatypes.CheckUpdateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func testCheckDevice() datatypes.DeviceAttributes {
	return datatypes.DeviceAttributes{
		DeviceID:   "dev-42",
		OS:         "ios",
		AppVersion: "1.0.0",
	}
}

func TestCreateRelease_FirstReleaseHasNoPatch(t *testing.T) {
	env := newTestEnv(t)

	resp := env.publish(t, "1.0.0", bundleV1)
	assert.False(t, resp.PatchBuilt)
	assert.Equal(t, bundle.Hash(bundleV1), resp.Release.BundleHash)
	assert.NotEmpty(t, resp.Release.BundleURL)
	assert.Empty(t, resp.Release.PatchURL)

	stored, err := env.bundles.GetBundle(t.Context(), "app-1", resp.Release.ID)
	require.NoError(t, err)
	assert.Equal(t, bundleV1, stored)
}

func TestCreateRelease_SecondReleaseBuildsPatch(t *testing.T) {
	env := newTestEnv(t)

	env.publish(t, "1.0.0", bundleV1)
	second := env.publish(t, "1.1.0", bundleV2)

	assert.True(t, second.PatchBuilt)
	assert.Equal(t, 1, second.PatchOperations, "one module changed between the bundles")
	assert.Equal(t, "1.0.0", second.Release.PatchFromVersion)
	assert.NotEmpty(t, second.Release.PatchURL)

	patchJSON, err := env.bundles.GetPatch(t.Context(), "app-1", second.Release.ID)
	require.NoError(t, err)
	p, err := patch.Unmarshal(patchJSON)
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
	assert.Equal(t, patch.OpReplace, p.Operations[0].Op)
	assert.Equal(t, 1, p.Operations[0].ModuleID)
}

// failingPatchStore stores bundles normally but cannot persist patches.
type failingPatchStore struct {
	*memory.Store
}

func (s *failingPatchStore) PutPatch(ctx context.Context, appID, releaseID string, patchJSON []byte) (string, error) {
	return "", errors.New("object store unavailable")
}

func TestCreateRelease_DroppedPatchIsAccounted(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	releases := badgerstore.NewReleaseStore(db)
	t.Cleanup(func() { releases.Close() })

	bundles := &failingPatchStore{Store: memory.NewStore()}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.POST("/v1/apps/:appId/releases", CreateRelease(releases, bundles, metrics))
	env := &testEnv{router: router, releases: releases, metrics: metrics}

	env.publish(t, "1.0.0", bundleV1)
	second := env.publish(t, "1.1.0", bundleV2)

	// The release still publishes, downgraded to full-bundle delivery,
	// and the dropped patch shows up in the failure counter.
	assert.False(t, second.PatchBuilt)
	assert.Empty(t, second.Release.PatchURL)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.PatchBuildsTotal.WithLabelValues(observability.PatchFailed)))
}

func TestCreateRelease_RejectsMalformedBundle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/apps/app-1/releases", datatypes.CreateReleaseRequest{
		Version:           "1.0.0",
		RolloutPercentage: 100,
		Bundle:            "__d(function(){},0,[]); __d(function(){},0,[]);",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRelease_RejectsInvalidVersion(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/apps/app-1/releases", datatypes.CreateReleaseRequest{
		Version:           "not-a-version",
		RolloutPercentage: 100,
		Bundle:            bundleV1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckUpdate_NoReleases(t *testing.T) {
	env := newTestEnv(t)

	resp := env.check(t, testCheckDevice())
	assert.Equal(t, datatypes.DecisionNoUpdate, resp.Decision)
	assert.Empty(t, resp.ReleaseID)
}

func TestCheckUpdate_FullBundleDelivery(t *testing.T) {
	env := newTestEnv(t)
	published := env.publish(t, "1.0.0", bundleV1)

	resp := env.check(t, testCheckDevice())
	assert.Equal(t, datatypes.DecisionUpdateAvailable, resp.Decision)
	assert.Equal(t, published.Release.ID, resp.ReleaseID)
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Equal(t, bundle.Hash(bundleV1), resp.BundleHash)
	assert.NotEmpty(t, resp.BundleURL)
	assert.Nil(t, resp.Patch, "no patch base, full bundle only")
}

func TestCheckUpdate_PatchDelivery(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t, "1.0.0", bundleV1)
	second := env.publish(t, "1.1.0", bundleV2)

	device := testCheckDevice()
	device.CurrentBundleVersion = "1.0.0"

	resp := env.check(t, device)
	require.Equal(t, datatypes.DecisionUpdateAvailable, resp.Decision)
	require.NotNil(t, resp.Patch, "device on the patch base gets the inline patch")
	assert.Equal(t, second.Release.BundleHash, resp.TargetHash)
	assert.NotEmpty(t, resp.BundleURL, "bundle URL stays available as fallback")

	// The served patch must verifiably rebuild the new bundle.
	rebuilt, err := patch.ApplyVerified(bundleV1, mustUnmarshalPatch(t, resp.Patch), resp.TargetHash)
	require.NoError(t, err)
	assert.Equal(t, bundleV2, rebuilt)
}

func TestCheckUpdate_DeviceOffPatchBaseGetsFullBundle(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t, "1.0.0", bundleV1)
	env.publish(t, "1.1.0", bundleV2)

	device := testCheckDevice()
	device.CurrentBundleVersion = "0.9.0"

	resp := env.check(t, device)
	assert.Equal(t, datatypes.DecisionUpdateAvailable, resp.Decision)
	assert.Nil(t, resp.Patch)
	assert.NotEmpty(t, resp.BundleURL)
}

func TestCheckUpdate_AlreadyCurrent(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t, "1.1.0", bundleV2)

	device := testCheckDevice()
	device.CurrentBundleVersion = "1.1.0"

	resp := env.check(t, device)
	assert.Equal(t, datatypes.DecisionNoUpdate, resp.Decision)
}

func TestCheckUpdate_RequiresAppUpdate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/apps/app-1/releases", datatypes.CreateReleaseRequest{
		Version:           "2.0.0",
		RolloutPercentage: 100,
		MinAppVersion:     "3.0.0",
		Bundle:            bundleV1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := env.check(t, testCheckDevice())
	assert.Equal(t, datatypes.DecisionRequiresAppUpdate, resp.Decision)
	assert.Equal(t, "3.0.0", resp.MinAppVersion)
	assert.Empty(t, resp.BundleURL, "no bundle offered when the binary is too old")
}

func TestCheckUpdate_RejectsInvalidBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/updates/check", datatypes.CheckUpdateRequest{
		AppID: "app-1",
		// Missing device attributes.
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReleases(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/apps/app-1/releases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var empty datatypes.ListReleasesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Empty(t, empty.Releases)

	env.publish(t, "1.0.0", bundleV1)
	env.publish(t, "1.1.0", bundleV2)

	rec = env.do(t, http.MethodGet, "/v1/apps/app-1/releases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.ListReleasesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Releases, 2)
	assert.Equal(t, "1.1.0", resp.Releases[0].Version, "newest first")
}

func TestUpdateRollout(t *testing.T) {
	env := newTestEnv(t)
	published := env.publish(t, "1.0.0", bundleV1)

	rec := env.do(t, http.MethodPatch,
		"/v1/apps/app-1/releases/"+published.Release.ID+"/rollout",
		datatypes.UpdateRolloutRequest{RolloutPercentage: 25})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated datatypes.Release
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 25, updated.RolloutPercentage)
}

func TestUpdateRollout_UnknownRelease(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch,
		"/v1/apps/app-1/releases/rel-missing/rollout",
		datatypes.UpdateRolloutRequest{RolloutPercentage: 25})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatus_RollbackFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	first := env.publish(t, "1.0.0", bundleV1)
	second := env.publish(t, "1.1.0", bundleV2)

	rec := env.do(t, http.MethodPost,
		"/v1/apps/app-1/releases/"+second.Release.ID+"/status",
		datatypes.UpdateStatusRequest{Status: datatypes.StatusInactive})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := env.check(t, testCheckDevice())
	assert.Equal(t, datatypes.DecisionUpdateAvailable, resp.Decision)
	assert.Equal(t, first.Release.ID, resp.ReleaseID,
		"deactivating the newest release rolls devices back to the previous one")
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	published := env.publish(t, "1.0.0", bundleV1)

	rec := env.do(t, http.MethodPost,
		"/v1/apps/app-1/releases/"+published.Release.ID+"/status",
		map[string]string{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustUnmarshalPatch(t *testing.T, data []byte) *patch.Patch {
	t.Helper()
	p, err := patch.Unmarshal(data)
	require.NoError(t, err)
	return p
}
