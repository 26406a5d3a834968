// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bundlenudge/bundlenudge/services/updater/datatypes"
)

func TestRecordCheck(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordCheck(datatypes.DecisionUpdateAvailable, "")
	metrics.RecordCheck(datatypes.DecisionUpdateAvailable, "")
	metrics.RecordCheck(datatypes.DecisionNoUpdate, "already_current")

	assert.Equal(t, 2.0, testutil.ToFloat64(
		metrics.ChecksTotal.WithLabelValues(datatypes.DecisionUpdateAvailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.ChecksTotal.WithLabelValues(datatypes.DecisionNoUpdate)))
	assert.Equal(t, 0.0, testutil.ToFloat64(
		metrics.ChecksTotal.WithLabelValues(datatypes.DecisionRequiresAppUpdate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.NoUpdateReasonsTotal.WithLabelValues("already_current")))
}

func TestRecordRelease(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordRelease(1024)
	metrics.RecordRelease(2048)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ReleasesCreatedTotal))
}

func TestRecordPatchBuild(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordPatchBuild(PatchBuilt, 7)
	metrics.RecordPatchBuild(PatchSkipped, 0)
	metrics.RecordPatchBuild(PatchFailed, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PatchBuildsTotal.WithLabelValues(PatchBuilt)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PatchBuildsTotal.WithLabelValues(PatchSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PatchBuildsTotal.WithLabelValues(PatchFailed)))
}

func TestRecordServe(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordServe(ModePatch)
	metrics.RecordServe(ModeFullBundle)
	metrics.RecordServe(ModeFullBundle)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PatchServesTotal.WithLabelValues(ModePatch)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PatchServesTotal.WithLabelValues(ModeFullBundle)))
}
