// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the updater.
//
// # Description
//
// Metrics cover the two hot paths of the service: devices checking for
// updates and operators publishing releases. Decision counters answer
// "what fraction of checks get an update", patch counters answer "how
// often does the differ actually save bandwidth", and the size histograms
// track the payloads both paths move.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "bundlenudge"

// Subsystem for updater metrics
const updaterSubsystem = "updater"

// UpdaterMetrics holds all Prometheus metrics for the updater service.
type UpdaterMetrics struct {
	// ChecksTotal counts update checks by decision.
	// Labels: decision (update_available, no_update, requires_app_update)
	ChecksTotal *prometheus.CounterVec

	// NoUpdateReasonsTotal counts no_update decisions by resolver reason.
	// Labels: reason (no_matching_release, already_current, above_max_app_version)
	NoUpdateReasonsTotal *prometheus.CounterVec

	// ReleasesCreatedTotal counts published releases.
	ReleasesCreatedTotal prometheus.Counter

	// PatchBuildsTotal counts patch construction outcomes at publish time.
	// Labels: status (built, skipped, failed)
	PatchBuildsTotal *prometheus.CounterVec

	// PatchServesTotal counts checks answered with an inline patch versus
	// a full bundle URL.
	// Labels: mode (patch, full_bundle)
	PatchServesTotal *prometheus.CounterVec

	// BundleSizeBytes measures published bundle sizes.
	BundleSizeBytes prometheus.Histogram

	// PatchOperations measures operation counts of built patches.
	PatchOperations prometheus.Histogram

	// PatchSizeRatio measures patch bytes over bundle bytes for built
	// patches. Values near 1 mean the differ saved nothing.
	PatchSizeRatio prometheus.Histogram
}

// DefaultMetrics is the singleton instance registered against the default
// Prometheus registry. Initialized by InitMetrics().
var DefaultMetrics *UpdaterMetrics

// InitMetrics initializes the default metrics instance.
//
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *UpdaterMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics creates metrics registered against reg. Tests pass their own
// registry to stay isolated from the default one.
func NewMetrics(reg prometheus.Registerer) *UpdaterMetrics {
	factory := promauto.With(reg)

	return &UpdaterMetrics{
		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "checks_total",
				Help:      "Total update checks by decision",
			},
			[]string{"decision"},
		),

		NoUpdateReasonsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "no_update_reasons_total",
				Help:      "no_update decisions by resolver reason",
			},
			[]string{"reason"},
		),

		ReleasesCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "releases_created_total",
				Help:      "Total releases published",
			},
		),

		PatchBuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "patch_builds_total",
				Help:      "Patch construction outcomes at publish time",
			},
			[]string{"status"},
		),

		PatchServesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "patch_serves_total",
				Help:      "Update responses by delivery mode",
			},
			[]string{"mode"},
		),

		BundleSizeBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "bundle_size_bytes",
				Help:      "Published bundle sizes in bytes",
				Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
			},
		),

		PatchOperations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "patch_operations",
				Help:      "Operation counts of built patches",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		PatchSizeRatio: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: updaterSubsystem,
				Name:      "patch_size_ratio",
				Help:      "Patch bytes over bundle bytes for built patches",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1},
			},
		),
	}
}

// Patch build status label values.
const (
	PatchBuilt   = "built"
	PatchSkipped = "skipped"
	PatchFailed  = "failed"
)

// Delivery mode label values.
const (
	ModePatch      = "patch"
	ModeFullBundle = "full_bundle"
)

// RecordCheck records an update check decision. reason is the resolver's
// explanation for no_update decisions, empty otherwise.
func (m *UpdaterMetrics) RecordCheck(decision, reason string) {
	m.ChecksTotal.WithLabelValues(decision).Inc()
	if reason != "" {
		m.NoUpdateReasonsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordRelease records a published release and its bundle size.
func (m *UpdaterMetrics) RecordRelease(bundleBytes int) {
	m.ReleasesCreatedTotal.Inc()
	m.BundleSizeBytes.Observe(float64(bundleBytes))
}

// RecordPatchBuild records a patch construction outcome. For built
// patches, operations is the patch's operation count.
func (m *UpdaterMetrics) RecordPatchBuild(status string, operations int) {
	m.PatchBuildsTotal.WithLabelValues(status).Inc()
	if status == PatchBuilt {
		m.PatchOperations.Observe(float64(operations))
	}
}

// RecordPatchSize records how much smaller the patch is than the bundle
// it rebuilds.
func (m *UpdaterMetrics) RecordPatchSize(patchBytes, bundleBytes int) {
	if bundleBytes > 0 {
		m.PatchSizeRatio.Observe(float64(patchBytes) / float64(bundleBytes))
	}
}

// RecordServe records the delivery mode of an update_available response.
func (m *UpdaterMetrics) RecordServe(mode string) {
	m.PatchServesTotal.WithLabelValues(mode).Inc()
}
