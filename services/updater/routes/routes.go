// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bundlenudge/bundlenudge/services/updater/handlers"
	"github.com/bundlenudge/bundlenudge/services/updater/middleware"
	"github.com/bundlenudge/bundlenudge/services/updater/observability"
	"github.com/bundlenudge/bundlenudge/services/updater/storage"
	badgerstore "github.com/bundlenudge/bundlenudge/services/updater/storage/badger"
)

// SetupRoutes wires the updater's endpoints.
//
// The check endpoint is public: devices carry no credentials. Release
// management requires a deploy key.
func SetupRoutes(router *gin.Engine, releases *badgerstore.ReleaseStore, bundles storage.BundleStore,
	metrics *observability.UpdaterMetrics, deployKeys []string) {

	router.GET("/health", handlers.Health())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/updates/check", handlers.CheckUpdate(releases, bundles, metrics))

		// Release management routes, deploy-key gated
		apps := v1.Group("/apps", middleware.DeployKeyAuth(deployKeys))
		{
			apps.POST("/:appId/releases", handlers.CreateRelease(releases, bundles, metrics))
			apps.GET("/:appId/releases", handlers.ListReleases(releases))
			apps.PATCH("/:appId/releases/:releaseId/rollout", handlers.UpdateRollout(releases))
			apps.POST("/:appId/releases/:releaseId/status", handlers.UpdateStatus(releases))
		}
	}
}
