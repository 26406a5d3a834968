// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the updater service.
//
// # Authentication Flow
//
// Management endpoints (publishing releases, adjusting rollouts) require a
// deploy key sent in the X-Nudge-Deploy-Key header. The device-facing
// check endpoint is deliberately unauthenticated: devices in the field
// carry no secrets, and an update check leaks nothing an attacker could
// not get by downloading the app.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DeployKeyHeader carries the deploy key on management requests.
const DeployKeyHeader = "X-Nudge-Deploy-Key"

// DeployKeyAuth creates a Gin middleware that rejects requests whose
// deploy key matches none of the configured keys.
//
// # Description
//
// Key comparison is constant-time per candidate key, so response timing
// does not reveal how much of a guessed key matched. With no keys
// configured every request is rejected; an empty key list is a
// configuration error, not an open door.
//
// # Inputs
//
//   - keys: The accepted deploy keys.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware ready for use on a route group.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func DeployKeyAuth(keys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(DeployKeyHeader)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing deploy key",
			})
			return
		}

		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid deploy key",
		})
	}
}
