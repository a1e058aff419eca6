// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keepsakelabs/keepsake/services/gateway/config"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// HandleHealth handles GET /health. Unauthenticated; used by the container
// orchestrator's liveness probe.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "keepsake-gateway",
		})
	}
}

// HandleRoot handles GET /. Reports the configured subsystems so an operator
// hitting the bare host can see what this instance runs.
func HandleRoot(cfg config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"app":     "keepsake-gateway",
			"version": Version,
			"subsystems": gin.H{
				"llm_backend": cfg.LLMBackend,
				"metrics":     cfg.EnableMetrics,
				"retention":   cfg.RetentionEnabled,
			},
		})
	}
}
