// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the scene picker handlers.
package handlers

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/gateway/middleware"
)

// =============================================================================
// Scene Handlers
// =============================================================================

// HandleListScenes handles GET /v1/scenes.
//
// Lists every scene with its availability at the caller's tier, sorted by
// the tier they unlock at so the picker shows free scenes first.
func HandleListScenes(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleListScenes")
		defer span.End()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		doc, err := deps.Memory.Load(ctx, auth.UserID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			return
		}

		scenes := make([]datatypes.SceneStatus, 0, len(deps.Tiers.Scenes))
		for name, info := range deps.Tiers.Scenes {
			scenes = append(scenes, datatypes.SceneStatus{
				Name:         name,
				Available:    deps.Tiers.SceneAvailable(name, doc.Tier),
				TierRequired: info.TierRequired,
				Description:  info.Description,
			})
		}
		sort.Slice(scenes, func(i, j int) bool {
			if scenes[i].TierRequired != scenes[j].TierRequired {
				return scenes[i].TierRequired < scenes[j].TierRequired
			}
			return scenes[i].Name < scenes[j].Name
		})

		c.JSON(http.StatusOK, datatypes.ScenesResponse{
			Scenes:      scenes,
			CurrentTier: doc.Tier,
		})
	}
}

// HandleGetScene handles GET /v1/scenes/:name.
//
// Returns one scene's detail with an upgrade nudge when the caller's tier
// has not unlocked it.
func HandleGetScene(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleGetScene")
		defer span.End()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		name := c.Param("name")
		info, ok := deps.Tiers.Scenes[name]
		if !ok {
			valid := make([]string, 0, len(deps.Tiers.Scenes))
			for sceneName := range deps.Tiers.Scenes {
				valid = append(valid, sceneName)
			}
			sort.Strings(valid)
			c.JSON(http.StatusNotFound, gin.H{
				"error":        "unknown scene",
				"valid_scenes": valid,
			})
			return
		}

		doc, err := deps.Memory.Load(ctx, auth.UserID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			return
		}

		available := deps.Tiers.SceneAvailable(name, doc.Tier)
		var unlockMessage *string
		if !available {
			tierName := deps.Tiers.ForTier(info.TierRequired).Name
			msg := fmt.Sprintf("%s unlocks on the %s tier.", name, tierName)
			unlockMessage = &msg
		}

		c.JSON(http.StatusOK, datatypes.SceneDetailResponse{
			Name:          name,
			Available:     available,
			TierRequired:  info.TierRequired,
			Description:   info.Description,
			CurrentTier:   doc.Tier,
			UnlockMessage: unlockMessage,
		})
	}
}
