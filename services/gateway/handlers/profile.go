// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the profile, avatar, and coin economy handlers.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/keepsakelabs/keepsake/services/gateway/config"
	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/gateway/middleware"
	"github.com/keepsakelabs/keepsake/services/gateway/observability"
)

// maxSpendAmount caps one purchase. The shop's priciest item is 500 coins;
// anything larger is a client bug.
const maxSpendAmount = 1000

// =============================================================================
// Profile Handlers
// =============================================================================

// HandleGetProfile handles GET /v1/user/profile.
func HandleGetProfile(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleGetProfile")
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

		c.JSON(http.StatusOK, profileResponse(doc))
	}
}

// HandleUpdateProfile handles PUT /v1/user/profile.
//
// Applies a partial update: only the fields the client sent change. Avatar
// changes go through the avatar endpoint so the tier gate applies; a raw
// avatar_id here is rejected for non-switching tiers the same way.
func HandleUpdateProfile(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleUpdateProfile")
		defer span.End()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var req datatypes.ProfileUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		doc, err := deps.Memory.Load(ctx, auth.UserID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			return
		}

		if req.AvatarID != nil && *req.AvatarID != doc.AvatarID {
			if terr := switchAvatar(deps, doc, *req.AvatarID); terr != nil {
				c.JSON(terr.Status, gin.H{"error": terr.Message})
				return
			}
		}
		if req.Name != nil {
			doc.UserProfile.Name = *req.Name
		}
		if req.Age != nil {
			doc.UserProfile.Age = *req.Age
		}
		if req.Gender != nil {
			doc.UserProfile.Gender = *req.Gender
		}
		if req.CompanionName != nil {
			doc.UserProfile.CompanionName = *req.CompanionName
		}
		if req.CurrentOutfit != nil {
			doc.CurrentOutfit = *req.CurrentOutfit
		}
		if req.TimeOffset != nil {
			doc.TimeOffset = *req.TimeOffset
		}

		if err := deps.Memory.Save(ctx, auth.UserID, doc); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save profile"})
			return
		}

		c.JSON(http.StatusOK, profileResponse(doc))
	}
}

// HandleSetAvatar handles POST /v1/user/avatar/:avatar_id.
//
// The first choice is free on every tier (onboarding). Switching afterwards
// requires a tier with persona switching.
func HandleSetAvatar(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleSetAvatar")
		defer span.End()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		avatarID := c.Param("avatar_id")
		if avatarID != "1" && avatarID != "2" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown avatar"})
			return
		}

		doc, err := deps.Memory.Load(ctx, auth.UserID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			return
		}

		if terr := switchAvatar(deps, doc, avatarID); terr != nil {
			c.JSON(terr.Status, gin.H{"error": terr.Message})
			return
		}

		if err := deps.Memory.Save(ctx, auth.UserID, doc); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save profile"})
			return
		}

		c.JSON(http.StatusOK, datatypes.AvatarResponse{
			Message:  "Companion updated",
			AvatarID: avatarID,
		})
	}
}

// switchAvatar applies the avatar change under the persona-switching gate.
func switchAvatar(deps *ChatDeps, doc *datatypes.MemoryDocument, avatarID string) *turnError {
	tierCfg := deps.Tiers.ForTier(doc.Tier)
	if doc.HasChosenAvatar && !tierCfg.PersonaSwitch {
		premium := deps.Tiers.ForTier(config.TierPremium)
		return &turnError{
			Status:  http.StatusForbidden,
			Message: "Persona switching unlocks on the " + premium.Name + " tier.",
		}
	}
	doc.AvatarID = avatarID
	doc.HasChosenAvatar = true
	return nil
}

// =============================================================================
// Coin Economy Handlers
// =============================================================================

// HandleGetBalance handles GET /v1/user/profile/balance.
func HandleGetBalance(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleGetBalance")
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load balance"})
			return
		}

		c.JSON(http.StatusOK, datatypes.BalanceResponse{
			Balance: doc.Balance,
			Tier:    doc.Tier,
		})
	}
}

// HandleSpendCoins handles POST /v1/user/spend/:amount.
//
// Spending coins on the companion warms the relationship: warmth rises by
// half the amount spent, capped at 100.
func HandleSpendCoins(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleSpendCoins")
		defer span.End()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		amount, err := strconv.Atoi(c.Param("amount"))
		if err != nil || amount <= 0 || amount > maxSpendAmount {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be between 1 and 1000"})
			return
		}

		doc, err := deps.Memory.Load(ctx, auth.UserID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load balance"})
			return
		}

		if doc.Balance < amount {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"})
			return
		}

		doc.Balance -= amount
		warmthGained := amount / 2
		newWarmth := doc.EmotionalState.Warmth + warmthGained
		if newWarmth > 100 {
			warmthGained = 100 - doc.EmotionalState.Warmth
			newWarmth = 100
		}
		doc.EmotionalState.Warmth = newWarmth

		if err := deps.Memory.Save(ctx, auth.UserID, doc); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save balance"})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordCoins("spent", amount)
		}
		slog.Info("Coins spent",
			"user_id", auth.UserID, "amount", amount, "new_balance", doc.Balance)

		c.JSON(http.StatusOK, datatypes.SpendResponse{
			NewBalance:   doc.Balance,
			Spent:        amount,
			WarmthGained: warmthGained,
		})
	}
}

// profileResponse maps a memory document to the profile view.
func profileResponse(doc *datatypes.MemoryDocument) datatypes.ProfileResponse {
	return datatypes.ProfileResponse{
		UserProfile:    doc.UserProfile,
		EmotionalState: doc.EmotionalState,
		Balance:        doc.Balance,
		Tier:           doc.Tier,
		AvatarID:       doc.AvatarID,
		CurrentOutfit:  doc.CurrentOutfit,
	}
}
