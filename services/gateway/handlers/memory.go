// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the memory inspection and management handlers.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/gateway/memory"
	"github.com/keepsakelabs/keepsake/services/gateway/middleware"
)

// =============================================================================
// Memory Handlers
// =============================================================================

// HandleGetFacts handles GET /v1/memory/facts.
//
// Returns the facts visible at the caller's tier. Free-tier facts older than
// the memory window are hidden, not deleted; ExpiredCount tells the client
// how many an upgrade would bring back.
func HandleGetFacts(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleGetFacts")
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load memory"})
			return
		}

		tierCfg := deps.Tiers.ForTier(doc.Tier)
		facts, expired := memory.ValidFactsWithExpiry(doc.UserFacts, doc.Tier, tierCfg.MemoryHours, time.Now())

		c.JSON(http.StatusOK, datatypes.FactsResponse{
			Facts:        facts,
			ExpiredCount: expired,
			Tier:         doc.Tier,
		})
	}
}

// HandleClearFacts handles DELETE /v1/memory/facts.
//
// Clears every stored fact and the active event context. History and
// emotional state are untouched; this is the "forget what you know about me"
// control, not an account reset.
func HandleClearFacts(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleClearFacts")
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load memory"})
			return
		}

		doc.UserFacts = []datatypes.UserFact{}
		doc.ActiveContext = datatypes.ActiveContext{}

		if err := deps.Memory.Save(ctx, auth.UserID, doc); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear facts"})
			return
		}

		c.JSON(http.StatusOK, datatypes.SyncResponse{
			Success: true,
			Message: "Stored facts cleared",
		})
	}
}

// HandleMemorySync handles POST /v1/memory/sync.
//
// Forces a re-read of the memory document and reports its fact and message
// counts. Background tasks write behind the client's back; this endpoint
// lets the client confirm what the backend currently holds.
func HandleMemorySync(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleMemorySync")
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync memory"})
			return
		}

		c.JSON(http.StatusOK, datatypes.SyncResponse{
			Success: true,
			Message: fmt.Sprintf("Synced %d facts, %d messages", len(doc.UserFacts), len(doc.History)),
		})
	}
}

// HandleEmotionalState handles GET /v1/memory/emotional-state.
func HandleEmotionalState(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleEmotionalState")
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load memory"})
			return
		}

		c.JSON(http.StatusOK, datatypes.EmotionalStateResponse{
			EmotionalState: doc.EmotionalState,
			ActiveContext:  doc.ActiveContext,
		})
	}
}

// HandleMemoryStats handles GET /v1/memory/stats.
func HandleMemoryStats(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleMemoryStats")
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
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load memory"})
			return
		}

		userMsgs := doc.UserMessageCount()
		assistantMsgs := 0
		for _, msg := range doc.History {
			if msg.Role == "assistant" {
				assistantMsgs++
			}
		}

		tierCfg := deps.Tiers.ForTier(doc.Tier)
		visibleFacts, expired := memory.ValidFactsWithExpiry(doc.UserFacts, doc.Tier, tierCfg.MemoryHours, time.Now())

		c.JSON(http.StatusOK, datatypes.MemoryStatsResponse{
			TotalMessages:     len(doc.History),
			UserMessages:      userMsgs,
			AssistantMessages: assistantMsgs,
			FactsCount:        len(visibleFacts),
			ExpiredFactsCount: expired,
			Tier:              doc.Tier,
			EmotionalState:    doc.EmotionalState,
			LastActive:        doc.LastActiveTimestamp,
			Balance:           doc.Balance,
		})
	}
}
