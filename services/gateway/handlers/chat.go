// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/keepsakelabs/keepsake/services/gateway/companion"
	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/gateway/middleware"
	"github.com/keepsakelabs/keepsake/services/gateway/observability"
	"github.com/keepsakelabs/keepsake/services/llm"
)

var chatTracer = otel.Tracer("keepsake.gateway.handlers")

// defaultHistoryLimit is the history page size when the client omits ?limit.
const defaultHistoryLimit = 50

// =============================================================================
// Synchronous Chat
// =============================================================================

// HandleChatMessage handles POST /v1/chat/message.
//
// # Description
//
// Runs one full companion turn and returns the reply, the updated emotional
// state, the new coin balance, and the model that answered. The streaming
// endpoint is the primary path for the mobile client; this one serves
// integrations that cannot consume SSE.
func HandleChatMessage(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatMessage")
		defer span.End()

		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(observability.EndpointMessage, success)
			}
		}()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordError(observability.EndpointMessage, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			recordError(observability.EndpointMessage, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		st, terr := prepareTurn(ctx, deps, auth.UserID, &req, false)
		if terr != nil {
			recordError(observability.EndpointMessage, terr.Code)
			c.JSON(terr.Status, gin.H{"error": terr.Message})
			return
		}

		answer, err := st.chatBackend(deps).Chat(ctx, st.messages, st.generationParams())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Chat generation failed",
				"user_id", auth.UserID, "model", st.model, "error", err)
			recordError(observability.EndpointMessage, observability.ErrorCodeLLMError)
			c.JSON(http.StatusInternalServerError, gin.H{"error": sanitizeErrorForClient(err.Error())})
			return
		}

		// The reply exists even if persistence fails, so deliver it either way.
		if err := finalizeTurn(ctx, deps, st, answer); err != nil {
			recordError(observability.EndpointMessage, observability.ErrorCodeStorageError)
		}

		success = true
		c.JSON(http.StatusOK, datatypes.ChatResponse{
			Response:       answer,
			EmotionalState: st.doc.EmotionalState,
			Balance:        st.doc.Balance,
			ModelUsed:      st.model,
		})
	}
}

// =============================================================================
// Session Greeting
// =============================================================================

// HandleGreeting handles POST /v1/chat/greeting.
//
// # Description
//
// Generates the session-opening line: a time-of-day greeting, optionally
// recalling a significant event from the last day or two. Recall happens at
// most once per calendar day and only when the client vibe is social enough
// (>= 30). The greeting is appended to history so the conversation reads
// continuously.
func HandleGreeting(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleGreeting")
		defer span.End()

		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(observability.EndpointGreeting, success)
			}
		}()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		// The client may POST an empty body for a neutral-vibe greeting.
		var req datatypes.GreetingRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			recordError(observability.EndpointGreeting, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			recordError(observability.EndpointGreeting, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		doc, err := deps.Memory.Load(ctx, auth.UserID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordError(observability.EndpointGreeting, observability.ErrorCodeStorageError)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation state"})
			return
		}

		now := time.Now()
		eventName := recallableEvent(doc, req.Vibe, now)
		if eventName != "" {
			doc.ActiveContext.LastRecalledDate = now.Format("2006-01-02")
		}

		prompt, period := companion.GreetingPrompt(
			deps.Personas, doc.AvatarID, req.Vibe, doc.TimeOffset, eventName, now)

		greeting, err := deps.Utility.Generate(ctx, prompt, llm.GenerationParams{})
		if err != nil {
			// A session must still open; fall back to the canonical line.
			span.RecordError(err)
			slog.Warn("Greeting generation failed, using fallback",
				"user_id", auth.UserID, "error", err)
			recordError(observability.EndpointGreeting, observability.ErrorCodeLLMError)
			greeting = "Good " + period + ". How is it going?"
		}

		doc.History = append(doc.History, datatypes.ChatMessage{Role: "assistant", Content: greeting})
		if err := deps.Memory.Save(ctx, auth.UserID, doc); err != nil {
			slog.Error("Failed to save greeting", "user_id", auth.UserID, "error", err)
			recordError(observability.EndpointGreeting, observability.ErrorCodeStorageError)
		}

		success = true
		c.JSON(http.StatusOK, datatypes.GreetingResponse{
			Greeting:   greeting,
			TimePeriod: period,
		})
	}
}

// recallableEvent returns the significant event the greeting should mention,
// or "" when there is nothing fresh to recall. An event qualifies when it is
// at most a day old, has not been recalled today, and the vibe is social.
func recallableEvent(doc *datatypes.MemoryDocument, vibe int, now time.Time) string {
	ac := doc.ActiveContext
	if ac.SignificantEvent == "" || ac.EventDate == "" || vibe < 30 {
		return ""
	}
	eventDate, err := time.Parse("2006-01-02", ac.EventDate)
	if err != nil {
		return ""
	}
	daysSince := int(now.Sub(eventDate).Hours() / 24)
	if daysSince > 1 || ac.LastRecalledDate == now.Format("2006-01-02") {
		return ""
	}
	return ac.SignificantEvent
}

// =============================================================================
// Conversation History
// =============================================================================

// HandleChatHistory handles GET /v1/chat/history.
//
// Returns the visible conversation tail. System messages never leave the
// server. ?limit caps the page (default 50); total_messages counts the
// page actually served.
func HandleChatHistory(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatHistory")
		defer span.End()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		doc, err := deps.Memory.Load(ctx, auth.UserID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation state"})
			return
		}

		visible := make([]datatypes.ChatMessage, 0, len(doc.History))
		for _, msg := range doc.History {
			if msg.Role != "system" {
				visible = append(visible, msg)
			}
		}

		page := lastMessages(visible, limit)
		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			History:       page,
			TotalMessages: len(page),
		})
	}
}

// recordError is shorthand for the nil-guarded metrics error counter.
func recordError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, code)
	}
}
