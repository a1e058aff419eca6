// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/gateway/middleware"
	"github.com/keepsakelabs/keepsake/services/gateway/observability"
	"github.com/keepsakelabs/keepsake/services/llm"
)

// keepAliveInterval is how often the heartbeat goroutine sends an SSE
// comment while the model is thinking. Must stay under the 30s idle timeout
// most load balancers ship with.
const keepAliveInterval = 15 * time.Second

// =============================================================================
// Streaming Chat
// =============================================================================

// HandleChatStream handles POST /v1/chat/stream.
//
// # Description
//
// Runs one companion turn as a Server-Sent Events stream. The pipeline is
// the same as the synchronous endpoint; the difference is delivery:
//
//	status  "Thinking..."
//	token   (one per model chunk)
//	done    model, balance, emotional state
//
// Tier gates fail as plain JSON before any SSE bytes are written, so the
// client can branch on the HTTP status. Once streaming starts, failures
// arrive as error events instead.
//
// # Limitations
//
//   - The reply accumulates in locked memory; see TokenAccumulator for the
//     fallback behavior when the mlock limit is too small.
func HandleChatStream(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChatStream")
		defer span.End()

		start := time.Now()
		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(observability.EndpointStream, success)
				m.RecordStreamDuration(observability.EndpointStream, time.Since(start).Seconds(), success)
			}
		}()

		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		span.SetAttributes(attribute.String("user.id", auth.UserID))

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordError(observability.EndpointStream, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			recordError(observability.EndpointStream, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		st, terr := prepareTurn(ctx, deps, auth.UserID, &req, true)
		if terr != nil {
			recordError(observability.EndpointStream, terr.Code)
			c.JSON(terr.Status, gin.H{"error": terr.Message})
			return
		}
		span.SetAttributes(
			attribute.String("chat.model", st.model),
			attribute.String("chat.routing_reason", st.reason),
		)

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordError(observability.EndpointStream, observability.ErrorCodeInternal)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.StreamStarted(observability.EndpointStream)
			defer m.StreamEnded(observability.EndpointStream)
		}

		if err := writer.WriteStatus("Thinking..."); err != nil {
			slog.Warn("Failed to write the initial status event", "error", err)
			return
		}

		heartbeatDone := make(chan struct{})
		defer close(heartbeatDone)
		go runKeepAlive(writer, heartbeatDone, observability.EndpointStream)

		answer, err := relayStream(ctx, deps, st, writer, observability.EndpointStream, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}

		// Persistence failure is logged inside; the client still gets the
		// reply it watched stream in.
		if err := finalizeTurn(ctx, deps, st, answer); err != nil {
			recordError(observability.EndpointStream, observability.ErrorCodeStorageError)
		}

		if err := writer.WriteDone(st.model, st.doc.Balance, st.doc.EmotionalState); err != nil {
			slog.Warn("Failed to write the done event", "user_id", auth.UserID, "error", err)
			return
		}
		success = true
	}
}

// =============================================================================
// Stream Relay
// =============================================================================

// relayStream drives one model stream into an SSEWriter.
//
// # Description
//
// Forwards token events to the client while accumulating the full reply in
// locked memory, records time-to-first-token and the token count, and maps
// a context cancellation to the client-disconnect metric. The returned
// answer is the complete reply text.
//
// The writer must be safe for concurrent use; the keep-alive goroutine
// writes while this runs.
func relayStream(ctx context.Context, deps *ChatDeps, st *turnState, writer SSEWriter, endpoint observability.Endpoint, start time.Time) (string, error) {
	accumulator, err := NewSecureTokenAccumulator()
	if err != nil {
		recordError(endpoint, observability.ErrorCodeInternal)
		_ = writer.WriteError(sanitizeErrorForClient(err.Error()))
		return "", err
	}
	defer accumulator.Destroy()

	var tokens tokenCounter
	var firstToken time.Time

	streamErr := st.chatBackend(deps).ChatStream(ctx, st.messages, st.generationParams(), func(event llm.StreamEvent) error {
		switch event.Type {
		case llm.StreamEventToken:
			if firstToken.IsZero() {
				firstToken = time.Now()
				if m := observability.DefaultMetrics; m != nil {
					m.RecordTimeToFirstToken(endpoint, firstToken.Sub(start).Seconds())
				}
			}
			tokens.Inc()
			// Accumulator overflow only degrades persistence, never delivery.
			if err := accumulator.Write(event.Content); err != nil {
				slog.Warn("Reply accumulator write failed", "error", err)
			}
			return writer.WriteToken(event.Content)
		case llm.StreamEventError:
			return errors.New(event.Error)
		case llm.StreamEventDone:
			return nil
		}
		return nil
	})

	if m := observability.DefaultMetrics; m != nil {
		m.RecordTokens(tokens.Load(), st.model)
	}

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			slog.Info("Client disconnected mid-stream",
				"user_id", st.userID, "tokens_sent", tokens.Load())
			if m := observability.DefaultMetrics; m != nil {
				m.RecordClientDisconnect(endpoint)
			}
			recordError(endpoint, observability.ErrorCodeClientDisconnect)
			return "", streamErr
		}
		slog.Error("Model stream failed",
			"user_id", st.userID, "model", st.model, "error", streamErr)
		recordError(endpoint, observability.ErrorCodeLLMError)
		_ = writer.WriteError(sanitizeErrorForClient(streamErr.Error()))
		return "", streamErr
	}

	answer, replyHash, err := accumulator.Finalize()
	if err != nil {
		recordError(endpoint, observability.ErrorCodeInternal)
		_ = writer.WriteError(sanitizeErrorForClient(err.Error()))
		return "", err
	}
	slog.Debug("Stream completed",
		"user_id", st.userID, "tokens", tokens.Load(), "reply_hash", replyHash)
	return answer, nil
}

// runKeepAlive sends comment pings until done closes. Write errors end the
// loop early; the client is gone and the relay will notice on its own.
func runKeepAlive(writer SSEWriter, done <-chan struct{}, endpoint observability.Endpoint) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}
