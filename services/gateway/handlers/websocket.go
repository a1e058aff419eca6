// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/gateway/middleware"
	"github.com/keepsakelabs/keepsake/services/gateway/observability"
)

var upgrader = websocket.Upgrader{
	// The JWT in the auth middleware is the access control; the Origin
	// header is not trusted because the mobile WebView does not send one.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsWriteTimeout bounds each frame write so one stuck client cannot pin the
// relay goroutine.
const wsWriteTimeout = 10 * time.Second

// =============================================================================
// WebSocket Chat
// =============================================================================

// HandleChatWebSocket handles GET /v1/chat/ws.
//
// # Description
//
// Long-lived chat connection for clients that keep a session open instead of
// issuing one SSE request per turn. Each inbound JSON frame is a ChatRequest;
// each turn streams back the same event protocol as the SSE endpoint
// (status, token, done, error) as JSON frames with the per-turn hash chain.
//
// The first turn of a connection counts as session start for premium
// routing unless the client says otherwise.
func HandleChatWebSocket(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := middleware.GetAuthInfo(c)
		if auth == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade the websocket", "user_id", auth.UserID, "error", err)
			return
		}
		defer ws.Close()

		sessionID := uuid.New().String()
		slog.Info("Websocket session started", "user_id", auth.UserID, "session_id", sessionID)

		isFirstTurn := true
		for {
			var req datatypes.ChatRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected",
					"user_id", auth.UserID, "session_id", sessionID, "error", err.Error())
				return
			}
			if runWebSocketTurn(c, deps, ws, auth.UserID, &req, isFirstTurn) {
				isFirstTurn = false
			}
		}
	}
}

// runWebSocketTurn executes one chat turn over an open connection. Returns
// whether the turn counted (invalid frames and gate rejections do not end
// the session-start window).
func runWebSocketTurn(c *gin.Context, deps *ChatDeps, ws *websocket.Conn, userID string, req *datatypes.ChatRequest, isFirstTurn bool) bool {
	ctx, span := chatTracer.Start(c.Request.Context(), "runWebSocketTurn")
	defer span.End()

	start := time.Now()
	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointWebSocket, success)
			m.RecordStreamDuration(observability.EndpointWebSocket, time.Since(start).Seconds(), success)
		}
	}()

	writer := newWSEventWriter(ws)

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		recordError(observability.EndpointWebSocket, observability.ErrorCodeValidation)
		_ = writer.WriteError(err.Error())
		return false
	}
	if !req.IsFirstOfSession {
		req.IsFirstOfSession = isFirstTurn
	}

	st, terr := prepareTurn(ctx, deps, userID, req, true)
	if terr != nil {
		recordError(observability.EndpointWebSocket, terr.Code)
		_ = writer.WriteError(terr.Message)
		return false
	}

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(observability.EndpointWebSocket)
		defer m.StreamEnded(observability.EndpointWebSocket)
	}

	if err := writer.WriteStatus("Thinking..."); err != nil {
		return false
	}

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go runKeepAlive(writer, heartbeatDone, observability.EndpointWebSocket)

	answer, err := relayStream(ctx, deps, st, writer, observability.EndpointWebSocket, start)
	if err != nil {
		span.RecordError(err)
		return true
	}

	if err := finalizeTurn(ctx, deps, st, answer); err != nil {
		recordError(observability.EndpointWebSocket, observability.ErrorCodeStorageError)
	}

	if err := writer.WriteDone(st.model, st.doc.Balance, st.doc.EmotionalState); err != nil {
		return true
	}
	success = true
	return true
}

// =============================================================================
// WebSocket Event Writer
// =============================================================================

// wsEventWriter adapts an open WebSocket connection to the SSEWriter
// protocol: the same StreamEvent payloads and hash chain, one JSON frame per
// event, a control ping instead of a comment for keep-alive.
type wsEventWriter struct {
	conn     *websocket.Conn
	prevHash string
	mu       sync.Mutex
}

func newWSEventWriter(conn *websocket.Conn) *wsEventWriter {
	return &wsEventWriter{conn: conn}
}

// WriteEvent links the event into the hash chain and sends it as one frame.
func (w *wsEventWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(event)
}

func (w *wsEventWriter) WriteStatus(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.EventTypeStatus,
		Message: message,
	})
}

func (w *wsEventWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.EventTypeToken,
		Content: content,
	})
}

func (w *wsEventWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.EventTypeError,
		Error: errMsg,
	})
}

func (w *wsEventWriter) WriteDone(modelUsed string, balance int, state datatypes.EmotionalState) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:           datatypes.EventTypeDone,
		ModelUsed:      modelUsed,
		Balance:        &balance,
		EmotionalState: &state,
	})
}

// WriteKeepAlive sends a control ping. Pings do not join the hash chain.
func (w *wsEventWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

var _ SSEWriter = (*wsEventWriter)(nil)
