// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// Streaming Event Types
// =============================================================================

// Stream event type identifiers, shared by the SSE and WebSocket relays.
const (
	EventTypeStatus = "status"
	EventTypeToken  = "token"
	EventTypeError  = "error"
	EventTypeDone   = "done"
)

// StreamEvent is one event on a chat stream.
//
// # Description
//
// StreamEvent is the wire format for both SSE and WebSocket chat streams.
// Every event carries a UUID, a creation timestamp, and a SHA-256 hash
// chained to the previous event so clients can verify nothing was dropped
// or reordered in transit.
//
// The done event additionally carries the post-turn companion state so
// clients can update their UI without a follow-up request.
//
// # Fields
//
//   - Id: UUID v4 assigned by the writer.
//   - Type: One of the EventType constants.
//   - CreatedAt: Unix milliseconds, assigned by the writer.
//   - Content: Token text (token events).
//   - Message: Human-readable status (status events).
//   - Error: Sanitized failure description (error events).
//   - ModelUsed: Model that served the turn (done events).
//   - Balance: Coin balance after the turn (done events).
//   - EmotionalState: Relationship scores after the turn (done events).
//   - Hash / PrevHash: Integrity chain maintained by the writer.
type StreamEvent struct {
	Id             string          `json:"id,omitempty"`
	Type           string          `json:"type"`
	CreatedAt      int64           `json:"created_at,omitempty"`
	Content        string          `json:"content,omitempty"`
	Message        string          `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	ModelUsed      string          `json:"model_used,omitempty"`
	Balance        *int            `json:"balance,omitempty"`
	EmotionalState *EmotionalState `json:"emotional_state,omitempty"`
	Hash           string          `json:"hash,omitempty"`
	PrevHash       string          `json:"prev_hash,omitempty"`
}
