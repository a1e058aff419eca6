// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for the chat endpoints
// (message, stream, greeting, history).
package datatypes

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	// Keeps a hostile client from streaming megabytes into the prompt.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// DefaultVibe is the neutral energy level when the client omits it.
	DefaultVibe = 50

	// DefaultScene is used when the client omits the scene.
	DefaultScene = "Lounge"
)

// =============================================================================
// Chat Message Types
// =============================================================================

// ChatMessage is one turn of retained conversation history.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", or "system"
	Content string `json:"content"`
}

// ChatRequest represents a chat turn sent by the client.
//
// # Description
//
// Used by both POST /v1/chat/message (sync) and POST /v1/chat/stream (SSE).
// Vibe is the client-reported energy slider (0-100) and shapes tone; Scene
// selects the roleplay environment and must be unlocked for the user's tier.
// IsFirstOfSession matters only for premium routing on the stream endpoint.
//
// # Validation
//
//   - Message: required, at most 32KB
//   - Vibe: 0-100
type ChatRequest struct {
	Message          string `json:"message" validate:"required,maxbytes"`
	Vibe             int    `json:"vibe" validate:"gte=0,lte=100"`
	Scene            string `json:"scene,omitempty" validate:"max=40"`
	IsFirstOfSession bool   `json:"is_first_of_session,omitempty"`
}

// Validate validates the ChatRequest fields.
func (r *ChatRequest) Validate() error {
	return validate.Struct(r)
}

// EnsureDefaults populates default values for optional fields.
// The mobile client always sends an explicit vibe; a zero means the field
// was omitted, so it gets the neutral default.
func (r *ChatRequest) EnsureDefaults() {
	if r.Scene == "" {
		r.Scene = DefaultScene
	}
	if r.Vibe == 0 {
		r.Vibe = DefaultVibe
	}
}

// ChatResponse is the non-streaming chat reply.
type ChatResponse struct {
	Response       string         `json:"response"`
	EmotionalState EmotionalState `json:"emotional_state"`
	Balance        int            `json:"balance"`
	ModelUsed      string         `json:"model_used"`
}

// =============================================================================
// Greeting Types
// =============================================================================

// GreetingRequest asks for a session-opening line.
type GreetingRequest struct {
	Vibe int `json:"vibe" validate:"gte=0,lte=100"`
}

// Validate validates the GreetingRequest fields.
func (r *GreetingRequest) Validate() error {
	return validate.Struct(r)
}

// EnsureDefaults populates default values for optional fields.
func (r *GreetingRequest) EnsureDefaults() {
	if r.Vibe == 0 {
		r.Vibe = DefaultVibe
	}
}

// GreetingResponse carries the generated greeting and the local time period
// ("Morning", "Afternoon", "Evening") it was written for.
type GreetingResponse struct {
	Greeting   string `json:"greeting"`
	TimePeriod string `json:"time_period"`
}

// =============================================================================
// History Types
// =============================================================================

// HistoryResponse is the visible (non-system) conversation tail.
type HistoryResponse struct {
	History       []ChatMessage `json:"history"`
	TotalMessages int           `json:"total_messages"`
}
