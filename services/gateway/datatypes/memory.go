// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the per-user memory document stored in the Supabase
// memories table, plus the memory endpoint response types. The JSON field
// names are the storage schema and must not change without a data migration.
package datatypes

import (
	"encoding/json"
	"time"
)

// =============================================================================
// Memory Document
// =============================================================================

// EmotionalState is the companion's running read of the relationship.
// All scores live in [0, 100].
type EmotionalState struct {
	Closeness  int `json:"closeness"`
	Warmth     int `json:"warmth"`
	Pace       int `json:"pace"`
	Stability  int `json:"stability"`
	SceneScore int `json:"scene_score"`
	Agency     int `json:"agency"`
}

// DefaultEmotionalState returns the scores assigned to a brand-new user.
func DefaultEmotionalState() EmotionalState {
	return EmotionalState{
		Closeness:  10,
		Warmth:     10,
		Pace:       10,
		Stability:  80,
		SceneScore: 0,
		Agency:     10,
	}
}

// UserProfile is the user-editable identity block.
type UserProfile struct {
	Name          string `json:"name"`
	Age           string `json:"age"`
	Gender        string `json:"gender"`
	CompanionName string `json:"companion_name"`
}

// ActiveContext tracks the most recent significant event for greeting
// callbacks. Dates are stored as "2006-01-02" strings.
type ActiveContext struct {
	LastTopic        string `json:"last_topic"`
	SignificantEvent string `json:"significant_event"`
	EventDate        string `json:"event_date"`
	LastRecalledDate string `json:"last_recalled_date"`
}

// UserFact is one extracted fact with its creation timestamp.
//
// Early documents stored facts as bare strings. UnmarshalJSON accepts both
// shapes and stamps legacy facts with the current time, which migrates old
// rows forward on first read.
type UserFact struct {
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// UnmarshalJSON implements json.Unmarshaler for the legacy string shape.
func (f *UserFact) UnmarshalJSON(data []byte) error {
	var legacy string
	if err := json.Unmarshal(data, &legacy); err == nil {
		f.Content = legacy
		f.CreatedAt = time.Now().Format(time.RFC3339)
		return nil
	}

	type userFact UserFact // drop methods to avoid recursion
	var current userFact
	if err := json.Unmarshal(data, &current); err != nil {
		return err
	}
	*f = UserFact(current)
	return nil
}

// MemoryDocument is the full per-user state stored as jsonb in the
// memories table.
//
// # Description
//
// The document holds everything the companion knows about one user:
// conversation history, emotional scores, extracted facts, the coin balance,
// and entitlement bookkeeping. The gateway is stateless; this document is
// the source of truth and is re-read on every request.
//
// # Fields of note
//
//   - History: retained conversation, truncated to the newest 50 on save
//   - UserFacts: extracted facts, newest 20 kept, free tier reads a 48h window
//   - Tier: written by the billing pipeline, only read here
//   - Free4oTasteUsed: free users get one premium-model deep moment
//   - TimeOffset: client timezone offset in hours from server time
type MemoryDocument struct {
	History             []ChatMessage  `json:"history"`
	EmotionalState      EmotionalState `json:"emotional_state"`
	UserProfile         UserProfile    `json:"user_profile"`
	ActiveContext       ActiveContext  `json:"active_context"`
	UserFacts           []UserFact     `json:"user_facts"`
	Balance             int            `json:"balance"`
	Inventory           []string       `json:"inventory"`
	CurrentOutfit       string         `json:"current_outfit"`
	Tier                int            `json:"tier"`
	AvatarID            string         `json:"avatar_id"`
	HasChosenAvatar     bool           `json:"has_chosen_avatar"`
	Free4oTasteUsed     bool           `json:"free_4o_taste_used"`
	TimeOffset          int            `json:"time_offset"`
	LastActiveTimestamp string         `json:"last_active_timestamp"`
}

// NewMemoryDocument returns the default document assigned to a new user.
func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{
		History:             []ChatMessage{},
		EmotionalState:      DefaultEmotionalState(),
		UserProfile:         UserProfile{CompanionName: "Keepsake"},
		UserFacts:           []UserFact{},
		Balance:             100,
		Inventory:           []string{"default"},
		CurrentOutfit:       "default",
		Tier:                0,
		AvatarID:            "1",
		TimeOffset:          0,
		LastActiveTimestamp: time.Now().Format(time.RFC3339),
	}
}

// UserMessageCount returns how many retained messages the user sent.
// The free-tier message limit counts these.
func (m *MemoryDocument) UserMessageCount() int {
	count := 0
	for _, msg := range m.History {
		if msg.Role == "user" {
			count++
		}
	}
	return count
}

// =============================================================================
// Memory Endpoint Responses
// =============================================================================

// FactsResponse lists the facts currently visible at the user's tier.
type FactsResponse struct {
	Facts        []string `json:"facts"`
	ExpiredCount int      `json:"expired_count"`
	Tier         int      `json:"tier"`
}

// SyncResponse reports a forced re-read of the memory document.
type SyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// EmotionalStateResponse exposes the raw scores and active context.
type EmotionalStateResponse struct {
	EmotionalState EmotionalState `json:"emotional_state"`
	ActiveContext  ActiveContext  `json:"active_context"`
}

// MemoryStatsResponse summarizes the user's stored state.
type MemoryStatsResponse struct {
	TotalMessages     int            `json:"total_messages"`
	UserMessages      int            `json:"user_messages"`
	AssistantMessages int            `json:"assistant_messages"`
	FactsCount        int            `json:"facts_count"`
	ExpiredFactsCount int            `json:"expired_facts_count"`
	Tier              int            `json:"tier"`
	EmotionalState    EmotionalState `json:"emotional_state"`
	LastActive        string         `json:"last_active"`
	Balance           int            `json:"balance"`
}
