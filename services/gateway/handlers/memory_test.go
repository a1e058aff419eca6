// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
)

// =============================================================================
// Memory Handler Tests
// =============================================================================

func TestHandleGetFacts_FreeTierWindowsOutStaleFacts(t *testing.T) {
	doc := datatypes.NewMemoryDocument()
	doc.UserFacts = []datatypes.UserFact{
		{Content: "• fresh fact", CreatedAt: time.Now().Add(-2 * time.Hour).Format(time.RFC3339)},
		{Content: "• stale fact", CreatedAt: time.Now().Add(-72 * time.Hour).Format(time.RFC3339)},
	}
	deps := newTestDeps(t, &fakeBackend{doc: doc}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/memory/facts", HandleGetFacts(deps))
	w := performRequest(router, "GET", "/v1/memory/facts", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.FactsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"• fresh fact"}, resp.Facts)
	assert.Equal(t, 1, resp.ExpiredCount)
	assert.Equal(t, 0, resp.Tier)
}

func TestHandleGetFacts_PaidTierKeepsEverything(t *testing.T) {
	doc := datatypes.NewMemoryDocument()
	doc.Tier = 1
	doc.UserFacts = []datatypes.UserFact{
		{Content: "• ancient fact", CreatedAt: "2024-01-01T00:00:00Z"},
	}
	deps := newTestDeps(t, &fakeBackend{doc: doc}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/memory/facts", HandleGetFacts(deps))
	w := performRequest(router, "GET", "/v1/memory/facts", nil)

	var resp datatypes.FactsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"• ancient fact"}, resp.Facts)
	assert.Zero(t, resp.ExpiredCount)
}

func TestHandleClearFacts(t *testing.T) {
	doc := datatypes.NewMemoryDocument()
	doc.UserFacts = []datatypes.UserFact{{Content: "• something private"}}
	doc.ActiveContext.SignificantEvent = "Job interview"
	doc.History = []datatypes.ChatMessage{{Role: "user", Content: "hi"}}
	doc.EmotionalState.Closeness = 40
	backend := &fakeBackend{doc: doc}
	deps := newTestDeps(t, backend, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("DELETE", "/v1/memory/facts", HandleClearFacts(deps))
	w := performRequest(router, "DELETE", "/v1/memory/facts", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Stored facts cleared")

	saved := backend.savedDoc()
	require.NotNil(t, saved)
	assert.Empty(t, saved.UserFacts)
	assert.Empty(t, saved.ActiveContext.SignificantEvent)
	// Forgetting facts does not reset the relationship.
	assert.Len(t, saved.History, 1)
	assert.Equal(t, 40, saved.EmotionalState.Closeness)
}

func TestHandleMemorySync(t *testing.T) {
	doc := datatypes.NewMemoryDocument()
	doc.UserFacts = []datatypes.UserFact{
		{Content: "• Works as a nurse", CreatedAt: time.Now().Format(time.RFC3339)},
		{Content: "• Has a dog named Biscuit", CreatedAt: time.Now().Format(time.RFC3339)},
	}
	doc.History = append(doc.History,
		datatypes.ChatMessage{Role: "user", Content: "hello"},
		datatypes.ChatMessage{Role: "assistant", Content: "hey"},
	)
	deps := newTestDeps(t, &fakeBackend{doc: doc}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("POST", "/v1/memory/sync", HandleMemorySync(deps))
	w := performRequest(router, "POST", "/v1/memory/sync", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Synced 2 facts, 2 messages", resp.Message)
}

func TestHandleEmotionalState(t *testing.T) {
	doc := datatypes.NewMemoryDocument()
	doc.EmotionalState.Warmth = 72
	doc.ActiveContext.LastTopic = "the move to Denver"
	deps := newTestDeps(t, &fakeBackend{doc: doc}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/memory/emotional-state", HandleEmotionalState(deps))
	w := performRequest(router, "GET", "/v1/memory/emotional-state", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.EmotionalStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 72, resp.EmotionalState.Warmth)
	assert.Equal(t, "the move to Denver", resp.ActiveContext.LastTopic)
}

func TestHandleMemoryStats(t *testing.T) {
	doc := datatypes.NewMemoryDocument()
	doc.History = []datatypes.ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hey"},
		{Role: "user", Content: "how are you"},
	}
	doc.UserFacts = []datatypes.UserFact{
		{Content: "• fresh", CreatedAt: time.Now().Format(time.RFC3339)},
	}
	doc.Balance = 130
	deps := newTestDeps(t, &fakeBackend{doc: doc}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/memory/stats", HandleMemoryStats(deps))
	w := performRequest(router, "GET", "/v1/memory/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.MemoryStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalMessages)
	assert.Equal(t, 2, resp.UserMessages)
	assert.Equal(t, 1, resp.AssistantMessages)
	assert.Equal(t, 1, resp.FactsCount)
	assert.Equal(t, 130, resp.Balance)
	assert.NotEmpty(t, resp.LastActive)
}
