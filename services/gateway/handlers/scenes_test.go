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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
)

// =============================================================================
// Scene Handler Tests
// =============================================================================

func TestHandleListScenes_FreeTier(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/scenes", HandleListScenes(deps))
	w := performRequest(router, "GET", "/v1/scenes", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ScenesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.CurrentTier)
	require.Len(t, resp.Scenes, 5)

	// Free scenes come first.
	assert.Equal(t, 0, resp.Scenes[0].TierRequired)
	assert.Equal(t, "Body Double", resp.Scenes[0].Name)
	assert.Equal(t, "Lounge", resp.Scenes[1].Name)

	byName := map[string]datatypes.SceneStatus{}
	for _, scene := range resp.Scenes {
		byName[scene.Name] = scene
	}
	assert.True(t, byName["Lounge"].Available)
	assert.True(t, byName["Body Double"].Available)
	assert.False(t, byName["Cafe"].Available)
	assert.False(t, byName["Firework"].Available)
}

func TestHandleListScenes_PremiumUnlocksAll(t *testing.T) {
	doc := datatypes.NewMemoryDocument()
	doc.Tier = 2
	deps := newTestDeps(t, &fakeBackend{doc: doc}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/scenes", HandleListScenes(deps))
	w := performRequest(router, "GET", "/v1/scenes", nil)

	var resp datatypes.ScenesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	for _, scene := range resp.Scenes {
		assert.True(t, scene.Available, "premium should unlock %s", scene.Name)
	}
}

func TestHandleGetScene_LockedIncludesUpgradeNudge(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/scenes/:name", HandleGetScene(deps))
	w := performRequest(router, "GET", "/v1/scenes/Cafe", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.SceneDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Cafe", resp.Name)
	assert.False(t, resp.Available)
	assert.Equal(t, 1, resp.TierRequired)
	require.NotNil(t, resp.UnlockMessage)
	assert.Equal(t, "Cafe unlocks on the Plus tier.", *resp.UnlockMessage)
}

func TestHandleGetScene_UnlockedHasNoNudge(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/scenes/:name", HandleGetScene(deps))
	w := performRequest(router, "GET", "/v1/scenes/Lounge", nil)

	var resp datatypes.SceneDetailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Available)
	assert.Nil(t, resp.UnlockMessage)
}

func TestHandleGetScene_Unknown(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{}, &MockLLMClient{}, &MockLLMClient{})

	router := authedRouter("GET", "/v1/scenes/:name", HandleGetScene(deps))
	w := performRequest(router, "GET", "/v1/scenes/Moonbase", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown scene")

	// The 404 body names the valid scenes so the client can self-correct.
	assert.Contains(t, w.Body.String(), "Lounge")
	assert.Contains(t, w.Body.String(), "Firework")
}
