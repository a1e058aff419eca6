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

	"github.com/keepsakelabs/keepsake/services/gateway/config"
)

func TestHandleHealth(t *testing.T) {
	router := anonRouter("GET", "/health", HandleHealth())

	w := performRequest(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHandleRoot(t *testing.T) {
	cfg := config.Settings{
		LLMBackend:       "openai",
		EnableMetrics:    true,
		RetentionEnabled: false,
	}
	router := anonRouter("GET", "/", HandleRoot(cfg))

	w := performRequest(router, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "keepsake-gateway", body["app"])
	assert.NotEmpty(t, body["version"])

	subsystems, ok := body["subsystems"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "openai", subsystems["llm_backend"])
	assert.Equal(t, true, subsystems["metrics"])
	assert.Equal(t, false, subsystems["retention"])
}
