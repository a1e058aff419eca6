// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/keepsakelabs/keepsake/services/gateway/companion"
	"github.com/keepsakelabs/keepsake/services/gateway/config"
	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/gateway/memory"
	"github.com/keepsakelabs/keepsake/services/gateway/middleware"
	"github.com/keepsakelabs/keepsake/services/llm"
	"github.com/keepsakelabs/keepsake/services/supabase"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

const testUserID = "00000000-0000-0000-0000-000000000001"

// MockLLMClient implements llm.LLMClient for handler testing. ChatStream
// emits Tokens one at a time through the callback, mirroring a provider
// stream.
type MockLLMClient struct {
	ChatResponse     string
	ChatError        error
	GenerateResponse string
	GenerateError    error
	Tokens           []string
	StreamError      error
	StreamErrorEvent string

	mu          sync.Mutex
	GotMessages []llm.Message
	GotParams   llm.GenerationParams
}

func (m *MockLLMClient) Chat(_ context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	m.mu.Lock()
	m.GotMessages = messages
	m.GotParams = params
	m.mu.Unlock()
	return m.ChatResponse, m.ChatError
}

func (m *MockLLMClient) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return m.GenerateResponse, m.GenerateError
}

func (m *MockLLMClient) ChatStream(_ context.Context, messages []llm.Message, params llm.GenerationParams, callback llm.StreamCallback) error {
	m.mu.Lock()
	m.GotMessages = messages
	m.GotParams = params
	m.mu.Unlock()

	if m.StreamError != nil {
		return m.StreamError
	}
	for _, token := range m.Tokens {
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: token}); err != nil {
			return err
		}
	}
	if m.StreamErrorEvent != "" {
		return callback(llm.StreamEvent{Type: llm.StreamEventError, Error: m.StreamErrorEvent})
	}
	return callback(llm.StreamEvent{Type: llm.StreamEventDone})
}

// testEmbedder returns a constant vector for every input.
type testEmbedder struct{}

func (testEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

// =============================================================================
// Fake Storage Backend
// =============================================================================

// fakeBackend emulates the PostgREST and GoTrue surfaces the handlers touch.
// All access is mutex-guarded because finalizeTurn writes from background
// goroutines.
type fakeBackend struct {
	mu       sync.Mutex
	doc      *datatypes.MemoryDocument
	saved    *datatypes.MemoryDocument
	authFail bool
}

func (b *fakeBackend) savedDoc() *datatypes.MemoryDocument {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saved
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/rest/v1/memories", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			if b.doc == nil {
				fmt.Fprint(w, "[]")
				return
			}
			data, err := json.Marshal(b.doc)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprintf(w, `[{"data": %s}]`, data)
		case http.MethodPost:
			var rows []struct {
				Data datatypes.MemoryDocument `json:"data"`
			}
			if err := json.NewDecoder(r.Body).Decode(&rows); err != nil || len(rows) != 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b.saved = &rows[0].Data
			b.doc = &rows[0].Data
			w.WriteHeader(http.StatusCreated)
		}
	})

	mux.HandleFunc("/rest/v1/rpc/match_vectors", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "[]")
	})
	mux.HandleFunc("/rest/v1/recall_vectors", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	session := func(w http.ResponseWriter) {
		fmt.Fprintf(w, `{
			"access_token": "test-access-token",
			"refresh_token": "test-refresh-token",
			"token_type": "bearer",
			"expires_in": 3600,
			"expires_at": 1790000000,
			"user": {"id": %q, "email": "sam@example.com"}
		}`, testUserID)
	}
	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, _ *http.Request) {
		if b.authFail {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"msg": "User already registered"}`)
			return
		}
		session(w)
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, _ *http.Request) {
		if b.authFail {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error_description": "Invalid login credentials"}`)
			return
		}
		session(w)
	})

	return mux
}

// =============================================================================
// Dependency Factory
// =============================================================================

// newTestDeps wires ChatDeps against the fake backend and mock models.
func newTestDeps(t *testing.T, backend *fakeBackend, chat, utility *MockLLMClient) *ChatDeps {
	t.Helper()

	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)
	store := supabase.NewClientWith(server.URL, "test-key")

	personas, err := companion.NewPersonaStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { personas.Close() })

	return &ChatDeps{
		Tiers:    config.DefaultTiers(),
		Personas: personas,
		Chat:     chat,
		Utility:  utility,
		Memory:   memory.New(store, testEmbedder{}),
		Store:    store,
	}
}

// =============================================================================
// Request Helpers
// =============================================================================

// authedRouter builds a router that injects the test identity before the
// handler, standing in for the JWT middleware.
func authedRouter(method, path string, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		middleware.SetAuthInfo(c, &middleware.AuthInfo{
			UserID: testUserID,
			Email:  "sam@example.com",
			Role:   "authenticated",
		})
	})
	router.Handle(method, path, handler)
	return router
}

// anonRouter builds a router with no identity injected.
func anonRouter(method, path string, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Handle(method, path, handler)
	return router
}

// performRequest executes an HTTP request against the test router.
func performRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
