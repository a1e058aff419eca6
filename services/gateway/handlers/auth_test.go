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
// Auth Handler Tests
// =============================================================================

func TestHandleRegister_Success(t *testing.T) {
	backend := &fakeBackend{}
	deps := newTestDeps(t, backend, &MockLLMClient{}, &MockLLMClient{})

	router := anonRouter("POST", "/v1/auth/register", HandleRegister(deps))
	w := performRequest(router, "POST", "/v1/auth/register", datatypes.RegisterRequest{
		Email:    "sam@example.com",
		Password: "hunter2hunter2",
		Name:     "Sam",
		AvatarID: "2",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp datatypes.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "test-access-token", resp.AccessToken)
	assert.Equal(t, "test-refresh-token", resp.RefreshToken)
	assert.Equal(t, testUserID, resp.UserID)

	// Registration seeds the memory document with the onboarding choices.
	saved := backend.savedDoc()
	require.NotNil(t, saved)
	assert.Equal(t, "Sam", saved.UserProfile.Name)
	assert.Equal(t, "2", saved.AvatarID)
	assert.True(t, saved.HasChosenAvatar)
	assert.Equal(t, 100, saved.Balance)
}

func TestHandleRegister_CompanionChoiceResolvesAvatar(t *testing.T) {
	backend := &fakeBackend{}
	deps := newTestDeps(t, backend, &MockLLMClient{}, &MockLLMClient{})
	router := anonRouter("POST", "/v1/auth/register", HandleRegister(deps))

	w := performRequest(router, "POST", "/v1/auth/register", datatypes.RegisterRequest{
		Email:           "sam@example.com",
		Password:        "hunter2hunter2",
		Name:            "Sam",
		CompanionChoice: "Male - Friend",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	saved := backend.savedDoc()
	require.NotNil(t, saved)
	assert.Equal(t, "2", saved.AvatarID, "the picker label maps to the persona id")

	w = performRequest(router, "POST", "/v1/auth/register", datatypes.RegisterRequest{
		Email:           "pat@example.com",
		Password:        "hunter2hunter2",
		Name:            "Pat",
		CompanionChoice: "Robot - Friend",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown companion choice")
}

func TestHandleRegister_ExplicitAvatarWinsOverChoice(t *testing.T) {
	backend := &fakeBackend{}
	deps := newTestDeps(t, backend, &MockLLMClient{}, &MockLLMClient{})
	router := anonRouter("POST", "/v1/auth/register", HandleRegister(deps))

	w := performRequest(router, "POST", "/v1/auth/register", datatypes.RegisterRequest{
		Email:           "sam@example.com",
		Password:        "hunter2hunter2",
		Name:            "Sam",
		CompanionChoice: "Male - Friend",
		AvatarID:        "1",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	saved := backend.savedDoc()
	require.NotNil(t, saved)
	assert.Equal(t, "1", saved.AvatarID)
}

func TestHandleRegister_ValidationFailures(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{}, &MockLLMClient{}, &MockLLMClient{})
	router := anonRouter("POST", "/v1/auth/register", HandleRegister(deps))

	cases := []datatypes.RegisterRequest{
		{Email: "not-an-email", Password: "hunter2hunter2", Name: "Sam"},
		{Email: "sam@example.com", Password: "short", Name: "Sam"},
		{Email: "sam@example.com", Password: "hunter2hunter2"},
		{Email: "sam@example.com", Password: "hunter2hunter2", Name: "Sam", AvatarID: "3"},
	}
	for i, body := range cases {
		w := performRequest(router, "POST", "/v1/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "case %d should fail validation", i)
	}
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{authFail: true}, &MockLLMClient{}, &MockLLMClient{})

	router := anonRouter("POST", "/v1/auth/register", HandleRegister(deps))
	w := performRequest(router, "POST", "/v1/auth/register", datatypes.RegisterRequest{
		Email:    "sam@example.com",
		Password: "hunter2hunter2",
		Name:     "Sam",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Registration failed")
}

func TestHandleLogin_Success(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{}, &MockLLMClient{}, &MockLLMClient{})

	router := anonRouter("POST", "/v1/auth/login", HandleLogin(deps))
	w := performRequest(router, "POST", "/v1/auth/login", datatypes.LoginRequest{
		Email:    "sam@example.com",
		Password: "hunter2hunter2",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testUserID, resp.UserID)
	assert.NotZero(t, resp.ExpiresAt)
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{authFail: true}, &MockLLMClient{}, &MockLLMClient{})

	router := anonRouter("POST", "/v1/auth/login", HandleLogin(deps))
	w := performRequest(router, "POST", "/v1/auth/login", datatypes.LoginRequest{
		Email:    "sam@example.com",
		Password: "wrong-password",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")
}

func TestHandleRefresh(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{}, &MockLLMClient{}, &MockLLMClient{})
	router := anonRouter("POST", "/v1/auth/refresh", HandleRefresh(deps))

	w := performRequest(router, "POST", "/v1/auth/refresh",
		datatypes.RefreshRequest{RefreshToken: "test-refresh-token"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "POST", "/v1/auth/refresh", datatypes.RefreshRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleLogout(t *testing.T) {
	router := anonRouter("POST", "/v1/auth/logout", HandleLogout())

	w := performRequest(router, "POST", "/v1/auth/logout", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Logged out")
}

func TestHandleRefresh_Expired(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{authFail: true}, &MockLLMClient{}, &MockLLMClient{})
	router := anonRouter("POST", "/v1/auth/refresh", HandleRefresh(deps))

	w := performRequest(router, "POST", "/v1/auth/refresh",
		datatypes.RefreshRequest{RefreshToken: "stale-token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or expired refresh token")
}
