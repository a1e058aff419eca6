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

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/keepsakelabs/keepsake/services/gateway/config"
	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/supabase"
)

// =============================================================================
// Auth Handlers
// =============================================================================

// HandleRegister handles POST /v1/auth/register.
//
// # Description
//
// Creates the GoTrue account, then seeds the user's memory document with the
// onboarding profile and chosen companion. Accounts whose document seeding
// fails still exist; the document is created lazily on first chat instead.
func HandleRegister(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleRegister")
		defer span.End()

		var req datatypes.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.AvatarID == "" && req.CompanionChoice != "" {
			id, ok := config.AvatarMap[req.CompanionChoice]
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown companion choice"})
				return
			}
			req.AvatarID = id
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := deps.Store.SignUp(ctx, req.Email, req.Password, map[string]any{
			"name": req.Name,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Signup failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Registration failed. The email may already be in use."})
			return
		}

		profile := datatypes.UserProfile{
			Name:          req.Name,
			Age:           req.Age,
			Gender:        req.Gender,
			CompanionName: req.CompanionName,
		}
		if _, err := deps.Memory.CreateUserMemory(ctx, session.User.ID, profile, req.AvatarID); err != nil {
			span.RecordError(err)
			slog.Error("Failed to seed the memory document",
				"user_id", session.User.ID, "error", err)
		}

		c.JSON(http.StatusCreated, authResponse(session))
	}
}

// HandleLogin handles POST /v1/auth/login.
func HandleLogin(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleLogin")
		defer span.End()

		var req datatypes.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := deps.Store.SignInWithPassword(ctx, req.Email, req.Password)
		if err != nil {
			span.RecordError(err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		c.JSON(http.StatusOK, authResponse(session))
	}
}

// HandleRefresh handles POST /v1/auth/refresh.
func HandleRefresh(deps *ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleRefresh")
		defer span.End()

		var req datatypes.RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := deps.Store.RefreshSession(ctx, req.RefreshToken)
		if err != nil {
			span.RecordError(err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token"})
			return
		}

		c.JSON(http.StatusOK, authResponse(session))
	}
}

// HandleLogout handles POST /v1/auth/logout.
//
// Supabase access tokens are stateless JWTs; the gateway keeps no session
// state, so logout is the client discarding its tokens. The endpoint exists
// so the mobile app has a single auth surface to call.
func HandleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Logged out. Discard the stored tokens.",
		})
	}
}

// authResponse maps a GoTrue session to the gateway's token bundle.
func authResponse(session *supabase.Session) datatypes.AuthResponse {
	return datatypes.AuthResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		UserID:       session.User.ID,
		ExpiresAt:    session.ExpiresAt,
	}
}
