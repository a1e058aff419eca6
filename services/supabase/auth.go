// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supabase

import (
	"context"
	"fmt"
	"net/http"
)

// Session is the token bundle GoTrue returns on signup, password grant, and
// refresh grant.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         SessionUser `json:"user"`
}

type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignUp creates a user in GoTrue. Metadata lands in the user's
// raw_user_meta_data and is echoed into JWTs.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}

	var session Session
	if _, err := c.do(ctx, http.MethodPost, "/auth/v1/signup", payload, &session); err != nil {
		return nil, fmt.Errorf("signup failed: %w", err)
	}
	if session.User.ID == "" {
		return nil, fmt.Errorf("signup returned no user")
	}
	return &session, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}

	var session Session
	if _, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", payload, &session); err != nil {
		return nil, fmt.Errorf("password grant failed: %w", err)
	}
	return &session, nil
}

// RefreshSession exchanges a refresh token for a fresh session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	payload := map[string]any{
		"refresh_token": refreshToken,
	}

	var session Session
	if _, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", payload, &session); err != nil {
		return nil, fmt.Errorf("refresh grant failed: %w", err)
	}
	return &session, nil
}
