// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request, response, and state structures for the
// Keepsake gateway.
//
// This file contains the authentication types. Credentials pass straight
// through to Supabase GoTrue; the gateway never stores them.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate is the validator instance for all gateway datatypes.
// Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Message content is capped by byte length, not rune count.
	_ = validate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Byte length is checked (not rune count) so large
// multi-byte payloads cannot slip past the cap.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Auth Request Types
// =============================================================================

// RegisterRequest represents a new-account signup.
//
// # Description
//
// Carries the credentials and onboarding profile for POST /v1/auth/register.
// Email and password go to GoTrue; the profile fields seed the user's
// memory document.
//
// # Validation
//
//   - Email: required, valid email address
//   - Password: required, 8-72 characters (bcrypt input limit upstream)
//   - Name: required
//   - AvatarID: "1" or "2" when provided
//
// CompanionChoice carries the onboarding picker label (for example
// "Female - Friend"); the register handler resolves it to an avatar id when
// avatar_id is absent.
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	Name            string `json:"name" validate:"required,max=100"`
	Age             string `json:"age,omitempty" validate:"max=20"`
	Gender          string `json:"gender,omitempty" validate:"max=40"`
	CompanionName   string `json:"companion_name,omitempty" validate:"max=100"`
	CompanionChoice string `json:"companion_choice,omitempty" validate:"max=40"`
	AvatarID        string `json:"avatar_id,omitempty" validate:"omitempty,oneof=1 2"`
}

// Validate validates the RegisterRequest fields.
func (r *RegisterRequest) Validate() error {
	return validate.Struct(r)
}

// EnsureDefaults populates default values for optional fields.
func (r *RegisterRequest) EnsureDefaults() {
	if r.CompanionName == "" {
		r.CompanionName = "Keepsake"
	}
	if r.AvatarID == "" {
		r.AvatarID = "1"
	}
}

// LoginRequest represents a password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate validates the LoginRequest fields.
func (r *LoginRequest) Validate() error {
	return validate.Struct(r)
}

// RefreshRequest represents a token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Validate validates the RefreshRequest fields.
func (r *RefreshRequest) Validate() error {
	return validate.Struct(r)
}

// =============================================================================
// Auth Response Types
// =============================================================================

// AuthResponse is the token bundle returned by register, login, and refresh.
//
// # Fields
//
//   - AccessToken: Supabase JWT (HS256, audience "authenticated")
//   - RefreshToken: opaque refresh token
//   - UserID: the GoTrue user id (UUID), also the memories row key
//   - ExpiresAt: Unix seconds when the access token expires
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	ExpiresAt    int64  `json:"expires_at"`
}
