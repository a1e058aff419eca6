// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the user profile and balance endpoint types.
package datatypes

// ProfileUpdate is a partial profile edit. Nil pointers mean "leave as is",
// so the client can update a single field without resending the rest.
type ProfileUpdate struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,max=100"`
	Age           *string `json:"age,omitempty" validate:"omitempty,max=20"`
	Gender        *string `json:"gender,omitempty" validate:"omitempty,max=40"`
	CompanionName *string `json:"companion_name,omitempty" validate:"omitempty,max=100"`
	AvatarID      *string `json:"avatar_id,omitempty" validate:"omitempty,oneof=1 2"`
	CurrentOutfit *string `json:"current_outfit,omitempty" validate:"omitempty,max=60"`
	TimeOffset    *int    `json:"time_offset,omitempty" validate:"omitempty,gte=-12,lte=14"`
}

// Validate validates the ProfileUpdate fields.
func (r *ProfileUpdate) Validate() error {
	return validate.Struct(r)
}

// ProfileResponse is the full profile view returned by GET and PUT.
type ProfileResponse struct {
	UserProfile    UserProfile    `json:"user_profile"`
	EmotionalState EmotionalState `json:"emotional_state"`
	Balance        int            `json:"balance"`
	Tier           int            `json:"tier"`
	AvatarID       string         `json:"avatar_id"`
	CurrentOutfit  string         `json:"current_outfit"`
}

// BalanceResponse reports the coin balance.
type BalanceResponse struct {
	Balance int `json:"balance"`
	Tier    int `json:"tier"`
}

// SpendResponse reports the result of a coin spend. Spending on the
// companion warms the relationship, hence WarmthGained.
type SpendResponse struct {
	NewBalance   int `json:"new_balance"`
	Spent        int `json:"spent"`
	WarmthGained int `json:"warmth_gained"`
}

// AvatarResponse confirms a persona switch.
type AvatarResponse struct {
	Message  string `json:"message"`
	AvatarID string `json:"avatar_id"`
}
