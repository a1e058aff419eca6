// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the scene endpoint types.
package datatypes

// SceneStatus is one scene with its availability at the caller's tier.
type SceneStatus struct {
	Name         string `json:"name"`
	Available    bool   `json:"available"`
	TierRequired int    `json:"tier_required"`
	Description  string `json:"description"`
}

// ScenesResponse lists every scene for the scene picker.
type ScenesResponse struct {
	Scenes      []SceneStatus `json:"scenes"`
	CurrentTier int           `json:"current_tier"`
}

// SceneDetailResponse describes one scene, with an upgrade nudge when the
// caller's tier has not unlocked it.
type SceneDetailResponse struct {
	Name          string  `json:"name"`
	Available     bool    `json:"available"`
	TierRequired  int     `json:"tier_required"`
	Description   string  `json:"description"`
	CurrentTier   int     `json:"current_tier"`
	UnlockMessage *string `json:"unlock_message"`
}
