// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tier numbers. Higher tiers include everything below them.
const (
	TierFree    = 0
	TierPlus    = 1
	TierPremium = 2
)

// TierConfig describes the entitlements of one subscription tier.
//
// MessageLimit and MemoryHours use zero for "unlimited"/"permanent",
// matching the billing dashboard's export format.
type TierConfig struct {
	Name            string   `yaml:"name"`
	MessageLimit    int      `yaml:"message_limit"`
	MemoryHours     int      `yaml:"memory_hours"`
	DefaultModel    string   `yaml:"default_model"`
	DeepModel       string   `yaml:"deep_model"`
	FirstDeep4o     bool     `yaml:"first_deep_4o"` // one-time premium-model taste for free users
	Scenes          []string `yaml:"scenes"`
	RAGEnabled      bool     `yaml:"rag_enabled"`
	PersonaSwitch   bool     `yaml:"persona_switching"`
	PriorityRouting bool     `yaml:"priority_routing"`
}

// SceneInfo describes one scene and the tier it unlocks at.
type SceneInfo struct {
	TierRequired int    `yaml:"tier_required"`
	Description  string `yaml:"description"`
}

// Tiers is the full entitlement table plus scene definitions.
type Tiers struct {
	Levels map[int]TierConfig   `yaml:"tiers"`
	Scenes map[string]SceneInfo `yaml:"scenes"`
}

// DefaultTiers returns the shipped entitlement table.
func DefaultTiers() Tiers {
	return Tiers{
		Levels: map[int]TierConfig{
			TierFree: {
				Name:         "Free",
				MessageLimit: 15,
				MemoryHours:  48,
				DefaultModel: "gpt-4o-mini",
				DeepModel:    "gpt-4o-mini",
				FirstDeep4o:  true,
				Scenes:       []string{"Lounge", "Body Double"},
			},
			TierPlus: {
				Name:         "Plus",
				DefaultModel: "gpt-4o-mini",
				DeepModel:    "gpt-4o",
				Scenes:       []string{"Lounge", "Body Double", "Cafe", "Evening Walk"},
				RAGEnabled:   true,
			},
			TierPremium: {
				Name:            "Premium",
				DefaultModel:    "gpt-4o-mini",
				DeepModel:       "gpt-4o",
				Scenes:          []string{"Lounge", "Body Double", "Cafe", "Evening Walk", "Firework"},
				RAGEnabled:      true,
				PersonaSwitch:   true,
				PriorityRouting: true,
			},
		},
		Scenes: map[string]SceneInfo{
			"Lounge": {
				TierRequired: TierFree,
				Description:  "Casual chat. Comfortable, no specific setting.",
			},
			"Body Double": {
				TierRequired: TierFree,
				Description:  "Work together in companionable silence. Productivity mode.",
			},
			"Cafe": {
				TierRequired: TierPlus,
				Description:  "Face-to-face at a cozy coffee shop. Intimate conversation.",
			},
			"Evening Walk": {
				TierRequired: TierPlus,
				Description:  "Side-by-side stroll through quiet streets at dusk.",
			},
			"Firework": {
				TierRequired: TierPremium,
				Description:  "Special celebration scene for milestone moments.",
			},
		},
	}
}

// LoadTiers returns DefaultTiers overridden by the YAML file at path when
// path is non-empty. Override entries replace whole tiers or scenes.
func LoadTiers(path string) (Tiers, error) {
	tiers := DefaultTiers()
	if path == "" {
		return tiers, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Tiers{}, fmt.Errorf("failed to read tier table: %w", err)
	}

	var override Tiers
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Tiers{}, fmt.Errorf("failed to parse tier table: %w", err)
	}

	for level, cfg := range override.Levels {
		tiers.Levels[level] = cfg
	}
	for name, scene := range override.Scenes {
		tiers.Scenes[name] = scene
	}
	return tiers, nil
}

// ForTier returns the config for a tier, falling back to Free for unknown
// values so a corrupt tier field never grants paid entitlements.
func (t Tiers) ForTier(tier int) TierConfig {
	if cfg, ok := t.Levels[tier]; ok {
		return cfg
	}
	return t.Levels[TierFree]
}

// SceneAvailable reports whether a scene is unlocked at the given tier.
func (t Tiers) SceneAvailable(scene string, tier int) bool {
	for _, name := range t.ForTier(tier).Scenes {
		if name == scene {
			return true
		}
	}
	return false
}

// AvatarMap translates the onboarding companion choice to a persona id.
var AvatarMap = map[string]string{
	"Female - Friend": "1",
	"Male - Friend":   "2",
}

// DeepTriggers are the keywords that mark a message as an emotional moment.
// A trigger alone is not enough; the routing layer also requires message
// length over 50 characters so casual mentions don't upshift the model.
var DeepTriggers = []string{
	// Negative
	"sad", "upset", "anxious", "lonely", "fail", "broken", "worry", "hurt",
	"grief", "depressed", "exhausted", "scared", "angry", "frustrated",
	"hopeless", "overwhelmed", "stressed", "crying", "panic",
	// Positive (celebration moments)
	"amazing", "incredible", "best day", "so happy", "excited", "promotion",
	"got the job", "engaged", "pregnant", "won", "finally",
}
