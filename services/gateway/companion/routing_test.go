// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package companion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keepsakelabs/keepsake/services/gateway/config"
)

func TestDetectDeepMoment_KeywordAndLength(t *testing.T) {
	isDeep, hasKeyword := DetectDeepMoment(
		"I'm so anxious about tomorrow, I keep going over everything that could go wrong")

	assert.True(t, isDeep)
	assert.True(t, hasKeyword)
}

// A trigger word in a short message is casual mention, not a deep moment.
func TestDetectDeepMoment_ShortMessageNotDeep(t *testing.T) {
	isDeep, hasKeyword := DetectDeepMoment("bit anxious lol")

	assert.False(t, isDeep)
	assert.True(t, hasKeyword)
}

func TestDetectDeepMoment_NoKeyword(t *testing.T) {
	isDeep, hasKeyword := DetectDeepMoment(strings.Repeat("just a normal day at the office ", 3))

	assert.False(t, isDeep)
	assert.False(t, hasKeyword)
}

func TestDetectDeepMoment_CelebrationCounts(t *testing.T) {
	isDeep, _ := DetectDeepMoment(
		"I got the job!! I can't believe it, after all those interviews it finally happened")

	assert.True(t, isDeep)
}

func TestSelectModel_FreeTierDefault(t *testing.T) {
	tiers := config.DefaultTiers()

	model, reason, consumed := SelectModel(tiers, RoutingInput{Tier: config.TierFree})

	assert.Equal(t, "gpt-4o-mini", model)
	assert.Equal(t, ReasonDefault, reason)
	assert.False(t, consumed)
}

// The first deep moment on the free tier gets the premium model exactly once.
func TestSelectModel_FreeTierFirstDeepTaste(t *testing.T) {
	tiers := config.DefaultTiers()

	model, reason, consumed := SelectModel(tiers, RoutingInput{
		Tier:   config.TierFree,
		IsDeep: true,
	})

	assert.Equal(t, ModelDeep, model)
	assert.Equal(t, ReasonFirstDeepTaste, reason)
	assert.True(t, consumed)
}

func TestSelectModel_FreeTierTasteAlreadyUsed(t *testing.T) {
	tiers := config.DefaultTiers()

	model, reason, consumed := SelectModel(tiers, RoutingInput{
		Tier:          config.TierFree,
		IsDeep:        true,
		FreeTasteUsed: true,
	})

	assert.Equal(t, "gpt-4o-mini", model)
	assert.Equal(t, ReasonDeepMoment, reason)
	assert.False(t, consumed)
}

func TestSelectModel_PlusTierDeepMoment(t *testing.T) {
	tiers := config.DefaultTiers()

	model, reason, _ := SelectModel(tiers, RoutingInput{
		Tier:   config.TierPlus,
		IsDeep: true,
	})

	assert.Equal(t, "gpt-4o", model)
	assert.Equal(t, ReasonDeepMoment, reason)
}

func TestSelectModel_PremiumPriorityRouting(t *testing.T) {
	tiers := config.DefaultTiers()

	tests := []struct {
		name       string
		input      RoutingInput
		wantModel  string
		wantReason string
	}{
		{
			name:       "deep moment",
			input:      RoutingInput{Tier: config.TierPremium, IsDeep: true},
			wantModel:  "gpt-4o",
			wantReason: ReasonDeepMoment,
		},
		{
			name:       "first of session",
			input:      RoutingInput{Tier: config.TierPremium, IsFirstOfSession: true},
			wantModel:  "gpt-4o",
			wantReason: ReasonPriorityFirst,
		},
		{
			name:       "returning after a day",
			input:      RoutingInput{Tier: config.TierPremium, IsReturning: true},
			wantModel:  "gpt-4o",
			wantReason: ReasonPriorityReturn,
		},
		{
			name:       "plain mid-session turn",
			input:      RoutingInput{Tier: config.TierPremium},
			wantModel:  "gpt-4o-mini",
			wantReason: ReasonDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, reason, consumed := SelectModel(tiers, tt.input)
			assert.Equal(t, tt.wantModel, model)
			assert.Equal(t, tt.wantReason, reason)
			assert.False(t, consumed)
		})
	}
}

// Unknown tiers fall back to the free config, never a paid model.
func TestSelectModel_UnknownTierFallsBackToFree(t *testing.T) {
	tiers := config.DefaultTiers()

	model, _, _ := SelectModel(tiers, RoutingInput{Tier: 99})

	assert.Equal(t, "gpt-4o-mini", model)
}
