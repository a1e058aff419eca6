// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package companion

import (
	"strings"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
)

// Value strategies shape how much the companion asks versus offers.
const (
	StrategyPermission  = "PERMISSION"
	StrategyReciprocity = "RECIPROCITY"
	StrategyExploration = "EXPLORATION"
)

var (
	gratitudeWords = []string{"thanks", "better", "lighter", "helped"}
	lowMoodWords   = []string{"sad", "tired", "mad"}
	drainedWords   = []string{"tired", "drained", "exhausted", "overwhelmed", "can't"}
)

// UpdateEmotionalState applies one user message to the relationship scores.
// Scores are clamped to [0, 100].
func UpdateEmotionalState(message string, state datatypes.EmotionalState) datatypes.EmotionalState {
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, gratitudeWords):
		state.Stability += 15
		state.Warmth += 5
	case containsAny(lower, lowMoodWords):
		state.Stability -= 5
	}
	if len(message) > 60 {
		state.Closeness += 2
	}
	if state.Closeness > 30 {
		state.Agency += 1
	}

	state.Closeness = clampScore(state.Closeness)
	state.Warmth = clampScore(state.Warmth)
	state.Pace = clampScore(state.Pace)
	state.Stability = clampScore(state.Stability)
	state.SceneScore = clampScore(state.SceneScore)
	state.Agency = clampScore(state.Agency)
	return state
}

// ValueStrategy picks the conversational stance for this turn. The second
// return value reports whether the companion is allowed to ask questions.
func ValueStrategy(state datatypes.EmotionalState, message string) (strategy string, allowQuestions bool) {
	lower := strings.ToLower(message)
	if state.Stability < 50 || containsAny(lower, drainedWords) {
		return StrategyPermission, false
	}
	if state.Warmth > 60 {
		return StrategyReciprocity, true
	}
	return StrategyExploration, true
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
