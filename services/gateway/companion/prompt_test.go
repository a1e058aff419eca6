// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package companion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
)

// newTestPersonaStore returns a store with the built-in fallbacks (no
// prompts directory on disk).
func newTestPersonaStore(t *testing.T) *PersonaStore {
	t.Helper()
	store, err := NewPersonaStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLocalHour_WrapsAroundMidnight(t *testing.T) {
	now := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, LocalHour(now, 5))
	assert.Equal(t, 12, LocalHour(now, -10))
}

func TestTimePeriod(t *testing.T) {
	assert.Equal(t, "Morning", TimePeriod(5))
	assert.Equal(t, "Morning", TimePeriod(11))
	assert.Equal(t, "Afternoon", TimePeriod(12))
	assert.Equal(t, "Afternoon", TimePeriod(17))
	assert.Equal(t, "Evening", TimePeriod(18))
	assert.Equal(t, "Evening", TimePeriod(3))
}

func TestWeeklyVibe(t *testing.T) {
	sundayNight := time.Date(2026, 3, 8, 20, 0, 0, 0, time.UTC) // Sunday
	assert.Contains(t, WeeklyVibe(sundayNight, 20), "Sunday Scaries")

	saturday := time.Date(2026, 3, 7, 14, 0, 0, 0, time.UTC)
	assert.Contains(t, WeeklyVibe(saturday, 14), "Weekend")

	mondayMorning := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	assert.Contains(t, WeeklyVibe(mondayMorning, 8), "Monday Morning")

	fridayNight := time.Date(2026, 3, 13, 19, 0, 0, 0, time.UTC)
	assert.Contains(t, WeeklyVibe(fridayNight, 19), "Friday Night")

	wednesday := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	assert.Contains(t, WeeklyVibe(wednesday, 12), "Mid-week")
}

// Body Double blocks questions no matter how high the vibe is.
func TestSceneContext_BodyDoubleNeverAllowsQuestions(t *testing.T) {
	desc, allows := SceneContext(SceneBodyDouble, "TIMELINE: Mid-week Routine.", 90)

	assert.False(t, allows)
	assert.Contains(t, desc, "COMPANIONABLE SILENCE")
}

func TestSceneContext_VibeGatesQuestions(t *testing.T) {
	_, allows := SceneContext(SceneCafe, "", 29)
	assert.False(t, allows)

	_, allows = SceneContext(SceneCafe, "", 30)
	assert.True(t, allows)
}

func TestSceneContext_DefaultSceneIncludesTimeline(t *testing.T) {
	desc, _ := SceneContext(SceneLounge, "TIMELINE: Weekend. Vibe: Social, lazy, recharge.", 50)

	assert.Contains(t, desc, "Casual chat")
	assert.Contains(t, desc, "TIMELINE: Weekend")
}

func TestBuildSystemPrompt_NewRelationship(t *testing.T) {
	store := newTestPersonaStore(t)

	prompt, _ := BuildSystemPrompt(store, PromptInput{
		AvatarID:      "1",
		UserName:      "Sam",
		CompanionName: "Keepsake",
		UserMsgCount:  3,
		State:         datatypes.DefaultEmotionalState(),
		Vibe:          50,
		Scene:         SceneLounge,
		FactsText:     "(No stored facts yet)",
		Strategy:      StrategyInstruction(StrategyExploration),
		Now:           time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, prompt, "NEW RELATIONSHIP")
	assert.Contains(t, prompt, "EARLY RELATIONSHIP")
	assert.Contains(t, prompt, `"Keepsake", talking to "Sam"`)
	assert.Contains(t, prompt, "(No stored facts yet)")
	assert.Contains(t, prompt, "PRIMARY VALUE: EXPLORATION")
	assert.NotContains(t, prompt, "RELEVANT PAST CONTEXT")
}

func TestBuildSystemPrompt_CloseAllyAfterTwentyMessages(t *testing.T) {
	store := newTestPersonaStore(t)
	state := datatypes.DefaultEmotionalState()
	state.Closeness = 55

	prompt, _ := BuildSystemPrompt(store, PromptInput{
		AvatarID:     "1",
		UserMsgCount: 40,
		State:        state,
		Vibe:         50,
		Scene:        SceneLounge,
		Now:          time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, prompt, "CLOSE ALLY")
	assert.Contains(t, prompt, "ESTABLISHED RELATIONSHIP")
}

func TestBuildSystemPrompt_RAGContextIncluded(t *testing.T) {
	store := newTestPersonaStore(t)

	prompt, _ := BuildSystemPrompt(store, PromptInput{
		AvatarID: "1",
		State:    datatypes.DefaultEmotionalState(),
		Vibe:     50,
		Scene:    SceneLounge,
		RAGText:  "- user mentioned a big presentation",
		Now:      time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, prompt, "RELEVANT PAST CONTEXT")
	assert.Contains(t, prompt, "big presentation")
}

// The scene gate and the vibe gate combine through the returned flag.
func TestBuildSystemPrompt_QuestionFlag(t *testing.T) {
	store := newTestPersonaStore(t)
	in := PromptInput{
		AvatarID: "1",
		State:    datatypes.DefaultEmotionalState(),
		Scene:    SceneBodyDouble,
		Vibe:     80,
		Now:      time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC),
	}

	_, allows := BuildSystemPrompt(store, in)
	assert.False(t, allows)

	in.Scene = SceneLounge
	_, allows = BuildSystemPrompt(store, in)
	assert.True(t, allows)
}

func TestStyleEnforcement_DeepMoment(t *testing.T) {
	text := StyleEnforcement(true, true)

	assert.Contains(t, text, "DEEP MOMENT DETECTED")
	assert.Contains(t, text, "BRIDGE PATTERN")
	assert.Contains(t, text, "BANNED PHRASES")
}

func TestStyleEnforcement_NoQuestionsMode(t *testing.T) {
	text := StyleEnforcement(false, false)

	assert.Contains(t, text, "NO QUESTIONS MODE")
	assert.NotContains(t, text, "DEEP MOMENT DETECTED")
}

func TestGreetingPrompt_MandatoryOpener(t *testing.T) {
	store := newTestPersonaStore(t)
	morning := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	prompt, period := GreetingPrompt(store, "1", 50, 0, "", morning)

	assert.Equal(t, "Morning", period)
	assert.Contains(t, prompt, "MANDATORY START: 'Good Morning. How is it going?'")
	assert.NotContains(t, prompt, "ask casually about this event")
}

func TestGreetingPrompt_EventRecall(t *testing.T) {
	store := newTestPersonaStore(t)
	evening := time.Date(2026, 3, 11, 20, 0, 0, 0, time.UTC)

	prompt, period := GreetingPrompt(store, "1", 50, 0, "job interview", evening)

	assert.Equal(t, "Evening", period)
	assert.Contains(t, prompt, "ask casually about this event: 'job interview'")
}

func TestGreetingPrompt_TimeOffsetShiftsPeriod(t *testing.T) {
	store := newTestPersonaStore(t)
	utcNoon := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	_, period := GreetingPrompt(store, "1", 50, 8, "", utcNoon)

	assert.Equal(t, "Evening", period)
}
