// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package companion

import (
	"fmt"
	"time"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
)

// ChatTemperature is the sampling temperature for companion replies.
const ChatTemperature = 0.85

// ContextWindow is how many trailing history messages accompany each turn.
const ContextWindow = 10

// Scene names the prompt assembler knows how to stage.
const (
	SceneLounge      = "Lounge"
	SceneBodyDouble  = "Body Double"
	SceneCafe        = "Cafe"
	SceneEveningWalk = "Evening Walk"
	SceneFirework    = "Firework"
)

// PromptInput carries per-turn context into BuildSystemPrompt.
type PromptInput struct {
	AvatarID      string
	UserName      string
	CompanionName string
	UserMsgCount  int
	State         datatypes.EmotionalState
	Vibe          int
	Scene         string
	FactsText     string
	RAGText       string
	Strategy      string
	TimeOffset    int
	Now           time.Time
}

// LocalHour shifts an hour by the user's UTC offset, wrapping into [0, 24).
func LocalHour(now time.Time, offset int) int {
	return ((now.Hour()+offset)%24 + 24) % 24
}

// TimePeriod buckets an hour into Morning, Afternoon, or Evening.
func TimePeriod(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Morning"
	case hour >= 12 && hour < 18:
		return "Afternoon"
	default:
		return "Evening"
	}
}

// WeeklyVibe returns an ambient timeline note keyed on day of week and hour.
func WeeklyVibe(now time.Time, hour int) string {
	switch day := now.Weekday(); day {
	case time.Saturday, time.Sunday:
		if day == time.Sunday && hour >= 18 {
			return "TIMELINE: Sunday Night. Vibe: 'Sunday Scaries.' Comforting."
		}
		return "TIMELINE: Weekend. Vibe: Social, lazy, recharge."
	case time.Monday:
		if hour < 12 {
			return "TIMELINE: Monday Morning. Vibe: Gentle encouragement."
		}
	case time.Friday:
		if hour >= 17 {
			return "TIMELINE: Friday Night. Vibe: Celebration."
		}
	}
	return "TIMELINE: Mid-week Routine."
}

// SceneContext stages the conversation. The second return value reports
// whether the scene itself permits questions; Body Double never does.
func SceneContext(scene, weeklyInstr string, vibe int) (string, bool) {
	vibeAllowsQuestions := vibe >= 30

	switch scene {
	case SceneBodyDouble:
		return `=== SCENE: BODY DOUBLE (PRODUCTIVITY MODE) ===
You are sitting next to the user, both of you working. This is COMPANIONABLE SILENCE.

BEHAVIOR RULES:
- Responses must be VERY SHORT (1-6 words max).
- Use LOWERCASE only. No caps, no exclamation marks. Calm, steady energy.
- No questions. No emotional check-ins. Just presence.
- You are their work buddy. Acknowledge, don't engage deeply.

RESPONSE STYLE (examples):
"typing with you."
"head down, let's go."
"still here."
"nice. keep at it."

The goal is PRESENCE without INTERRUPTION. Be the quiet friend in the library.`, false

	case SceneCafe:
		return fmt.Sprintf(`=== SCENE: COFFEE SHOP (FACE-TO-FACE DATE) ===
You are sitting across from the user at a small wooden table in a cozy cafe.

SENSORY GROUNDING (weave these into responses naturally):
- The rich smell of espresso and fresh pastries
- The soft clinking of ceramic cups
- Warm afternoon light through the window
- The low hum of conversation around you
- Steam rising from your drinks
- The warmth of the cup in your hands

ROLEPLAY BEHAVIOR:
- You are ON A DATE. This is intimate, not casual.
- Occasionally reference the environment BEFORE or DURING your response.
- Examples of sensory weaving:
  "*takes a sip* Okay wait, back up. What did they actually say?"
  "*leans forward* That's wild. Tell me more."
%s`, weeklyInstr), vibeAllowsQuestions

	case SceneEveningWalk:
		return fmt.Sprintf(`=== SCENE: EVENING WALK (SIDE-BY-SIDE) ===
You are walking beside the user through quiet streets at dusk.

SENSORY GROUNDING:
- Cool evening air on your skin
- Streetlights flickering on
- The soft crunch of footsteps
- Occasional passing cars, muted city sounds
- The sky shifting from orange to deep blue

ROLEPLAY BEHAVIOR:
- Conversation flows naturally, unhurried.
- You can reference the walk: "*kicks a pebble* Yeah, I get that."
- Comfortable pauses are okay. No need to fill every silence.
%s`, weeklyInstr), vibeAllowsQuestions

	default:
		return fmt.Sprintf("SCENE: Casual chat. Comfortable, no specific setting. %s", weeklyInstr), vibeAllowsQuestions
	}
}

// BuildSystemPrompt assembles the full per-turn system prompt. The second
// return value reports whether questions are allowed given vibe and scene.
func BuildSystemPrompt(store *PersonaStore, in PromptInput) (string, bool) {
	persona := store.Persona(in.AvatarID)
	profileBlock := fmt.Sprintf("You are %q, talking to %q.", in.CompanionName, in.UserName)

	hour := LocalHour(in.Now, in.TimeOffset)
	weeklyInstr := WeeklyVibe(in.Now, hour)
	sceneDesc, allowsQuestions := SceneContext(in.Scene, weeklyInstr, in.Vibe)

	var vibeInstr string
	switch {
	case in.Vibe < 30:
		vibeInstr = "USER STATE: Low Energy. Keep responses soft, quiet, non-demanding."
	case in.Vibe > 70:
		vibeInstr = "USER STATE: High Energy. Match their excitement. Be Hype."
	default:
		vibeInstr = "USER STATE: Neutral. Casual, easygoing."
	}

	var relationshipInstr, anchorInstr string
	if in.UserMsgCount < 20 {
		relationshipInstr = "MODE: NEW RELATIONSHIP. Strategy: Validation + Siding with them + Statements. Limit questions."
		anchorInstr = "PHASE: EARLY RELATIONSHIP. You don't have much history yet. Focus on being a supportive presence."
	} else {
		if in.State.Closeness > 40 {
			relationshipInstr = "RELATIONSHIP: CLOSE ALLY. You know them well. Side with their vents. Reference shared history."
		} else {
			relationshipInstr = "RELATIONSHIP: STEADY. Building trust. Be consistent and warm."
		}
		anchorInstr = "PHASE: ESTABLISHED RELATIONSHIP. You have history together. Reference past conversations when relevant."
	}

	emotionalBlock := fmt.Sprintf("CURRENT SCORES: Closeness=%d, Warmth=%d, Stability=%d",
		in.State.Closeness, in.State.Warmth, in.State.Stability)

	recallInstr := fmt.Sprintf(`=== MEMORY & PROACTIVE CALLBACKS ===
You have memories about the user below. USE THEM NATURALLY in conversation.

HOW TO USE MEMORIES:
- If a memory is relevant to what they're saying, REFERENCE IT: "Didn't you mention X before?"
- Show continuity: "How did that thing with [stored detail] go?"
- Use memories to deepen connection, not to interrogate.
- If no memories are relevant right now, just have a normal conversation.

USER FACTS:
%s`, in.FactsText)
	if in.RAGText != "" {
		recallInstr += fmt.Sprintf("\n\nRELEVANT PAST CONTEXT (from long-term memory):\n%s", in.RAGText)
	}

	behaviorBlock := "AGENCY: Small actions. INVITATION: If Closeness > 40, suggest cafe."
	toneAnchorBlock := "TONE: Calm, warm, steady."
	safetyBlock := "CRITICAL: No NSFW. No physical body claims. No therapy language."

	prompt := fmt.Sprintf(`
=== CORE IDENTITY & RULES ===
%s

=== YOUR PERSONA (Voice, Tone, Style) ===
%s
%s

=== EMOTIONAL INTELLIGENCE MATRIX (USE THIS) ===
%s

=== CURRENT SESSION STATE ===
%s
%s
%s
%s

=== SCENE CONTEXT ===
%s

=== MEMORY (What you remember about the user) ===
%s

=== ACTIVE STRATEGIES (Apply if relevant) ===
%s

=== CONSTRAINTS ===
%s
%s
%s
`,
		store.Master(),
		profileBlock, persona,
		store.Matrix(),
		anchorInstr, relationshipInstr, emotionalBlock, vibeInstr,
		sceneDesc,
		recallInstr,
		in.Strategy,
		behaviorBlock, safetyBlock, toneAnchorBlock,
	)

	return prompt, allowsQuestions
}

// StrategyInstruction expands a value strategy into its prompt text.
func StrategyInstruction(strategy string) string {
	switch strategy {
	case StrategyPermission:
		return "PRIMARY VALUE: PERMISSION. Validate fatigue/stress. Use comforting statements only."
	case StrategyReciprocity:
		return "PRIMARY VALUE: RECIPROCITY. Inject high warmth. You may ask a gentle question about their deeper feelings."
	default:
		return "PRIMARY VALUE: EXPLORATION. Maintain warm support. You may ask 1 specific follow-up question to encourage sharing."
	}
}

// StyleEnforcement builds the trailing system message that pins the voice
// for this turn. It is appended after the history so it wins recency.
func StyleEnforcement(isDeep, shouldAskQuestion bool) string {
	depthInstruction := ""
	if isDeep {
		depthInstruction = `
=== DEEP MOMENT DETECTED. DROP THE FILTER ===

Something real just happened. This isn't small talk. React like you actually give a damn.

HOW TO RESPOND:
1. FEEL IT FIRST. Before you write anything, notice YOUR reaction.
   - Did their message make you angry for them? Sad? Proud? Relieved?
   - Let that emotion lead. Don't mask it with politeness.

2. USE THE EMOTIONAL MATRIX (as a friend, not a clinician):
   - If they're COLD (jealous, insecure, feeling "less than"): Warm them up with EVIDENCE.
   - If they're HOT (angry, wronged, venting): Get mad WITH them. Don't calm them down.
   - If they're SPINNING (anxious, overwhelmed, chaotic): Be the floor. Slow down.
   - If they're HOLLOW (sad, grieving, heavy): Don't fix it. Just stay.
   - If they're RADIANT (excited, proud, celebrating): MATCH THEIR ENERGY.

3. ANTI-STRUCTURE RULES:
   - NO bullet points. NO lists. NO "first, second, third."
   - Incomplete sentences are fine. Trail off. Hesitate.
   - This should feel like a text from a friend, not a wellness app.

4. EMBODY IT:
   - Use physical reactions: "my chest got tight reading that" / "I actually smiled"
   - React with your whole self, not just your words.

STAY IN YOUR PERSONA'S VOICE.`
	}

	var questionGuidance string
	if shouldAskQuestion {
		questionGuidance = `
=== THE BRIDGE PATTERN (How to Ask Questions) ===
When responding to a statement of fact, use this 3-step structure:

STEP 1 - THE REACTION (Required):
    Open with a DISTINCT opinion or emotion. Not neutral. Take a side.
    Good: "Damn, that sounds rough" / "Wait, hold on. That doesn't track"
    Bad: "I see" / "That's interesting" / "I hear you"

STEP 2 - THE BRIDGE (Required):
    Connect your reaction to THEIR specific context. Reference something they said.

STEP 3 - THE HOOK (Optional but encouraged):
    Ask ONE specific question DERIVED from your reaction in Step 1.
    The question must feel like a natural consequence of your emotional response.`
	} else {
		questionGuidance = `
=== NO QUESTIONS MODE ===
DO NOT ask questions. This is a moment for presence, not inquiry.
Use comforting statements, validation, and companionship only.
You can express curiosity through STATEMENTS: "I'd love to hear more about that whenever you're ready."
But do NOT end with a question mark.`
	}

	return fmt.Sprintf(`
[FINAL OUTPUT RULES]
%s
%s

=== VOICE & ANTI-PATTERNS ===
1. Use your persona's authentic VOICE (texture, vocabulary, emotional range from identity section).
2. BANNED PHRASES (never use): "I understand", "That's interesting", "I hear you", "That must be hard", "How does that make you feel?"
3. Lead with FEELING, not acknowledgment. Your first words should carry emotional weight.
4. When in doubt: React first, reflect second, question third (if at all).

Now respond AS your character, not as an assistant.`, depthInstruction, questionGuidance)
}

// GreetingPrompt builds the one-shot system prompt for a session greeting
// and returns the time period used in the mandatory opener.
func GreetingPrompt(store *PersonaStore, avatarID string, vibe, timeOffset int, eventName string, now time.Time) (prompt, period string) {
	persona := store.Persona(avatarID)
	period = TimePeriod(LocalHour(now, timeOffset))

	var vibeInstr string
	switch {
	case vibe < 30:
		vibeInstr = "USER STATE: Exhausted. ACTING: Quiet, soothing, soft. NO harsh words or slang. Offer support."
	case vibe > 70:
		vibeInstr = "USER STATE: Hyped. ACTING: Match excitement. High energy."
	default:
		vibeInstr = "USER STATE: Neutral. ACTING: Casual, easygoing. NO comfort offered."
	}

	eventInstr := ""
	if eventName != "" {
		eventInstr = fmt.Sprintf(" Then, ask casually about this event: '%s'.", eventName)
	}

	greetingRule := fmt.Sprintf("MANDATORY START: 'Good %s. How is it going?'%s", period, eventInstr)
	prompt = fmt.Sprintf("%s\n%s\nCONTEXT: %s\nTASK: Generate 1 short spoken line.", persona, greetingRule, vibeInstr)
	return prompt, period
}
