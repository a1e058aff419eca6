// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/keepsakelabs/keepsake/services/gateway/companion"
	"github.com/keepsakelabs/keepsake/services/gateway/config"
	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/gateway/memory"
	"github.com/keepsakelabs/keepsake/services/gateway/observability"
	"github.com/keepsakelabs/keepsake/services/llm"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// returningThreshold separates a continued session from a comeback.
	returningThreshold = 24 * time.Hour

	// coinsPerTurn is the base coin reward for each completed turn.
	coinsPerTurn = 2

	// giftAmount is the surprise bonus an autonomous companion can grant.
	giftAmount = 15

	// giftChance is the per-turn probability of a surprise gift once the
	// companion's agency score has grown past giftAgencyFloor.
	giftChance      = 0.1
	giftAgencyFloor = 20

	// messageLimitText matches the upgrade prompt string the mobile client
	// pattern-matches on. Do not reword without a client release.
	messageLimitText = "Message limit reached. Upgrade for unlimited conversations."

	// backgroundTaskTimeout bounds fact extraction and vector writes that
	// run after the response is already sent.
	backgroundTaskTimeout = 30 * time.Second
)

// =============================================================================
// Turn Types
// =============================================================================

// turnError is a pipeline failure mapped to an HTTP status, a metrics error
// code, and a client-safe message.
type turnError struct {
	Status  int
	Code    observability.ErrorCode
	Message string
}

// turnState is everything prepareTurn resolves for one chat turn. The
// document inside has the user's message already appended and the emotional
// state already updated; finalizeTurn appends the reply and persists.
type turnState struct {
	userID  string
	req     *datatypes.ChatRequest
	doc     *datatypes.MemoryDocument
	tierCfg config.TierConfig

	model  string
	reason string
	isDeep bool

	// userMsgCount includes the message of this turn.
	userMsgCount int

	shouldAsk bool
	messages  []llm.Message
}

// =============================================================================
// Turn Preparation
// =============================================================================

// prepareTurn runs the pre-generation half of the chat pipeline.
//
// # Description
//
// Loads the memory document, enforces tier gates (scene access, free-tier
// message cap), updates the emotional state with the incoming message,
// selects the model, and assembles the full LLM message list: system prompt,
// the last ten turns, the user message, and a trailing style-enforcement
// system message.
//
// # Inputs
//
//   - trustFirstFlag: when true, req.IsFirstOfSession decides session-start
//     routing (the streaming path, where the client knows its own session
//     state). When false, an empty user history decides it.
//
// # Outputs
//
//   - *turnState: ready for generation; nil on error
//   - *turnError: HTTP status plus metrics code; nil on success
func prepareTurn(ctx context.Context, deps *ChatDeps, userID string, req *datatypes.ChatRequest, trustFirstFlag bool) (*turnState, *turnError) {
	doc, err := deps.Memory.Load(ctx, userID)
	if err != nil {
		slog.Error("Failed to load memory document", "user_id", userID, "error", err)
		return nil, &turnError{
			Status:  http.StatusInternalServerError,
			Code:    observability.ErrorCodeStorageError,
			Message: "Failed to load conversation state",
		}
	}

	tierCfg := deps.Tiers.ForTier(doc.Tier)

	if !deps.Tiers.SceneAvailable(req.Scene, doc.Tier) {
		return nil, &turnError{
			Status:  http.StatusForbidden,
			Code:    observability.ErrorCodeSceneLocked,
			Message: fmt.Sprintf("The %s scene is not available on the %s tier.", req.Scene, tierCfg.Name),
		}
	}

	userMsgsBefore := doc.UserMessageCount()
	if tierCfg.MessageLimit > 0 && userMsgsBefore >= tierCfg.MessageLimit {
		return nil, &turnError{
			Status:  http.StatusForbidden,
			Code:    observability.ErrorCodeMessageLimit,
			Message: messageLimitText,
		}
	}

	now := time.Now()

	// The previous activity stamp decides returning-user routing, so capture
	// it before overwriting.
	previousActive := doc.LastActiveTimestamp
	doc.LastActiveTimestamp = now.Format(time.RFC3339)

	doc.History = append(doc.History, datatypes.ChatMessage{Role: "user", Content: req.Message})
	doc.EmotionalState = companion.UpdateEmotionalState(req.Message, doc.EmotionalState)

	isDeep, _ := companion.DetectDeepMoment(req.Message)

	isFirst := userMsgsBefore == 0
	if trustFirstFlag {
		isFirst = req.IsFirstOfSession
	}

	model, reason, consumedTaste := companion.SelectModel(deps.Tiers, companion.RoutingInput{
		Tier:             doc.Tier,
		IsDeep:           isDeep,
		IsFirstOfSession: isFirst,
		IsReturning:      isReturningUser(previousActive, now),
		FreeTasteUsed:    doc.Free4oTasteUsed,
	})
	if consumedTaste {
		doc.Free4oTasteUsed = true
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordModelSelection(model, reason)
	}

	validFacts, _ := memory.ValidFactsWithExpiry(doc.UserFacts, doc.Tier, tierCfg.MemoryHours, now)
	factsText := "(No stored facts yet)"
	if len(validFacts) > 0 {
		factsText = strings.Join(validFacts, "\n")
	}
	if doc.Tier == config.TierFree {
		factsText += "\n(Free tier: 48-hour memory window)"
	}

	ragText := ""
	if tierCfg.RAGEnabled {
		ragText = deps.Memory.RetrieveContext(ctx, userID, req.Message)
	}

	strategy, strategyAllows := companion.ValueStrategy(doc.EmotionalState, req.Message)

	userMsgCount := userMsgsBefore + 1
	systemPrompt, vibeAllows := companion.BuildSystemPrompt(deps.Personas, companion.PromptInput{
		AvatarID:      doc.AvatarID,
		UserName:      profileName(doc.UserProfile),
		CompanionName: companionName(doc.UserProfile),
		UserMsgCount:  userMsgCount,
		State:         doc.EmotionalState,
		Vibe:          req.Vibe,
		Scene:         req.Scene,
		FactsText:     factsText,
		RAGText:       ragText,
		Strategy:      companion.StrategyInstruction(strategy),
		TimeOffset:    doc.TimeOffset,
		Now:           now,
	})
	shouldAsk := vibeAllows && strategyAllows

	messages := make([]llm.Message, 0, companion.ContextWindow+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, msg := range lastMessages(doc.History, companion.ContextWindow) {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: companion.StyleEnforcement(isDeep, shouldAsk),
	})

	return &turnState{
		userID:       userID,
		req:          req,
		doc:          doc,
		tierCfg:      tierCfg,
		model:        model,
		reason:       reason,
		isDeep:       isDeep,
		userMsgCount: userMsgCount,
		shouldAsk:    shouldAsk,
		messages:     messages,
	}, nil
}

// chatBackend picks the client that generates this turn. Deep moments on
// priority-routed tiers go to the dedicated deep backend when one is
// configured; every other turn uses the primary backend.
func (st *turnState) chatBackend(deps *ChatDeps) llm.LLMClient {
	if deps.DeepChat != nil && st.isDeep && st.tierCfg.PriorityRouting {
		return deps.DeepChat
	}
	return deps.Chat
}

// generationParams returns the sampling parameters for this turn.
func (st *turnState) generationParams() llm.GenerationParams {
	temp := float32(companion.ChatTemperature)
	return llm.GenerationParams{
		Model:       st.model,
		Temperature: &temp,
	}
}

// =============================================================================
// Turn Finalization
// =============================================================================

// finalizeTurn runs the post-generation half of the chat pipeline.
//
// # Description
//
// Appends the assistant reply, credits the turn reward (plus the occasional
// autonomous gift), persists the document, and kicks off the background
// tasks: periodic fact extraction and long-term vector storage for
// substantial paid-tier messages.
//
// # Outputs
//
//   - error: non-nil when persisting the document failed. The reply was
//     already generated; callers should still deliver it.
func finalizeTurn(ctx context.Context, deps *ChatDeps, st *turnState, answer string) error {
	st.doc.History = append(st.doc.History, datatypes.ChatMessage{Role: "assistant", Content: answer})

	st.doc.Balance += coinsPerTurn
	if m := observability.DefaultMetrics; m != nil {
		m.RecordCoins("earned", coinsPerTurn)
	}
	if st.doc.EmotionalState.Agency > giftAgencyFloor && rand.Float64() < giftChance {
		st.doc.Balance += giftAmount
		if m := observability.DefaultMetrics; m != nil {
			m.RecordCoins("gifted", giftAmount)
		}
		slog.Info("Companion granted a surprise gift",
			"user_id", st.userID, "amount", giftAmount)
	}

	if err := deps.Memory.Save(ctx, st.userID, st.doc); err != nil {
		slog.Error("Failed to save memory document", "user_id", st.userID, "error", err)
		return err
	}

	if st.userMsgCount%companion.FactExtractionInterval == 0 {
		history := append([]datatypes.ChatMessage(nil), st.doc.History...)
		go extractFactsBackground(deps, st.userID, history)
	}
	if len(st.req.Message) > memory.MinVectorLength && st.doc.Tier >= config.TierPlus {
		message := st.req.Message
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
			defer cancel()
			if err := deps.Memory.SaveVectorMemory(bgCtx, st.userID, message); err != nil {
				slog.Warn("Failed to save vector memory", "user_id", st.userID, "error", err)
			}
		}()
	}

	return nil
}

// extractFactsBackground asks the utility model for new facts about the user
// and merges them into the document. Failures only log; the turn already
// succeeded.
func extractFactsBackground(deps *ChatDeps, userID string, history []datatypes.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
	defer cancel()

	prompt, ok := companion.FactExtractionPrompt(history)
	if !ok {
		return
	}

	result, err := deps.Utility.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		slog.Warn("Fact extraction failed", "user_id", userID, "error", err)
		return
	}

	facts, event := companion.ParseFactExtraction(result, time.Now())
	if len(facts) == 0 && event == nil {
		return
	}

	if err := deps.Memory.SaveFacts(ctx, userID, facts, event); err != nil {
		slog.Warn("Failed to save extracted facts", "user_id", userID, "error", err)
		return
	}
	if m := observability.DefaultMetrics; m != nil && len(facts) > 0 {
		m.RecordFactsExtracted(len(facts))
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// isReturningUser reports whether the previous activity stamp is at least a
// day old. Unparseable or missing stamps count as not returning.
func isReturningUser(lastActive string, now time.Time) bool {
	if lastActive == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, lastActive)
	if err != nil {
		return false
	}
	return now.Sub(t) >= returningThreshold
}

// lastMessages returns the newest n messages of the history.
func lastMessages(history []datatypes.ChatMessage, n int) []datatypes.ChatMessage {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// profileName returns the user's display name for prompts.
func profileName(p datatypes.UserProfile) string {
	if p.Name == "" {
		return "Friend"
	}
	return p.Name
}

// companionName returns the companion's display name for prompts.
func companionName(p datatypes.UserProfile) string {
	if p.CompanionName == "" {
		return "Keepsake"
	}
	return p.CompanionName
}

// sanitizeErrorForClient hides upstream provider details from clients.
func sanitizeErrorForClient(errMsg string) string {
	slog.Debug("Sanitizing error for client", "original_error", errMsg)
	return "An error occurred while processing your request"
}

// tokenCounter is a goroutine-safe token tally shared between the stream
// relay and the metrics defer.
type tokenCounter struct {
	n atomic.Int64
}

func (t *tokenCounter) Inc()      { t.n.Add(1) }
func (t *tokenCounter) Load() int { return int(t.n.Load()) }
