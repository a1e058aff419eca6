// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package companion

import (
	"strings"

	"github.com/keepsakelabs/keepsake/services/gateway/config"
)

// deepMinLength filters trigger words in throwaway messages. A deep moment
// needs both an emotional keyword and enough text to react to.
const deepMinLength = 50

// Model ids used by the routing table.
const (
	ModelDeep = "gpt-4o"
)

// Routing reasons recorded on the model_selections metric.
const (
	ReasonDefault        = "default"
	ReasonDeepMoment     = "deep_moment"
	ReasonPriorityFirst  = "priority_first_of_session"
	ReasonPriorityReturn = "priority_returning"
	ReasonFirstDeepTaste = "first_deep_taste"
)

// DetectDeepMoment reports whether a message qualifies as an emotionally
// heavy moment. The second return value reports whether a trigger keyword
// was present at all, regardless of length.
func DetectDeepMoment(message string) (isDeep, hasKeyword bool) {
	lower := strings.ToLower(message)
	for _, trigger := range config.DeepTriggers {
		if strings.Contains(lower, trigger) {
			hasKeyword = true
			break
		}
	}
	isDeep = hasKeyword && len(message) > deepMinLength
	return isDeep, hasKeyword
}

// RoutingInput carries everything SelectModel needs to pick a model.
type RoutingInput struct {
	Tier             int
	IsDeep           bool
	IsFirstOfSession bool
	IsReturning      bool
	FreeTasteUsed    bool
}

// SelectModel picks the chat model for one turn.
//
// Premium users get the deep model for deep moments and for priority
// moments (session start, returning after a day away). Plus users get it
// for deep moments. Free users get exactly one deep-model taste on their
// first deep moment; the caller is responsible for persisting the taste
// flag when the second return value is true.
func SelectModel(tiers config.Tiers, in RoutingInput) (model, reason string, consumedTaste bool) {
	cfg := tiers.ForTier(in.Tier)

	if cfg.PriorityRouting {
		switch {
		case in.IsDeep:
			return cfg.DeepModel, ReasonDeepMoment, false
		case in.IsFirstOfSession:
			return cfg.DeepModel, ReasonPriorityFirst, false
		case in.IsReturning:
			return cfg.DeepModel, ReasonPriorityReturn, false
		}
		return cfg.DefaultModel, ReasonDefault, false
	}

	if in.IsDeep {
		if cfg.FirstDeep4o && !in.FreeTasteUsed {
			return ModelDeep, ReasonFirstDeepTaste, true
		}
		if cfg.DeepModel != "" {
			return cfg.DeepModel, ReasonDeepMoment, false
		}
	}
	return cfg.DefaultModel, ReasonDefault, false
}
