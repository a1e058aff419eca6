// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package companion

import (
	"fmt"
	"strings"
	"time"

	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
)

// FactExtractionInterval is how often (in user messages) extraction runs.
const FactExtractionInterval = 3

// SignificantEvent is an upcoming event extracted from conversation,
// recalled later in greetings while it is fresh.
type SignificantEvent struct {
	Name string
	Date string // YYYY-MM-DD
}

// FactExtractionPrompt builds the analysis prompt over the last ten user
// messages. The second return value is false when there is too little text
// to analyze and the extraction round should be skipped.
func FactExtractionPrompt(history []datatypes.ChatMessage) (string, bool) {
	var userTexts []string
	for _, m := range history {
		if m.Role == "user" {
			userTexts = append(userTexts, m.Content)
		}
	}
	if len(userTexts) > 10 {
		userTexts = userTexts[len(userTexts)-10:]
	}
	joined := strings.Join(userTexts, " ")
	if len(joined) < 5 {
		return "", false
	}

	prompt := fmt.Sprintf("ANALYZE: '%s'\n"+
		"Identify specific UPCOMING EVENTS (dates, appointments), FACTS about the user, or JOKES they made.\n"+
		"Output strictly in this format (or 'None' for each if not found):\n"+
		"EVENT: [Event Name or None]\n"+
		"FACT: [Fact content or None]\n"+
		"HUMOR: [Joke content or None]", joined)
	return prompt, true
}

// ParseFactExtraction parses the model's EVENT/FACT/HUMOR lines into stored
// fact strings and at most one significant event dated today.
func ParseFactExtraction(result string, now time.Time) ([]string, *SignificantEvent) {
	var facts []string
	var event *SignificantEvent

	for _, line := range strings.Split(result, "\n") {
		clean := strings.TrimSpace(line)
		if clean == "" || strings.EqualFold(clean, "none") {
			continue
		}
		upper := strings.ToUpper(clean)

		switch {
		case strings.Contains(upper, "FACT:"):
			if content, ok := extractLabelContent(clean); ok {
				facts = append(facts, "• "+content)
			}
		case strings.Contains(upper, "EVENT:"):
			if content, ok := extractLabelContent(clean); ok {
				event = &SignificantEvent{Name: content, Date: now.Format("2006-01-02")}
			}
		case strings.Contains(upper, "HUMOR:"):
			if content, ok := extractLabelContent(clean); ok {
				facts = append(facts, "• JOKE: "+content)
			}
		}
	}
	return facts, event
}

// extractLabelContent strips the "LABEL:" prefix and rejects None answers.
func extractLabelContent(line string) (string, bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) < 2 {
		return "", false
	}
	if strings.Contains(strings.ToLower(parts[1]), "none") {
		return "", false
	}
	content := strings.TrimSpace(parts[1])
	if content == "" {
		return "", false
	}
	return content, true
}
