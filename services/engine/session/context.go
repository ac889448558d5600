// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"fmt"
	"strings"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

// historyHeader introduces the retained turns in the rendered context.
const historyHeader = "Recent conversation:\n"

// PromptContext is the bounded context block for one turn: the
// classified mood, the retained turn history, and the current
// utterance.
//
// # Description
//
// The composer embeds the rendered block into its generation prompt.
// Turns are retained newest-first under the token budget, so when
// history outgrows the budget the oldest turns disappear first. The
// mood line and the current utterance are never evicted, even when
// they alone exceed the budget.
type PromptContext struct {
	Mood      datatypes.MoodResult
	Turns     []datatypes.ConversationTurn
	Utterance string

	// Tokens is the counted size of the rendered block.
	Tokens int

	// Evicted is how many history turns were dropped to fit.
	Evicted int
}

// Render formats the context block. The output is deterministic for a
// given PromptContext.
func (c PromptContext) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mood: %s (confidence %.2f)\n", c.Mood.Label, c.Mood.Confidence)
	if len(c.Turns) > 0 {
		b.WriteString(historyHeader)
		for _, t := range c.Turns {
			b.WriteString(turnLine(t))
		}
	}
	fmt.Fprintf(&b, "Current message: %s\n", c.Utterance)
	return b.String()
}

func turnLine(t datatypes.ConversationTurn) string {
	return fmt.Sprintf("%s: %s\n", t.Role, t.Content)
}

// BuildContext assembles the prompt context for one turn.
//
// # Description
//
// History arrives in conversation order, most recent last. Turns are
// admitted newest-first while the rendered block stays under the token
// budget, so the oldest turns drop out first. Costs are counted per
// line; a sum of per-line counts never undercounts the full render.
//
// # Inputs
//
//   - mood: The classified mood for the current utterance.
//   - history: Prior turns, most recent last.
//   - utterance: The current user message. Always retained.
//   - counter: Token counter. Nil falls back to the shared counter.
//   - budget: Token ceiling for the rendered block.
//
// # Outputs
//
//   - PromptContext: The bounded context, ready to render.
func BuildContext(mood datatypes.MoodResult, history []datatypes.ConversationTurn, utterance string, counter TokenCounter, budget int) PromptContext {
	if counter == nil {
		counter = NewTokenCounter()
	}

	pc := PromptContext{Mood: mood, Utterance: utterance}
	remaining := budget - counter.Count(pc.Render())

	kept := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := counter.Count(turnLine(history[i]))
		if kept == 0 {
			cost += counter.Count(historyHeader)
		}
		if cost > remaining {
			break
		}
		remaining -= cost
		kept++
	}

	if kept > 0 {
		pc.Turns = append(pc.Turns, history[len(history)-kept:]...)
	}
	pc.Evicted = len(history) - kept
	pc.Tokens = counter.Count(pc.Render())
	return pc
}
