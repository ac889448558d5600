// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the request and response types for the turn-handling
// contract the engine exposes to its transport layer.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxUtteranceBytes bounds a single user utterance. Checked in bytes,
	// not runes, so oversized payloads cannot exhaust memory.
	MaxUtteranceBytes = 32 * 1024 // 32KB

	// MaxSessionIDLength bounds client-supplied session identifiers.
	MaxSessionIDLength = 64
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// turnValidate is the validator for turn request types, initialized with the
// custom byte-size validator.
var turnValidate *validator.Validate

func init() {
	turnValidate = validator.New()
	_ = turnValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxUtteranceBytes on string fields tagged with
// `maxbytes`. Checked in bytes, not runes; see MaxUtteranceBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxUtteranceBytes
}

// =============================================================================
// Turn Request / Response
// =============================================================================

// TurnRequest is one inbound chat message.
//
// SessionID is optional: when absent or unknown a new session is created and
// its identifier returned in the response. Message may be empty or
// whitespace-only; that is valid input and degrades to the general mood, it
// is never rejected.
type TurnRequest struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=64"`
	Message   string `json:"message" validate:"maxbytes"`
}

// Validate checks structural limits on the request. Content-level problems
// (empty text, unknown words) are never validation errors.
func (r *TurnRequest) Validate() error {
	if err := turnValidate.Struct(r); err != nil {
		return fmt.Errorf("turn request validation failed: %w", err)
	}
	return nil
}

// MoodSummary is the externally visible slice of a MoodResult.
type MoodSummary struct {
	Label      Category   `json:"label"`
	Confidence float64    `json:"confidence"`
	Intensity  float64    `json:"intensity"`
	Source     MoodSource `json:"source"`
}

// TurnResponse is the engine's answer for one turn.
//
// # Fields
//
//   - ResponseText: The user-facing reply. Always non-empty; internal
//     failures degrade to a template, never to an empty or error reply.
//   - SessionID: The session the turn was recorded under (newly created
//     when the request carried none).
//   - Mood: The classified mood summary.
//   - NavigationSuggestion: Category route suggestion, present only when
//     the navigate tool ran.
//   - ComposePath: Which composer path produced the text: "template",
//     "generated", or "fallback" when a failed generation degraded to
//     a template.
//   - ToolTrace: Per-call tool execution records, in dispatch order.
type TurnResponse struct {
	ResponseText         string      `json:"response_text"`
	SessionID            string      `json:"session_id"`
	Mood                 MoodSummary `json:"mood"`
	NavigationSuggestion Category    `json:"navigation_suggestion,omitempty"`
	ComposePath          string      `json:"compose_path"`
	ToolTrace            []ToolCall  `json:"tool_trace"`
}

// HistoryResponse wraps a session's turn log with derived flow stats.
type HistoryResponse struct {
	SessionID string             `json:"session_id"`
	Turns     []ConversationTurn `json:"turns"`
	Stats     ConversationStats  `json:"conversation_stats"`
}
