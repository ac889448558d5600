// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"
)

// =============================================================================
// Sessions and Turns
// =============================================================================

// Session ties together the conversation turns of one client over time.
// The identifier is an opaque server-generated token; lifetime is open-ended
// but sessions become eligible for cleanup after an inactivity threshold.
type Session struct {
	ID         string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// TurnRole is the speaker of a conversation turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// ToolCall records one tool execution inside a turn's trace.
//
// # Description
//
// The dispatcher records every tool it runs: the tool name, snapshots of the
// input and output, the wall-clock duration, and an error marker when the
// tool failed and the pipeline degraded past it. Tool names in a persisted
// trace always exist in the registry at call time; an unknown name is a
// programming error, not user-facing data.
type ToolCall struct {
	Tool       string         `json:"tool"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// TurnTrace is the structured record of what the engine did for one turn:
// the classified mood, every tool call in dispatch order, and which compose
// path produced the reply.
type TurnTrace struct {
	Mood        MoodResult `json:"mood"`
	Calls       []ToolCall `json:"calls"`
	ComposePath string     `json:"compose_path,omitempty"`
}

// ToolNames returns the tool names in the trace, in call order.
func (t *TurnTrace) ToolNames() []string {
	names := make([]string, 0, len(t.Calls))
	for _, c := range t.Calls {
		names = append(names, c.Tool)
	}
	return names
}

// ConversationTurn is one entry in a session's append-only log.
//
// Turns are immutable once written and ordered by a monotonically increasing
// sequence number within their session. Only user turns carry no trace; the
// assistant turn produced for a user message embeds the full TurnTrace.
type ConversationTurn struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	Seq       int        `json:"seq"`
	Role      TurnRole   `json:"role"`
	Content   string     `json:"content"`
	Trace     *TurnTrace `json:"trace,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ConversationStats summarizes the flow of a conversation for bookkeeping
// and the history endpoint. Engagement grows with message count and caps at
// 1.0 after ten messages; the stage flips from opening to ongoing at the
// third message.
type ConversationStats struct {
	IsNewConversation bool    `json:"is_new_conversation"`
	MessageCount      int     `json:"message_count"`
	EngagementLevel   float64 `json:"engagement_level"`
	Stage             string  `json:"conversation_stage"`
}

// NewConversationStats derives flow stats from the number of prior messages.
func NewConversationStats(priorMessages int) ConversationStats {
	engagement := float64(priorMessages) / 10
	if engagement > 1 {
		engagement = 1
	}
	stage := "ongoing"
	if priorMessages < 3 {
		stage = "opening"
	}
	return ConversationStats{
		IsNewConversation: priorMessages == 0,
		MessageCount:      priorMessages,
		EngagementLevel:   engagement,
		Stage:             stage,
	}
}
