// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"

	"github.com/auraquotes/aura/services/engine/corpus"
	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/mood"
	"github.com/auraquotes/aura/services/engine/session"
)

// paramHistory carries the recent conversation turns into analyze_mood.
// The dispatcher replaces it with a turn count in the trace snapshot;
// the session log is the durable record of turns.
const paramHistory = "history"

// defaultQuoteCount is how many quotes fetch_quotes returns when the
// count parameter is absent.
const defaultQuoteCount = 3

// RegisterEngineTools registers the engine's six turn tools.
//
// # Inputs
//
//   - registry: The target registry.
//   - classifier: Mood classifier backing analyze_mood.
//   - quotes: Quote store backing fetch_quotes.
//   - sessions: Session manager backing the bookkeeping tools.
func RegisterEngineTools(registry *Registry, classifier *mood.Classifier, quotes *corpus.Store, sessions *session.Manager) {
	registry.Register(NewAnalyzeMoodTool(classifier))
	registry.Register(NewNavigateTool())
	registry.Register(NewFetchQuotesTool(quotes))
	registry.Register(NewManageConversationTool(sessions))
	registry.Register(NewManageSessionTool(sessions))
	registry.Register(NewEmotionalSupportTool())
}

// ============================================================================
// analyze_mood Tool
// ============================================================================

// analyzeMoodTool wraps mood.Classifier.
type analyzeMoodTool struct {
	classifier *mood.Classifier
}

// NewAnalyzeMoodTool creates the analyze_mood tool.
func NewAnalyzeMoodTool(classifier *mood.Classifier) Tool {
	return &analyzeMoodTool{classifier: classifier}
}

func (t *analyzeMoodTool) Name() string {
	return ToolAnalyzeMood
}

func (t *analyzeMoodTool) Category() ToolCategory {
	return CategoryAnalysis
}

func (t *analyzeMoodTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolAnalyzeMood,
		Description: "Classifies the user's message into a mood category with confidence and emotional intensity estimates",
		Parameters: map[string]ParamDef{
			"message": {
				Type:        ParamTypeString,
				Description: "The user message to classify; empty input classifies as general",
				Required:    true,
			},
			paramHistory: {
				Type:        ParamTypeArray,
				Description: "Recent conversation turns, most recent last",
				Required:    false,
			},
		},
		Category: CategoryAnalysis,
		Timeout:  analyzeTimeout,
	}
}

func (t *analyzeMoodTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	message, _ := params["message"].(string)
	history, _ := params[paramHistory].([]datatypes.ConversationTurn)

	result := t.classifier.Analyze(ctx, message, history)
	return &Result{
		Success: true,
		Output: map[string]any{
			"mood":                string(result.Label),
			"confidence":          result.Confidence,
			"emotional_intensity": result.Intensity,
			"source":              string(result.Source),
			"reasoning":           result.Reasoning,
		},
	}, nil
}

// moodFromOutput rebuilds a MoodResult from the analyze_mood output
// map. A missing or partial map degrades to the general mood with zero
// confidence rather than failing the turn.
func moodFromOutput(out map[string]any) datatypes.MoodResult {
	label, _ := out["mood"].(string)
	category, _ := datatypes.ParseCategory(label)
	source, _ := out["source"].(string)
	reasoning, _ := out["reasoning"].(string)
	return datatypes.MoodResult{
		Label:      category,
		Confidence: floatParam(out, "confidence"),
		Intensity:  floatParam(out, "emotional_intensity"),
		Source:     datatypes.MoodSource(source),
		Reasoning:  reasoning,
	}.Clamp()
}

// ============================================================================
// navigate Tool
// ============================================================================

// navigateTool maps a classified mood onto a quote collection page.
type navigateTool struct{}

// NewNavigateTool creates the navigate tool.
func NewNavigateTool() Tool {
	return navigateTool{}
}

func (navigateTool) Name() string {
	return ToolNavigate
}

func (navigateTool) Category() ToolCategory {
	return CategoryRetrieval
}

func (navigateTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolNavigate,
		Description: "Recommends the quote collection page matching the classified mood",
		Parameters: map[string]ParamDef{
			"mood": {
				Type:        ParamTypeString,
				Description: "Classified mood category",
				Required:    true,
				Enum:        categoryEnum(),
			},
			"confidence": {
				Type:        ParamTypeFloat,
				Description: "Classifier confidence in [0, 1]",
				Required:    true,
			},
		},
		Category: CategoryRetrieval,
	}
}

func (navigateTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	label, _ := params["mood"].(string)
	confidence := floatParam(params, "confidence")
	category, _ := datatypes.ParseCategory(label)

	return &Result{
		Success: true,
		Output: map[string]any{
			"recommended_page":     category.PagePath(),
			"category":             string(category),
			"confidence":           confidence,
			"navigation_reasoning": fmt.Sprintf("Based on %s mood with %.2f confidence", category, confidence),
		},
	}, nil
}

// ============================================================================
// fetch_quotes Tool
// ============================================================================

// fetchQuotesTool wraps corpus.Store.
type fetchQuotesTool struct {
	quotes *corpus.Store
}

// NewFetchQuotesTool creates the fetch_quotes tool.
func NewFetchQuotesTool(quotes *corpus.Store) Tool {
	return &fetchQuotesTool{quotes: quotes}
}

func (t *fetchQuotesTool) Name() string {
	return ToolFetchQuotes
}

func (t *fetchQuotesTool) Category() ToolCategory {
	return CategoryRetrieval
}

func (t *fetchQuotesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolFetchQuotes,
		Description: "Fetches the best quotes for a category from the corpus store",
		Parameters: map[string]ParamDef{
			"category": {
				Type:        ParamTypeString,
				Description: "Quote category to fetch from",
				Required:    true,
				Enum:        categoryEnum(),
			},
			"count": {
				Type:        ParamTypeInt,
				Description: "How many quotes to return",
				Required:    false,
				Default:     defaultQuoteCount,
			},
		},
		Category: CategoryRetrieval,
		Timeout:  storeTimeout,
	}
}

func (t *fetchQuotesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	raw, _ := params["category"].(string)
	category, _ := datatypes.ParseCategory(raw)
	count := intParam(params, "count", defaultQuoteCount)

	// Overfetch so ranking has candidates to discard.
	candidates, err := t.quotes.ByCategory(category, count*2)
	if err != nil {
		return &Result{
			Success: false,
			Output: map[string]any{
				"quotes":   []datatypes.Quote{},
				"category": string(category),
			},
			Error: err.Error(),
		}, nil
	}

	ranked := corpus.Rank(candidates, count)
	return &Result{
		Success: true,
		Output: map[string]any{
			"quotes":   ranked,
			"category": string(category),
			"count":    len(ranked),
			"source":   "database_enhanced",
		},
	}, nil
}

// ============================================================================
// manage_conversation Tool
// ============================================================================

// manageConversationTool wraps session.Manager flow stats.
type manageConversationTool struct {
	sessions *session.Manager
}

// NewManageConversationTool creates the manage_conversation tool.
func NewManageConversationTool(sessions *session.Manager) Tool {
	return &manageConversationTool{sessions: sessions}
}

func (t *manageConversationTool) Name() string {
	return ToolManageConversation
}

func (t *manageConversationTool) Category() ToolCategory {
	return CategoryBookkeeping
}

func (t *manageConversationTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolManageConversation,
		Description: "Reports conversation flow stats: message count, engagement level, and stage",
		Parameters: map[string]ParamDef{
			"session_id": {
				Type:        ParamTypeString,
				Description: "Session to report on; empty means a session not yet started",
				Required:    true,
			},
		},
		Category: CategoryBookkeeping,
		Timeout:  storeTimeout,
	}
}

func (t *manageConversationTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := params["session_id"].(string)

	stats, err := t.sessions.Stats(ctx, sessionID)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{
		Success: true,
		Output: map[string]any{
			"is_new_conversation": stats.IsNewConversation,
			"message_count":       stats.MessageCount,
			"engagement_level":    stats.EngagementLevel,
			"conversation_stage":  stats.Stage,
		},
	}, nil
}

// ============================================================================
// manage_session Tool
// ============================================================================

// manageSessionTool wraps session.Manager lifecycle.
type manageSessionTool struct {
	sessions *session.Manager
}

// NewManageSessionTool creates the manage_session tool.
func NewManageSessionTool(sessions *session.Manager) Tool {
	return &manageSessionTool{sessions: sessions}
}

func (t *manageSessionTool) Name() string {
	return ToolManageSession
}

func (t *manageSessionTool) Category() ToolCategory {
	return CategoryBookkeeping
}

func (t *manageSessionTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolManageSession,
		Description: "Establishes the turn's session, minting a new one when the request carried no id",
		Parameters: map[string]ParamDef{
			"session_id": {
				Type:        ParamTypeString,
				Description: "Requested session id; empty mints a fresh session",
				Required:    true,
			},
		},
		Category:    CategoryBookkeeping,
		SideEffects: true,
		Timeout:     storeTimeout,
	}
}

func (t *manageSessionTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	sessionID, _ := params["session_id"].(string)

	sess, created, err := t.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	action := "session_updated"
	if created {
		action = "session_created"
	}

	return &Result{
		Success: true,
		Output: map[string]any{
			"action":     action,
			"session_id": sess.ID,
		},
	}, nil
}

// ============================================================================
// emotional_support Tool
// ============================================================================

// supportMessages are the per-category support lines.
var supportMessages = map[datatypes.Category]string{
	datatypes.CategoryMotivational:  "Remember, every expert was once a beginner. You have the strength to achieve your goals! 💪",
	datatypes.CategoryRomantic:      "Love is a beautiful journey with ups and downs. Your heart's capacity for love is a gift. 💝",
	datatypes.CategoryFunny:         "Laughter truly is the best medicine! Keep that beautiful sense of humor alive. 😄",
	datatypes.CategoryInspirational: "You're exactly where you need to be in your journey. Trust the process and keep growing. ✨",
}

// supportFallback covers categories without a dedicated support line.
const supportFallback = "You're doing great! Keep going! 🌟"

// emotionalSupportTool produces a supportive line for intense moods.
type emotionalSupportTool struct{}

// NewEmotionalSupportTool creates the emotional_support tool.
func NewEmotionalSupportTool() Tool {
	return emotionalSupportTool{}
}

func (emotionalSupportTool) Name() string {
	return ToolEmotionalSupport
}

func (emotionalSupportTool) Category() ToolCategory {
	return CategorySupport
}

func (emotionalSupportTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolEmotionalSupport,
		Description: "Produces a supportive message addressed to the user's mood",
		Parameters: map[string]ParamDef{
			"mood": {
				Type:        ParamTypeString,
				Description: "Classified mood category",
				Required:    true,
				Enum:        categoryEnum(),
			},
			"intensity": {
				Type:        ParamTypeFloat,
				Description: "Emotional intensity in [0, 1]",
				Required:    true,
			},
		},
		Category: CategorySupport,
	}
}

func (emotionalSupportTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	label, _ := params["mood"].(string)
	intensity := floatParam(params, "intensity")
	category, _ := datatypes.ParseCategory(label)

	message, ok := supportMessages[category]
	if !ok {
		message = supportFallback
	}

	return &Result{
		Success: true,
		Output: map[string]any{
			"support_provided": intensity > 0.5,
			"support_message":  message,
			"intensity_level":  intensity,
			"mood_addressed":   string(category),
		},
	}, nil
}

// ============================================================================
// Parameter helpers
// ============================================================================

// categoryEnum lists the valid category strings for enum validation.
func categoryEnum() []any {
	out := make([]any, 0, len(datatypes.AllCategories))
	for _, c := range datatypes.AllCategories {
		out = append(out, string(c))
	}
	return out
}

// floatParam reads a numeric parameter, accepting int and float64.
func floatParam(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// intParam reads an integer parameter, falling back when absent or
// non-numeric.
func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
