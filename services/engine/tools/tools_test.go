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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraquotes/aura/services/engine/corpus"
	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/mood"
	"github.com/auraquotes/aura/services/engine/session"
)

// newToolDeps builds the real dependencies behind the tool set: a
// rule-only classifier, an in-memory quote store, and an in-memory
// session manager.
func newToolDeps(t *testing.T) (*mood.Classifier, *corpus.Store, *session.Manager) {
	t.Helper()

	classifier, err := mood.NewClassifier(nil, nil, mood.DefaultConfig())
	require.NoError(t, err)

	quotes, err := corpus.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { quotes.Close() })

	store, err := session.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions, err := session.NewManager(store, nil, session.DefaultConfig())
	require.NoError(t, err)

	return classifier, quotes, sessions
}

func seedQuotes(t *testing.T, quotes *corpus.Store, category datatypes.Category, texts ...string) {
	t.Helper()
	for i, text := range texts {
		_, err := quotes.Insert(datatypes.Quote{
			Text:     text,
			Author:   fmt.Sprintf("Author %d", i+1),
			Category: category,
		})
		require.NoError(t, err)
	}
}

// =============================================================================
// analyze_mood
// =============================================================================

func TestAnalyzeMoodToolClassifies(t *testing.T) {
	classifier, _, _ := newToolDeps(t)
	tool := NewAnalyzeMoodTool(classifier)

	res, err := tool.Execute(context.Background(), map[string]any{
		"message": "I need motivation for my goals",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "motivational", res.Output["mood"])
	assert.Equal(t, 0.8, res.Output["confidence"])
	assert.Equal(t, 0.5, res.Output["emotional_intensity"])
	assert.Equal(t, string(datatypes.SourceRule), res.Output["source"])
	assert.NotEmpty(t, res.Output["reasoning"])
}

func TestAnalyzeMoodToolEmptyMessage(t *testing.T) {
	classifier, _, _ := newToolDeps(t)
	tool := NewAnalyzeMoodTool(classifier)

	res, err := tool.Execute(context.Background(), map[string]any{"message": "   "})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "general", res.Output["mood"])
	assert.Equal(t, 0.0, res.Output["confidence"])
}

func TestMoodFromOutputRoundTrip(t *testing.T) {
	classifier, _, _ := newToolDeps(t)
	tool := NewAnalyzeMoodTool(classifier)

	res, err := tool.Execute(context.Background(), map[string]any{
		"message": "I need motivation for my goals",
	})
	require.NoError(t, err)

	result := moodFromOutput(res.Output)
	assert.Equal(t, datatypes.CategoryMotivational, result.Label)
	assert.Equal(t, 0.8, result.Confidence)
	assert.Equal(t, 0.5, result.Intensity)
	assert.Equal(t, datatypes.SourceRule, result.Source)
}

func TestMoodFromOutputDegradesToGeneral(t *testing.T) {
	result := moodFromOutput(nil)
	assert.Equal(t, datatypes.CategoryGeneral, result.Label)
	assert.Zero(t, result.Confidence)
	assert.Zero(t, result.Intensity)
}

// =============================================================================
// navigate
// =============================================================================

func TestNavigateToolPages(t *testing.T) {
	tool := NewNavigateTool()

	tests := []struct {
		mood     string
		wantPage string
	}{
		{"motivational", "/quotes/motivational"},
		{"romantic", "/quotes/romantic"},
		{"funny", "/quotes/funny"},
		{"inspirational", "/quotes/inspirational"},
		{"general", "/quotes"},
		{"unheard-of", "/quotes"},
	}

	for _, tt := range tests {
		t.Run(tt.mood, func(t *testing.T) {
			res, err := tool.Execute(context.Background(), map[string]any{
				"mood":       tt.mood,
				"confidence": 0.8,
			})
			require.NoError(t, err)
			require.True(t, res.Success)
			assert.Equal(t, tt.wantPage, res.Output["recommended_page"])
		})
	}
}

func TestNavigateToolReasoning(t *testing.T) {
	tool := NewNavigateTool()

	res, err := tool.Execute(context.Background(), map[string]any{
		"mood":       "motivational",
		"confidence": 0.8,
	})
	require.NoError(t, err)

	assert.Equal(t, "Based on motivational mood with 0.80 confidence",
		res.Output["navigation_reasoning"])
	assert.Equal(t, "motivational", res.Output["category"])
	assert.Equal(t, 0.8, res.Output["confidence"])
}

// =============================================================================
// fetch_quotes
// =============================================================================

func TestFetchQuotesToolRanksAndLimits(t *testing.T) {
	_, quotes, _ := newToolDeps(t)

	// Rank order by score: the keyword-rich quote first, the terse
	// one last.
	strong := "Hope and courage fill the heart with strength for life and love"
	medium := "Keep moving forward every single day"
	weak := "Just do it now"
	seedQuotes(t, quotes, datatypes.CategoryMotivational, weak, medium, strong)

	tool := NewFetchQuotesTool(quotes)
	res, err := tool.Execute(context.Background(), map[string]any{
		"category": "motivational",
		"count":    2,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	fetched, ok := res.Output["quotes"].([]datatypes.Quote)
	require.True(t, ok)
	require.Len(t, fetched, 2)
	assert.Equal(t, strong, fetched[0].Text)
	assert.Equal(t, medium, fetched[1].Text)

	assert.Equal(t, "motivational", res.Output["category"])
	assert.Equal(t, 2, res.Output["count"])
	assert.Equal(t, "database_enhanced", res.Output["source"])
}

func TestFetchQuotesToolDefaultCount(t *testing.T) {
	_, quotes, _ := newToolDeps(t)
	seedQuotes(t, quotes, datatypes.CategoryFunny,
		"Laughter is the shortest distance between two people",
		"A day without laughter is a day wasted",
		"Comedy is simply a funny way of being serious",
		"Life is better when you are laughing",
	)

	tool := NewFetchQuotesTool(quotes)
	res, err := tool.Execute(context.Background(), map[string]any{
		"category": "funny",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	fetched, ok := res.Output["quotes"].([]datatypes.Quote)
	require.True(t, ok)
	assert.Len(t, fetched, defaultQuoteCount)
}

func TestFetchQuotesToolDegradesWhenStoreFails(t *testing.T) {
	quotes, err := corpus.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, quotes.Close())

	tool := NewFetchQuotesTool(quotes)
	res, err := tool.Execute(context.Background(), map[string]any{
		"category": "motivational",
		"count":    3,
	})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	fetched, ok := res.Output["quotes"].([]datatypes.Quote)
	require.True(t, ok)
	assert.Empty(t, fetched)
	assert.Equal(t, "motivational", res.Output["category"])
}

// =============================================================================
// manage_conversation
// =============================================================================

func TestManageConversationToolStats(t *testing.T) {
	_, _, sessions := newToolDeps(t)
	tool := NewManageConversationTool(sessions)
	ctx := context.Background()

	res, err := tool.Execute(ctx, map[string]any{"session_id": "not-started-yet"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, true, res.Output["is_new_conversation"])
	assert.Equal(t, 0, res.Output["message_count"])
	assert.Equal(t, "opening", res.Output["conversation_stage"])

	sess, _, err := sessions.GetOrCreate(ctx, "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := sessions.AppendTurn(ctx, sess.ID, datatypes.ConversationTurn{
			Role:    datatypes.RoleUser,
			Content: fmt.Sprintf("message %d", i+1),
		})
		require.NoError(t, err)
	}

	res, err = tool.Execute(ctx, map[string]any{"session_id": sess.ID})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, false, res.Output["is_new_conversation"])
	assert.Equal(t, 3, res.Output["message_count"])
	assert.Equal(t, "ongoing", res.Output["conversation_stage"])
	assert.InDelta(t, 0.3, res.Output["engagement_level"].(float64), 1e-9)
}

// =============================================================================
// manage_session
// =============================================================================

func TestManageSessionToolCreatesAndUpdates(t *testing.T) {
	_, _, sessions := newToolDeps(t)
	tool := NewManageSessionTool(sessions)
	ctx := context.Background()

	res, err := tool.Execute(ctx, map[string]any{"session_id": ""})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "session_created", res.Output["action"])

	minted, ok := res.Output["session_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, minted)

	res, err = tool.Execute(ctx, map[string]any{"session_id": minted})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "session_updated", res.Output["action"])
	assert.Equal(t, minted, res.Output["session_id"])
}

// =============================================================================
// emotional_support
// =============================================================================

func TestEmotionalSupportToolMessages(t *testing.T) {
	tool := NewEmotionalSupportTool()

	tests := []struct {
		mood        string
		wantMessage string
	}{
		{"motivational", supportMessages[datatypes.CategoryMotivational]},
		{"romantic", supportMessages[datatypes.CategoryRomantic]},
		{"funny", supportMessages[datatypes.CategoryFunny]},
		{"inspirational", supportMessages[datatypes.CategoryInspirational]},
		{"general", supportFallback},
	}

	for _, tt := range tests {
		t.Run(tt.mood, func(t *testing.T) {
			res, err := tool.Execute(context.Background(), map[string]any{
				"mood":      tt.mood,
				"intensity": 0.8,
			})
			require.NoError(t, err)
			require.True(t, res.Success)
			assert.Equal(t, tt.wantMessage, res.Output["support_message"])
			assert.Equal(t, true, res.Output["support_provided"])
			assert.Equal(t, 0.8, res.Output["intensity_level"])
			assert.Equal(t, tt.mood, res.Output["mood_addressed"])
		})
	}
}

func TestEmotionalSupportToolLowIntensity(t *testing.T) {
	tool := NewEmotionalSupportTool()

	res, err := tool.Execute(context.Background(), map[string]any{
		"mood":      "motivational",
		"intensity": 0.4,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, false, res.Output["support_provided"])
	assert.NotEmpty(t, res.Output["support_message"])
}
