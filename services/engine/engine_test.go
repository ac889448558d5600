// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/session"
	"github.com/auraquotes/aura/services/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockGateway fails every call. Engine tests run the offline paths:
// rule classification, templates, and fallbacks.
type mockGateway struct {
	GenerateCalls int
	ClassifyCalls int
}

func (m *mockGateway) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	m.GenerateCalls++
	return "", fmt.Errorf("gateway offline")
}

func (m *mockGateway) Classify(_ context.Context, _ string, _ []string) (string, error) {
	m.ClassifyCalls++
	return "", fmt.Errorf("gateway offline")
}

// newTestEngine assembles an engine over in-memory stores, no vector
// index, and an offline gateway.
func newTestEngine(t *testing.T) (*Engine, *mockGateway) {
	t.Helper()

	gateway := &mockGateway{}
	config := DefaultConfig()
	config.DBPath = ":memory:"

	eng, err := assemble(config, gateway, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return eng, gateway
}

// seedQuotes inserts quotes through the public admin path.
func seedQuotes(t *testing.T, eng *Engine, category datatypes.Category, texts ...string) {
	t.Helper()
	ctx := context.Background()
	for i, text := range texts {
		_, err := eng.AddQuote(ctx, datatypes.Quote{
			Text:     text,
			Author:   fmt.Sprintf("Author %d", i+1),
			Category: category,
		})
		require.NoError(t, err)
	}
}

func TestHandleTurnEndToEnd(t *testing.T) {
	eng, gateway := newTestEngine(t)
	seedQuotes(t, eng, datatypes.CategoryMotivational,
		"Keep moving forward every single day",
		"Hope and courage fill the heart with strength",
	)
	ctx := context.Background()

	resp, err := eng.HandleTurn(ctx, datatypes.TurnRequest{
		Message: "I need motivation for my goals",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ResponseText)
	assert.NotEmpty(t, resp.SessionID, "a turn without a session id mints one")
	assert.Equal(t, datatypes.CategoryMotivational, resp.Mood.Label)
	assert.InDelta(t, 0.8, resp.Mood.Confidence, 1e-9)
	assert.Equal(t, datatypes.SourceRule, resp.Mood.Source)
	assert.Equal(t, datatypes.CategoryMotivational, resp.NavigationSuggestion)
	assert.Equal(t, "template", resp.ComposePath)
	assert.Len(t, resp.ToolTrace, 5)

	// A confident rule mood never touches the model.
	assert.Zero(t, gateway.GenerateCalls)
	assert.Zero(t, gateway.ClassifyCalls)

	// The reply carries a quote block and the explore link.
	assert.Contains(t, resp.ResponseText, "❝")
	assert.Contains(t, resp.ResponseText, "/quotes/motivational")
}

func TestHandleTurnPersistsBothSides(t *testing.T) {
	eng, _ := newTestEngine(t)
	seedQuotes(t, eng, datatypes.CategoryMotivational, "Keep going")
	ctx := context.Background()

	resp, err := eng.HandleTurn(ctx, datatypes.TurnRequest{
		Message: "I need motivation for my goals",
	})
	require.NoError(t, err)

	history, err := eng.GetHistory(ctx, resp.SessionID)
	require.NoError(t, err)
	require.Len(t, history.Turns, 2)

	userTurn, assistantTurn := history.Turns[0], history.Turns[1]
	assert.Equal(t, datatypes.RoleUser, userTurn.Role)
	assert.Equal(t, "I need motivation for my goals", userTurn.Content)
	assert.Nil(t, userTurn.Trace)

	assert.Equal(t, datatypes.RoleAssistant, assistantTurn.Role)
	assert.Equal(t, resp.ResponseText, assistantTurn.Content)
	require.NotNil(t, assistantTurn.Trace)
	assert.Equal(t, "template", assistantTurn.Trace.ComposePath)
	assert.Len(t, assistantTurn.Trace.Calls, 5)
	assert.Equal(t, datatypes.CategoryMotivational, assistantTurn.Trace.Mood.Label)

	assert.Equal(t, 2, history.Stats.MessageCount)
	assert.False(t, history.Stats.IsNewConversation)
}

func TestHandleTurnSecondTurnSeesHistory(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.HandleTurn(ctx, datatypes.TurnRequest{Message: "hello there"})
	require.NoError(t, err)

	second, err := eng.HandleTurn(ctx, datatypes.TurnRequest{
		SessionID: first.SessionID,
		Message:   "hello again",
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	// The first turn wrote two log entries, so the second dispatch
	// sees them as history.
	require.NotEmpty(t, second.ToolTrace)
	analyze := second.ToolTrace[0]
	assert.Equal(t, "analyze_mood", analyze.Tool)
	assert.EqualValues(t, 2, analyze.Input["history_turns"])
}

func TestHandleTurnAlwaysAnswers(t *testing.T) {
	// No quotes, no index, gateway down, empty utterance: the worst
	// turn the engine can receive still gets a reply.
	eng, gateway := newTestEngine(t)
	ctx := context.Background()

	resp, err := eng.HandleTurn(ctx, datatypes.TurnRequest{Message: "   "})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ResponseText)
	assert.Equal(t, datatypes.CategoryGeneral, resp.Mood.Label)
	assert.Zero(t, resp.Mood.Confidence)
	assert.Equal(t, "fallback", resp.ComposePath,
		"zero confidence routes to generation, which degrades to a template")
	assert.Equal(t, 1, gateway.GenerateCalls)
}

func TestLexiconOverrideRewiresClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	override := `categories:
  - name: funny
    base_intensity: 0.2
    patterns:
      - id: zorp
        regex: '\bzorp\b'
        weight: 3
`
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	gateway := &mockGateway{}
	config := DefaultConfig()
	config.DBPath = ":memory:"
	config.LexiconPath = path

	eng, err := assemble(config, gateway, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	ctx := context.Background()

	resp, err := eng.HandleTurn(ctx, datatypes.TurnRequest{Message: "zorp"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.CategoryFunny, resp.Mood.Label)
	assert.Equal(t, datatypes.SourceRule, resp.Mood.Source)

	// The override replaces the embedded lexicon outright, so stock
	// wording no longer rule-matches.
	resp, err = eng.HandleTurn(ctx, datatypes.TurnRequest{
		Message: "I need motivation for my goals",
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.CategoryGeneral, resp.Mood.Label)
}

func TestHandleTurnRejectsOversizedSessionID(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.HandleTurn(context.Background(), datatypes.TurnRequest{
		SessionID: strings.Repeat("x", datatypes.MaxSessionIDLength+1),
		Message:   "hello",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestGetHistoryUnknownSession(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.GetHistory(context.Background(), "never-seen")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestQuotesByCategoryLimits(t *testing.T) {
	eng, _ := newTestEngine(t)
	seedQuotes(t, eng, datatypes.CategoryFunny,
		"Joke one", "Joke two", "Joke three", "Joke four")

	quotes, err := eng.QuotesByCategory(context.Background(), datatypes.CategoryFunny, 2)
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	for _, q := range quotes {
		assert.Equal(t, datatypes.CategoryFunny, q.Category)
	}
}

func TestAddQuoteValidates(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.AddQuote(context.Background(), datatypes.Quote{
		Text:     "No author here",
		Category: datatypes.CategoryFunny,
	})
	require.Error(t, err)
}

func TestListAndDeleteSessions(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	resp, err := eng.HandleTurn(ctx, datatypes.TurnRequest{Message: "hello there"})
	require.NoError(t, err)

	sessions, err := eng.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, resp.SessionID, sessions[0].ID)

	require.NoError(t, eng.DeleteSession(ctx, resp.SessionID))

	sessions, err = eng.ListSessions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = eng.GetHistory(ctx, resp.SessionID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestRouterServesChat(t *testing.T) {
	eng, _ := newTestEngine(t)
	seedQuotes(t, eng, datatypes.CategoryMotivational, "Keep going")

	w := httptest.NewRecorder()
	req, err := http.NewRequest("POST", "/v1/chat",
		strings.NewReader(`{"message": "I need motivation for my goals"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	eng.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "session_id")
	assert.Contains(t, w.Body.String(), "motivational")
}

func TestConfigDefaultsApplied(t *testing.T) {
	got := applyConfigDefaults(Config{})

	assert.Equal(t, 7171, got.Port)
	assert.Equal(t, "data", got.DBPath)
	assert.Equal(t, "local", got.LLMBackend)
	assert.Equal(t, 24*time.Hour, got.SessionTTL)
	assert.Equal(t, time.Hour, got.CleanupInterval)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("AURA_PORT", "9999")
	t.Setenv("AURA_ROUTING_THRESHOLD", "0.5")
	t.Setenv("AURA_GENERATE_TIMEOUT", "2s")
	t.Setenv("AURA_SESSION_TTL", "1h")

	config := LoadConfig()

	assert.Equal(t, 9999, config.Port)
	assert.InDelta(t, 0.5, config.Tools.RoutingThreshold, 1e-9)
	assert.InDelta(t, 0.5, config.Compose.RoutingThreshold, 1e-9,
		"dispatcher and composer share one routing threshold")
	assert.Equal(t, 2*time.Second, config.Compose.GenerateTimeout)
	assert.Equal(t, time.Hour, config.SessionTTL)
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("AURA_PORT", "not-a-number")
	t.Setenv("AURA_SESSION_TTL", "soon")

	config := LoadConfig()

	assert.Equal(t, 7171, config.Port)
	assert.Equal(t, 24*time.Hour, config.SessionTTL)
}

func TestTTLConfigDerivation(t *testing.T) {
	config := DefaultConfig()
	config.SessionTTL = 2 * time.Hour
	config.CleanupInterval = 10 * time.Minute

	ttlConfig := config.TTLConfig()
	assert.Equal(t, 2*time.Hour, ttlConfig.SessionTTL)
	assert.Equal(t, 10*time.Minute, ttlConfig.Interval)
	assert.Equal(t, 100, ttlConfig.BatchSize)
}
