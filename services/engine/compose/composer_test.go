// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/index"
	"github.com/auraquotes/aura/services/engine/tools"
	"github.com/auraquotes/aura/services/llm"
)

// =============================================================================
// MOCK IMPLEMENTATIONS
// =============================================================================

// mockGateway returns canned text and can hang until the call context
// expires, for the timeout fallback tests.
type mockGateway struct {
	GenerateCalls int
	LastPrompt    string
	LastParams    llm.GenerationParams
	Text          string
	Err           error
	Hang          bool
}

func (m *mockGateway) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.GenerateCalls++
	m.LastPrompt = prompt
	m.LastParams = params
	if m.Hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Text, nil
}

func (m *mockGateway) Classify(ctx context.Context, prompt string, labels []string) (string, error) {
	return "", llm.ErrNoLabel
}

// mockIndex returns canned exemplar hits.
type mockIndex struct {
	SearchCalls int
	LastQuery   string
	LastOpts    index.SearchOptions
	Hits        []index.Hit
	Err         error
}

func (m *mockIndex) EnsureSchema(ctx context.Context) error { return nil }

func (m *mockIndex) Insert(ctx context.Context, rec index.Record) (string, error) {
	return rec.ID, nil
}

func (m *mockIndex) Search(ctx context.Context, query string, opts index.SearchOptions) ([]index.Hit, error) {
	m.SearchCalls++
	m.LastQuery = query
	m.LastOpts = opts
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Hits, nil
}

func (m *mockIndex) Count(ctx context.Context, kind index.RecordKind) (int, error) {
	return len(m.Hits), nil
}

func (m *mockIndex) Remove(ctx context.Context, recordID string) error { return nil }

func (m *mockIndex) PurgeSession(ctx context.Context, sessionID string) (int, error) {
	return 0, nil
}

func exemplarHit(text string, similarity, quality float64) index.Hit {
	return index.Hit{
		Record: index.Record{
			Kind:     index.KindQuote,
			Text:     text,
			Category: datatypes.CategoryMotivational,
			Quality:  quality,
		},
		Similarity: similarity,
	}
}

func outcomeFor(label datatypes.Category, confidence, intensity float64) *tools.TurnResult {
	return &tools.TurnResult{
		Mood: datatypes.MoodResult{
			Label:      label,
			Confidence: confidence,
			Intensity:  intensity,
		},
	}
}

// =============================================================================
// Route decision
// =============================================================================

func TestComposeTemplateRoute(t *testing.T) {
	gateway := &mockGateway{Text: "should never be used"}
	c, err := NewComposer(gateway, nil, DefaultConfig())
	require.NoError(t, err)

	outcome := outcomeFor(datatypes.CategoryMotivational, 0.8, 0.5)
	outcome.Navigation = datatypes.CategoryMotivational
	outcome.Page = "/quotes/motivational"
	outcome.Quotes = []datatypes.Quote{
		{Text: "Keep moving forward", Author: "Walt Disney"},
	}

	reply := c.Compose(context.Background(), tools.TurnInput{
		Message: "I need motivation for my goals",
	}, outcome)

	assert.Equal(t, PathTemplate, reply.Path)
	assert.Zero(t, gateway.GenerateCalls)

	want, ok := c.Templates().Pick(datatypes.CategoryMotivational, BucketSteady, 0)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(reply.Text, want), "reply %q", reply.Text)
	assert.Contains(t, reply.Text, "❝ Keep moving forward ❞")
	assert.Contains(t, reply.Text, "— Walt Disney")
	assert.Contains(t, reply.Text, "Explore more motivational quotes: /quotes/motivational")
}

func TestComposeMergesSupportBeforeQuote(t *testing.T) {
	c, err := NewComposer(nil, nil, DefaultConfig())
	require.NoError(t, err)

	outcome := outcomeFor(datatypes.CategoryMotivational, 0.8, 0.8)
	outcome.SupportMessage = "You have the strength to achieve your goals!"
	outcome.Quotes = []datatypes.Quote{{Text: "Dream big", Author: "Anonymous"}}

	reply := c.Compose(context.Background(), tools.TurnInput{Message: "struggling"}, outcome)

	supportAt := strings.Index(reply.Text, outcome.SupportMessage)
	quoteAt := strings.Index(reply.Text, "❝ Dream big ❞")
	require.GreaterOrEqual(t, supportAt, 0)
	require.GreaterOrEqual(t, quoteAt, 0)
	assert.Less(t, supportAt, quoteAt)
}

func TestComposeGeneratesBelowThreshold(t *testing.T) {
	gateway := &mockGateway{Text: "Every day writes a fresh page."}
	c, err := NewComposer(gateway, nil, DefaultConfig())
	require.NoError(t, err)

	reply := c.Compose(context.Background(), tools.TurnInput{
		Message: "mmm",
	}, outcomeFor(datatypes.CategoryGeneral, 0.2, 0.3))

	assert.Equal(t, PathGenerated, reply.Path)
	assert.Equal(t, "Every day writes a fresh page.", reply.Text)
	assert.Equal(t, 1, gateway.GenerateCalls)

	assert.Contains(t, gateway.LastPrompt, "Detected mood: general")
	assert.Contains(t, gateway.LastPrompt, `Message: "mmm"`)
	require.NotNil(t, gateway.LastParams.Temperature)
	assert.InDelta(t, 0.7, float64(*gateway.LastParams.Temperature), 1e-6)
}

func TestComposeGeneratesWhenBucketMissing(t *testing.T) {
	gateway := &mockGateway{Text: "That sounds like a lot to carry."}
	c, err := NewComposer(gateway, nil, DefaultConfig())
	require.NoError(t, err)

	// Confident general mood at high intensity has no template.
	reply := c.Compose(context.Background(), tools.TurnInput{
		Message: "I feel so lost and alone",
	}, outcomeFor(datatypes.CategoryGeneral, 0.8, 0.9))

	assert.Equal(t, PathGenerated, reply.Path)
	assert.Equal(t, 1, gateway.GenerateCalls)
}

// =============================================================================
// Fallback
// =============================================================================

func TestComposeFallsBackOnGatewayError(t *testing.T) {
	gateway := &mockGateway{Err: errors.New("connection refused")}
	c, err := NewComposer(gateway, nil, DefaultConfig())
	require.NoError(t, err)

	reply := c.Compose(context.Background(), tools.TurnInput{
		Message: "mmm",
	}, outcomeFor(datatypes.CategoryGeneral, 0.2, 0.3))

	assert.Equal(t, PathFallback, reply.Path)
	assert.Equal(t, 1, gateway.GenerateCalls)

	want, ok := c.Templates().Pick(datatypes.CategoryGeneral, BucketCalm, 0)
	require.True(t, ok)
	assert.Equal(t, want, reply.Text)
}

func TestComposeFallsBackOnEmptyGeneration(t *testing.T) {
	gateway := &mockGateway{Text: "  \n "}
	c, err := NewComposer(gateway, nil, DefaultConfig())
	require.NoError(t, err)

	reply := c.Compose(context.Background(), tools.TurnInput{
		Message: "mmm",
	}, outcomeFor(datatypes.CategoryGeneral, 0.2, 0.3))

	assert.Equal(t, PathFallback, reply.Path)
	assert.NotEmpty(t, reply.Text)
}

func TestComposeTimeoutFallsBack(t *testing.T) {
	gateway := &mockGateway{Hang: true}
	config := DefaultConfig()
	config.GenerateTimeout = 50 * time.Millisecond
	c, err := NewComposer(gateway, nil, config)
	require.NoError(t, err)

	start := time.Now()
	reply := c.Compose(context.Background(), tools.TurnInput{
		Message: "mmm",
	}, outcomeFor(datatypes.CategoryGeneral, 0.2, 0.3))
	elapsed := time.Since(start)

	assert.Equal(t, PathFallback, reply.Path)
	assert.NotEmpty(t, reply.Text)
	assert.Less(t, elapsed, time.Second, "compose blocked past the generate timeout")
	assert.Equal(t, 1, gateway.GenerateCalls)
}

func TestComposeWithoutGatewayFallsBack(t *testing.T) {
	c, err := NewComposer(nil, nil, DefaultConfig())
	require.NoError(t, err)

	reply := c.Compose(context.Background(), tools.TurnInput{
		Message: "mmm",
	}, outcomeFor(datatypes.CategoryGeneral, 0.2, 0.3))

	assert.Equal(t, PathFallback, reply.Path)
	assert.NotEmpty(t, reply.Text)
}

func TestComposeFallbackUsesGenericWhenNoTemplateFits(t *testing.T) {
	c, err := NewComposer(nil, nil, DefaultConfig())
	require.NoError(t, err)

	// General at high intensity has no acknowledgment and no gateway.
	reply := c.Compose(context.Background(), tools.TurnInput{
		Message: "I feel so empty",
	}, outcomeFor(datatypes.CategoryGeneral, 0.2, 0.9))

	assert.Equal(t, PathFallback, reply.Path)
	assert.Equal(t, c.Templates().Generic(), reply.Text)
}

// =============================================================================
// Exemplars
// =============================================================================

func TestExemplarsRankAndFilter(t *testing.T) {
	idx := &mockIndex{Hits: []index.Hit{
		exemplarHit("too weak", 0.99, 0.4),
		exemplarHit("close match", 0.9, 0.5),
		exemplarHit("high quality", 0.6, 0.9),
		exemplarHit("best blend", 0.95, 0.55),
		exemplarHit("solid", 0.5, 1.0),
	}}
	c, err := NewComposer(nil, idx, DefaultConfig())
	require.NoError(t, err)

	hits := c.exemplars(context.Background(), "I need a push", datatypes.CategoryMotivational)

	require.Len(t, hits, 3)
	assert.Equal(t, "best blend", hits[0].Record.Text)
	assert.Equal(t, "close match", hits[1].Record.Text)
	assert.Equal(t, "high quality", hits[2].Record.Text)

	assert.Equal(t, 6, idx.LastOpts.TopK)
	assert.Equal(t, datatypes.CategoryMotivational, idx.LastOpts.Category)
	assert.ElementsMatch(t,
		[]index.RecordKind{index.KindQuote, index.KindConversationTurn},
		idx.LastOpts.Kinds)
}

func TestExemplarsDegradeQuietly(t *testing.T) {
	c, err := NewComposer(nil, nil, DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, c.exemplars(context.Background(), "hi", datatypes.CategoryGeneral))

	idx := &mockIndex{Err: errors.New("connection reset")}
	c, err = NewComposer(nil, idx, DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, c.exemplars(context.Background(), "hi", datatypes.CategoryGeneral))
}

// =============================================================================
// Prompt assembly
// =============================================================================

func TestBuildReplyPromptWindowsHistory(t *testing.T) {
	var history []datatypes.ConversationTurn
	for i := 1; i <= 7; i++ {
		history = append(history, datatypes.ConversationTurn{
			Role:    datatypes.RoleUser,
			Content: fmt.Sprintf("turn-%d", i),
		})
	}

	prompt := buildReplyPrompt(tools.TurnInput{
		Message: "what now?",
		History: history,
	}, outcomeFor(datatypes.CategoryGeneral, 0.2, 0.3), nil, 5)

	assert.NotContains(t, prompt, "turn-1\n")
	assert.NotContains(t, prompt, "turn-2\n")
	for i := 3; i <= 7; i++ {
		assert.Contains(t, prompt, fmt.Sprintf("turn-%d", i))
	}
	assert.Contains(t, prompt, "Recent conversation:")
	assert.Contains(t, prompt, `Message: "what now?"`)
}

func TestBuildReplyPromptIncludesExemplars(t *testing.T) {
	hits := []index.Hit{
		exemplarHit("You have the strength already", 0.9, 0.9),
		exemplarHit("One step at a time", 0.8, 0.8),
	}

	prompt := buildReplyPrompt(tools.TurnInput{Message: "push me"},
		outcomeFor(datatypes.CategoryMotivational, 0.25, 0.5), hits, 5)

	assert.Contains(t, prompt, "- You have the strength already")
	assert.Contains(t, prompt, "- One step at a time")
	assert.Contains(t, prompt, "Detected mood: motivational (confidence 0.25, intensity 0.50)")
}

// =============================================================================
// Template overrides
// =============================================================================

func TestSwapTemplates(t *testing.T) {
	c, err := NewComposer(nil, nil, DefaultConfig())
	require.NoError(t, err)

	custom, err := loadTemplatesBytes([]byte(`
generic: "Custom generic line"
acknowledgments:
  motivational:
    steady: ["Custom motivational line"]
`))
	require.NoError(t, err)

	c.SwapTemplates(custom)
	reply := c.Compose(context.Background(), tools.TurnInput{Message: "push me"},
		outcomeFor(datatypes.CategoryMotivational, 0.8, 0.5))
	assert.Equal(t, "Custom motivational line", reply.Text)

	// A nil swap keeps the active set.
	c.SwapTemplates(nil)
	assert.Equal(t, custom, c.Templates())
}
