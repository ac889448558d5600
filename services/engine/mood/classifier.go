// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mood

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/index"
	"github.com/auraquotes/aura/services/llm"
)

var tracer = otel.Tracer("aura.engine.mood")

// Config holds the classifier's tunable thresholds.
//
// # Description
//
// The thresholds have no derivation beyond observed behavior on the
// corpus, so they live in configuration with documented defaults
// instead of in the code as magic numbers.
type Config struct {
	// RuleMatchThreshold is the minimum weighted pattern score for the
	// rule pass to decide.
	RuleMatchThreshold int

	// RuleMargin is the lead the best category needs over the
	// runner-up. Anything closer resolves to "general".
	RuleMargin int

	// RuleConfidence is the fixed confidence of rule decisions.
	RuleConfidence float64

	// RetrievalTopK is how many similar training prompts to fetch.
	RetrievalTopK int

	// SimilarityFloor excludes weak matches from the retrieval pass.
	SimilarityFloor float64

	// ConfidenceFloor is the minimum confidence that stops the
	// pipeline before the model fallback.
	ConfidenceFloor float64

	// ModelConfidence is assigned when the model returns a clean label.
	ModelConfidence float64

	// ModelFallbackConfidence is assigned when the model path degrades
	// to "general".
	ModelFallbackConfidence float64

	// IncludeLearnedTurns widens the retrieval pass to past
	// conversation turns in addition to curated training prompts.
	IncludeLearnedTurns bool
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		RuleMatchThreshold:      2,
		RuleMargin:              1,
		RuleConfidence:          0.8,
		RetrievalTopK:           5,
		SimilarityFloor:         0.5,
		ConfidenceFloor:         0.5,
		ModelConfidence:         0.45,
		ModelFallbackConfidence: 0.3,
	}
}

// validateConfig corrects out-of-range values, warning about each one.
func validateConfig(config Config) Config {
	defaults := DefaultConfig()

	if config.RuleMatchThreshold < 1 {
		slog.Warn("Invalid RuleMatchThreshold config, using default",
			"provided", config.RuleMatchThreshold, "default", defaults.RuleMatchThreshold)
		config.RuleMatchThreshold = defaults.RuleMatchThreshold
	}
	if config.RuleMargin < 1 {
		slog.Warn("Invalid RuleMargin config, using default",
			"provided", config.RuleMargin, "default", defaults.RuleMargin)
		config.RuleMargin = defaults.RuleMargin
	}
	if config.RuleConfidence <= 0 || config.RuleConfidence > 1 {
		slog.Warn("Invalid RuleConfidence config, using default",
			"provided", config.RuleConfidence, "default", defaults.RuleConfidence)
		config.RuleConfidence = defaults.RuleConfidence
	}
	if config.RetrievalTopK < 1 {
		slog.Warn("Invalid RetrievalTopK config, using default",
			"provided", config.RetrievalTopK, "default", defaults.RetrievalTopK)
		config.RetrievalTopK = defaults.RetrievalTopK
	}
	if config.SimilarityFloor < 0 || config.SimilarityFloor > 1 {
		slog.Warn("Invalid SimilarityFloor config, using default",
			"provided", config.SimilarityFloor, "default", defaults.SimilarityFloor)
		config.SimilarityFloor = defaults.SimilarityFloor
	}
	if config.ConfidenceFloor < 0 || config.ConfidenceFloor > 1 {
		slog.Warn("Invalid ConfidenceFloor config, using default",
			"provided", config.ConfidenceFloor, "default", defaults.ConfidenceFloor)
		config.ConfidenceFloor = defaults.ConfidenceFloor
	}
	if config.ModelConfidence <= 0 || config.ModelConfidence > 1 {
		config.ModelConfidence = defaults.ModelConfidence
	}
	if config.ModelFallbackConfidence <= 0 || config.ModelFallbackConfidence > 1 {
		config.ModelFallbackConfidence = defaults.ModelFallbackConfidence
	}

	return config
}

// Classifier produces a MoodResult for each user utterance.
//
// # Description
//
// Three stages run in order and the first success wins:
//
//  1. Rule pass: weighted pattern matching over the lexicon. Free,
//     deterministic, and never touches the index or the model.
//  2. Retrieval pass: similarity search over labeled training prompts;
//     a strict majority label wins with confidence = mean similarity
//     of the agreeing hits.
//  3. Generative fallback: one constrained classification call to the
//     language model, parsed defensively.
//
// Whitespace-only input short-circuits to "general" with confidence 0.
// Analyze never returns an error: every failure degrades to a weaker
// stage or to "general" with low confidence.
//
// # Thread Safety
//
// Classifier is safe for concurrent use. The lexicon is swapped as a
// whole under a lock, never mutated in place.
//
// # Example
//
//	classifier, _ := mood.NewClassifier(idx, gateway, mood.DefaultConfig())
//	result := classifier.Analyze(ctx, "I need motivation for my goals", nil)
//	// result.Label == datatypes.CategoryMotivational
type Classifier struct {
	idx     index.Index
	gateway llm.LLMClient
	config  Config

	mu  sync.RWMutex
	lex *Lexicon
}

// NewClassifier builds a classifier with the embedded lexicon.
//
// # Inputs
//
//   - idx: Vector index for the retrieval pass. May be nil; the pass
//     is skipped and classification degrades to rules plus model.
//   - gateway: Language model for the generative fallback. May be nil;
//     the fallback degrades to "general" with low confidence.
//   - config: Thresholds (use DefaultConfig() for defaults).
//
// # Outputs
//
//   - *Classifier: Ready to classify.
//   - error: Non-nil only if the embedded lexicon fails to load,
//     which indicates a broken build.
func NewClassifier(idx index.Index, gateway llm.LLMClient, config Config) (*Classifier, error) {
	lex, err := LoadLexicon()
	if err != nil {
		return nil, fmt.Errorf("loading embedded lexicon: %w", err)
	}

	return &Classifier{
		idx:     idx,
		gateway: gateway,
		config:  validateConfig(config),
		lex:     lex,
	}, nil
}

// Lexicon returns the active lexicon.
func (c *Classifier) Lexicon() *Lexicon {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lex
}

// SwapLexicon atomically replaces the active lexicon. Used by the
// override watcher after a successful reload.
func (c *Classifier) SwapLexicon(lex *Lexicon) {
	if lex == nil {
		return
	}
	c.mu.Lock()
	c.lex = lex
	c.mu.Unlock()
	slog.Info("Mood lexicon swapped", "categories", len(lex.Categories))
}

// Analyze classifies one utterance given recent session history.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - utterance: The current user message.
//   - history: Recent turns, most recent last. Only the generative
//     fallback reads it, as conversational context for the model.
//
// # Outputs
//
//   - datatypes.MoodResult: Always a valid result with confidence and
//     intensity clamped to [0, 1]. Never an error.
func (c *Classifier) Analyze(ctx context.Context, utterance string, history []datatypes.ConversationTurn) datatypes.MoodResult {
	ctx, span := tracer.Start(ctx, "Analyze")
	defer span.End()

	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return datatypes.MoodResult{
			Label:     datatypes.CategoryGeneral,
			Source:    datatypes.SourceRule,
			Reasoning: "empty utterance",
		}
	}

	lowered := strings.ToLower(trimmed)
	lex := c.Lexicon()

	if result, ok := c.rulePass(lex, lowered); ok {
		slog.Debug("Mood resolved by rule pass",
			"label", result.Label,
			"confidence", result.Confidence)
		return result.Clamp()
	}

	retrieved, found := c.retrievalPass(ctx, lex, trimmed, lowered)
	if found && retrieved.Confidence >= c.config.ConfidenceFloor {
		slog.Debug("Mood resolved by retrieval pass",
			"label", retrieved.Label,
			"confidence", retrieved.Confidence)
		return retrieved.Clamp()
	}

	var prior *datatypes.MoodResult
	if found {
		prior = &retrieved
	}
	return c.generativeFallback(ctx, lex, trimmed, lowered, history, prior).Clamp()
}

// rulePass scores the utterance against the lexicon. ok is false when
// no category clears the match threshold; close calls between two
// categories resolve to "general" rather than guessing.
func (c *Classifier) rulePass(lex *Lexicon, lowered string) (datatypes.MoodResult, bool) {
	scores := lex.Score(lowered)
	if len(scores) == 0 || scores[0].Score < c.config.RuleMatchThreshold {
		return datatypes.MoodResult{}, false
	}

	best := scores[0]
	if len(scores) > 1 {
		second := scores[1]
		if best.Score-second.Score < c.config.RuleMargin {
			return datatypes.MoodResult{
				Label:      datatypes.CategoryGeneral,
				Confidence: c.config.RuleConfidence,
				Intensity:  lex.Intensity(datatypes.CategoryGeneral, lowered),
				Source:     datatypes.SourceRule,
				Reasoning: fmt.Sprintf("ambiguous between %s and %s",
					best.Category, second.Category),
			}, true
		}
	}

	return datatypes.MoodResult{
		Label:      best.Category,
		Confidence: c.config.RuleConfidence,
		Intensity:  lex.Intensity(best.Category, lowered),
		Source:     datatypes.SourceRule,
		Reasoning: fmt.Sprintf("matched %s patterns: %s",
			best.Category, strings.Join(best.PatternIDs, ", ")),
	}, true
}

// retrievalPass searches labeled training prompts for the utterance
// and decides when a strict majority of the hits agree on a label.
func (c *Classifier) retrievalPass(ctx context.Context, lex *Lexicon, utterance, lowered string) (datatypes.MoodResult, bool) {
	if c.idx == nil {
		return datatypes.MoodResult{}, false
	}

	kinds := []index.RecordKind{index.KindTrainingPrompt}
	if c.config.IncludeLearnedTurns {
		kinds = append(kinds, index.KindConversationTurn)
	}

	hits, err := c.idx.Search(ctx, utterance, index.SearchOptions{
		TopK:          c.config.RetrievalTopK,
		MinSimilarity: c.config.SimilarityFloor,
		Kinds:         kinds,
	})
	if err != nil {
		var unavailable *index.UnavailableError
		if errors.As(err, &unavailable) {
			slog.Warn("Vector index unavailable, skipping retrieval pass", "error", err)
		} else {
			slog.Warn("Retrieval pass failed, skipping", "error", err)
		}
		return datatypes.MoodResult{}, false
	}
	if len(hits) == 0 {
		return datatypes.MoodResult{}, false
	}

	label, agreeing := majorityLabel(hits)
	if agreeing == 0 {
		return datatypes.MoodResult{}, false
	}

	var sum float64
	for _, hit := range hits {
		if hit.Record.Category == label {
			sum += hit.Similarity
		}
	}

	return datatypes.MoodResult{
		Label:      label,
		Confidence: sum / float64(agreeing),
		Intensity:  lex.Intensity(label, lowered),
		Source:     datatypes.SourceVector,
		Reasoning: fmt.Sprintf("%d of %d similar prompts labeled %s",
			agreeing, len(hits), label),
	}, true
}

// majorityLabel returns the label held by a strict majority of hits,
// or agreeing=0 when no label has one.
func majorityLabel(hits []index.Hit) (datatypes.Category, int) {
	counts := make(map[datatypes.Category]int, len(hits))
	for _, hit := range hits {
		counts[hit.Record.Category]++
	}

	var best datatypes.Category
	bestCount := 0
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < best) {
			best = label
			bestCount = count
		}
	}

	if bestCount*2 <= len(hits) {
		return datatypes.CategoryGeneral, 0
	}
	return best, bestCount
}

// generativeFallback asks the model for a label, constrained to the
// category set. Failures return the prior low-confidence result when
// one exists, otherwise "general".
func (c *Classifier) generativeFallback(ctx context.Context, lex *Lexicon, utterance, lowered string, history []datatypes.ConversationTurn, prior *datatypes.MoodResult) datatypes.MoodResult {
	degraded := datatypes.MoodResult{
		Label:      datatypes.CategoryGeneral,
		Confidence: c.config.ModelFallbackConfidence,
		Intensity:  lex.Intensity(datatypes.CategoryGeneral, lowered),
		Source:     datatypes.SourceModel,
		Reasoning:  "model unavailable",
	}

	if c.gateway == nil {
		if prior != nil {
			return *prior
		}
		return degraded
	}

	labels := make([]string, 0, len(datatypes.AllCategories))
	for _, cat := range datatypes.AllCategories {
		labels = append(labels, string(cat))
	}

	label, err := c.gateway.Classify(ctx, buildClassifyPrompt(utterance, history), labels)
	if err != nil {
		slog.Warn("Model classification failed", "error", err)
		if prior != nil {
			return *prior
		}
		return degraded
	}

	category, known := datatypes.ParseCategory(label)
	if !known {
		degraded.Reasoning = "unrecognized model label"
		return degraded
	}

	return datatypes.MoodResult{
		Label:      category,
		Confidence: c.config.ModelConfidence,
		Intensity:  lex.Intensity(category, lowered),
		Source:     datatypes.SourceModel,
		Reasoning:  "model classification",
	}
}

// buildClassifyPrompt frames the utterance for a single-label answer.
func buildClassifyPrompt(utterance string, history []datatypes.ConversationTurn) string {
	var b strings.Builder

	b.WriteString("You classify a user's message into exactly one mood category ")
	b.WriteString("for a quote recommendation service.\n\n")
	b.WriteString("Categories:\n")
	b.WriteString("- motivational: drive, goals, productivity, overcoming obstacles\n")
	b.WriteString("- romantic: love, relationships, affection\n")
	b.WriteString("- funny: humor, laughter, cheering up\n")
	b.WriteString("- inspirational: meaning, purpose, wisdom, hope\n")
	b.WriteString("- general: greetings, small talk, anything else\n")

	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
	}

	fmt.Fprintf(&b, "\nMessage: %q\n\n", utterance)
	b.WriteString("Answer with only the category name.")

	return b.String()
}
