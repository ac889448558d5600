// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// GenerationParams carries optional sampling settings for a generation call.
// Nil fields fall back to backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ErrNoLabel is returned by Classify when the model's answer names none of
// the allowed labels. Callers are expected to degrade, not fail.
var ErrNoLabel = errors.New("model output matched no allowed label")

// LLMClient is the gateway contract to a hosted instruction-following model.
// Both calls are network calls and may fail with connectivity or timeout
// errors; callers own timeouts via ctx.
type LLMClient interface {
	// Generate returns the model's completion for a fully composed prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Classify asks the model to pick one of the allowed labels. The answer
	// is matched defensively against labels; ErrNoLabel when nothing matches.
	Classify(ctx context.Context, prompt string, labels []string) (string, error)
}

// NewClient builds the gateway for the configured backend.
// Supported backends: "local" (Ollama, the default) and "openai"
// (any OpenAI-compatible server).
func NewClient(backend string) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "local", "ollama":
		return NewOllamaClient()
	case "openai":
		return NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend %q (want local or openai)", backend)
	}
}

// matchLabel scans model output for the first allowed label, earliest match
// in the text winning. Matching is case-insensitive so "Motivational." and
// "the category is funny" both resolve.
func matchLabel(output string, labels []string) (string, error) {
	lower := strings.ToLower(output)
	best := ""
	bestPos := -1
	for _, label := range labels {
		pos := strings.Index(lower, strings.ToLower(label))
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos {
			best = label
			bestPos = pos
		}
	}
	if bestPos < 0 {
		return "", ErrNoLabel
	}
	return best, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
