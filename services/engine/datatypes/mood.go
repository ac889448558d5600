// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// MoodSource identifies which classifier stage produced a MoodResult.
type MoodSource string

const (
	// SourceRule means the lexical rule pass matched decisively.
	SourceRule MoodSource = "rule-match"

	// SourceVector means the retrieval pass over training prompts agreed.
	SourceVector MoodSource = "vector-similarity"

	// SourceModel means the generative fallback classified the utterance.
	SourceModel MoodSource = "language-model"
)

// MoodResult is the transient outcome of mood classification for one turn.
//
// # Description
//
// Carries the chosen category with a confidence score, an intensity estimate,
// and the stage that produced it. MoodResults are never persisted on their
// own; they are embedded into the conversation turn's tool-call trace.
//
// # Fields
//
//   - Label: The classified category. Never empty; ambiguous input yields
//     CategoryGeneral.
//   - Confidence: Classifier confidence in [0, 1].
//   - Intensity: Estimated emotional intensity in [0, 1]. Drives the
//     emotional-support gate.
//   - Source: Which stage decided (rule-match, vector-similarity,
//     language-model).
//   - Reasoning: Short human-readable note on why, for the trace.
type MoodResult struct {
	Label      Category   `json:"label"`
	Confidence float64    `json:"confidence"`
	Intensity  float64    `json:"intensity"`
	Source     MoodSource `json:"source"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// Clamp bounds confidence and intensity to [0, 1] in place and returns the
// receiver for chaining. Every classifier stage clamps before returning.
func (m MoodResult) Clamp() MoodResult {
	m.Confidence = clamp01(m.Confidence)
	m.Intensity = clamp01(m.Intensity)
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
