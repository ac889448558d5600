// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mood

import (
	"sort"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

// CategoryScore is the rule-pass score for one category.
type CategoryScore struct {
	Category   datatypes.Category
	Score      int
	PatternIDs []string
}

// Score matches every category's patterns against the lowercased
// utterance and returns the categories that matched anything, ordered
// by score descending with ties broken by name for determinism.
func (l *Lexicon) Score(lowered string) []CategoryScore {
	scores := make([]CategoryScore, 0, len(l.Categories))

	for i := range l.Categories {
		cat := &l.Categories[i]
		total := 0
		var matched []string

		for j := range cat.Patterns {
			p := &cat.Patterns[j]
			if p.compiled != nil && p.compiled.MatchString(lowered) {
				total += p.Weight
				matched = append(matched, p.ID)
			}
		}

		if total > 0 {
			scores = append(scores, CategoryScore{
				Category:   cat.Name,
				Score:      total,
				PatternIDs: matched,
			})
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Category < scores[j].Category
	})

	return scores
}

// Intensity estimates emotional intensity for an utterance classified
// into category: the category's base plus a fixed boost per matching
// intensifier, clamped to [0, 1].
func (l *Lexicon) Intensity(category datatypes.Category, lowered string) float64 {
	intensity := l.baseIntensity(category)

	for i := range l.Intensifiers {
		in := &l.Intensifiers[i]
		if in.compiled != nil && in.compiled.MatchString(lowered) {
			intensity += intensifierBoost
		}
	}

	if intensity > 1 {
		intensity = 1
	}
	if intensity < 0 {
		intensity = 0
	}
	return intensity
}

// baseIntensity returns the category's configured base, or a neutral
// default for categories absent from the lexicon.
func (l *Lexicon) baseIntensity(category datatypes.Category) float64 {
	for i := range l.Categories {
		if l.Categories[i].Name == category {
			return l.Categories[i].BaseIntensity
		}
	}
	return 0.3
}
