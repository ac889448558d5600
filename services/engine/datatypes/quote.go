// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the data structures shared across the engine
// service: quotes, training prompts, sessions, conversation turns, mood
// results, and the request/response types for the turn-handling contract.
package datatypes

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Categories
// =============================================================================

// Category is one of the fixed emotional classes used to route users to
// quote collections.
type Category string

const (
	CategoryMotivational  Category = "motivational"
	CategoryRomantic      Category = "romantic"
	CategoryFunny         Category = "funny"
	CategoryInspirational Category = "inspirational"
	CategoryGeneral       Category = "general"
)

// EmotionalCategories are the categories that carry an emotional signal and
// therefore gate navigation and quote fetching. CategoryGeneral is excluded:
// ambiguous input is never routed to an emotional collection.
var EmotionalCategories = []Category{
	CategoryMotivational,
	CategoryRomantic,
	CategoryFunny,
	CategoryInspirational,
}

// AllCategories lists every valid category including the general bucket.
var AllCategories = []Category{
	CategoryMotivational,
	CategoryRomantic,
	CategoryFunny,
	CategoryInspirational,
	CategoryGeneral,
}

// ParseCategory normalizes a raw string into a known Category.
//
// # Description
//
// Unknown, empty, or malformed values map to CategoryGeneral rather than an
// error: category strings cross the model boundary and malformed model output
// must never surface as a failure.
//
// # Inputs
//
//   - raw: Candidate category string, any case, surrounding whitespace allowed.
//
// # Outputs
//
//   - Category: The matching category, or CategoryGeneral when unrecognized.
//   - bool: True when raw named a known category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllCategories {
		if c == known {
			return known, true
		}
	}
	return CategoryGeneral, false
}

// IsEmotional reports whether the category gates the navigation and
// quote-fetch tools.
func (c Category) IsEmotional() bool {
	for _, e := range EmotionalCategories {
		if c == e {
			return true
		}
	}
	return false
}

// PagePath returns the browse path for the category's quote collection.
func (c Category) PagePath() string {
	if c == CategoryGeneral || !c.IsEmotional() {
		return "/quotes"
	}
	return fmt.Sprintf("/quotes/%s", c)
}

// CategoryInfo describes a category for the public categories listing.
type CategoryInfo struct {
	Name        Category `json:"name"`
	Emoji       string   `json:"emoji"`
	Description string   `json:"description"`
}

// CategoryCatalog returns the browsable categories with display metadata.
// The general bucket is deliberately absent: it is a routing fallback, not a
// curated collection.
func CategoryCatalog() []CategoryInfo {
	return []CategoryInfo{
		{Name: CategoryMotivational, Emoji: "💪", Description: "Boost your motivation and drive"},
		{Name: CategoryRomantic, Emoji: "💖", Description: "Express your love and feelings"},
		{Name: CategoryFunny, Emoji: "😂", Description: "Brighten your day with humor"},
		{Name: CategoryInspirational, Emoji: "✨", Description: "Find hope and inspiration"},
	}
}

// =============================================================================
// Quote and TrainingPrompt
// =============================================================================

// Quote is a single curated quote. Quotes are immutable once created: they
// are inserted at corpus-load time or by an administrative insert and only
// ever removed, never mutated.
type Quote struct {
	ID        string    `json:"id"`
	Text      string    `json:"quote"`
	Author    string    `json:"author"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the invariants a quote must satisfy before insertion.
func (q *Quote) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("quote text must not be empty")
	}
	if strings.TrimSpace(q.Author) == "" {
		return fmt.Errorf("quote author must not be empty")
	}
	if _, ok := ParseCategory(string(q.Category)); !ok {
		return fmt.Errorf("unknown quote category %q", q.Category)
	}
	return nil
}

// TrainingPrompt is a labeled example utterance used to ground mood
// classification via retrieval. Training prompts are created once during
// corpus setup, embedded into the vector index at creation, and read-only
// thereafter.
type TrainingPrompt struct {
	Prompt     string   `json:"prompt" yaml:"prompt"`
	Category   Category `json:"category" yaml:"category"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	// Response is the optional canonical reply exemplar surfaced to the
	// composer when this prompt is retrieved.
	Response string `json:"response,omitempty" yaml:"response,omitempty"`
}
