// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mood classifies user utterances into emotional categories.
//
// Classification runs three stages in order, first success wins: a
// lexical rule pass over an embedded pattern lexicon, a retrieval pass
// over labeled training prompts in the vector index, and a constrained
// classification call to the language model. Each stage is cheaper and
// more deterministic than the next, so most traffic never reaches the
// model.
package mood

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

// defaultLexicon holds the raw bytes of lexicon.yaml.
//
// The lexicon is baked into the binary so the rule pass always has a
// working pattern set; an operator can layer a replacement on top at
// runtime via MOOD_LEXICON_PATH and the LexiconWatcher.
//
//go:embed lexicon.yaml
var defaultLexicon []byte

// intensifierBoost is how much each matching intensifier raises the
// intensity estimate above the category base.
const intensifierBoost = 0.15

// Pattern is one weighted regex belonging to a category.
type Pattern struct {
	ID     string `yaml:"id"`
	Regex  string `yaml:"regex"`
	Weight int    `yaml:"weight"`

	compiled *regexp.Regexp `yaml:"-"`
}

// Intensifier is a category-independent marker of emotional intensity,
// such as "desperately need" or "worst day".
type Intensifier struct {
	ID    string `yaml:"id"`
	Regex string `yaml:"regex"`

	compiled *regexp.Regexp `yaml:"-"`
}

// CategoryLexicon groups the patterns for one category.
type CategoryLexicon struct {
	Name          datatypes.Category `yaml:"name"`
	Description   string             `yaml:"description"`
	BaseIntensity float64            `yaml:"base_intensity"`
	Patterns      []Pattern          `yaml:"patterns"`
}

// Lexicon is the full pattern set driving the rule pass.
//
// # Description
//
// A Lexicon is immutable after Compile; the classifier swaps whole
// lexicons atomically rather than mutating one in place, so a reload
// can never expose a half-compiled state.
type Lexicon struct {
	Categories   []CategoryLexicon `yaml:"categories"`
	Intensifiers []Intensifier     `yaml:"intensifiers"`
}

// LoadLexicon parses, validates, and compiles the embedded lexicon.
//
// # Outputs
//
//   - *Lexicon: Ready to score utterances.
//   - error: Non-nil if the embedded YAML is malformed, names an
//     unknown category, or contains an invalid regex. Because the
//     input is embedded, an error here means a broken build.
func LoadLexicon() (*Lexicon, error) {
	return loadLexiconBytes(defaultLexicon)
}

// LoadLexiconFile parses, validates, and compiles a lexicon from disk.
// Used for operator overrides of the embedded pattern set.
func LoadLexiconFile(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon file %s: %w", path, err)
	}
	return loadLexiconBytes(raw)
}

func loadLexiconBytes(raw []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the lexicon: %w", err)
	}
	if err := lex.Validate(); err != nil {
		return nil, err
	}
	if err := lex.Compile(); err != nil {
		return nil, err
	}
	return &lex, nil
}

// Validate checks structure and applies pattern weight defaults.
//
// Category names must be members of the fixed category set, appear at
// most once, and carry at least one pattern. Omitted weights default
// to 1.
func (l *Lexicon) Validate() error {
	if len(l.Categories) == 0 {
		return fmt.Errorf("lexicon has no categories")
	}

	seen := make(map[datatypes.Category]bool, len(l.Categories))
	for i := range l.Categories {
		cat := &l.Categories[i]

		if _, known := datatypes.ParseCategory(string(cat.Name)); !known {
			return fmt.Errorf("unknown lexicon category %q", cat.Name)
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate lexicon category %q", cat.Name)
		}
		seen[cat.Name] = true

		if cat.BaseIntensity < 0 || cat.BaseIntensity > 1 {
			return fmt.Errorf("category %q base_intensity %f out of range [0, 1]",
				cat.Name, cat.BaseIntensity)
		}
		if len(cat.Patterns) == 0 {
			return fmt.Errorf("category %q has no patterns", cat.Name)
		}

		for j := range cat.Patterns {
			p := &cat.Patterns[j]
			if p.Regex == "" {
				return fmt.Errorf("category %q pattern %q has an empty regex", cat.Name, p.ID)
			}
			if p.Weight < 0 {
				return fmt.Errorf("category %q pattern %q has a negative weight", cat.Name, p.ID)
			}
			if p.Weight == 0 {
				p.Weight = 1
			}
		}
	}

	return nil
}

// Compile compiles every pattern and intensifier regex.
func (l *Lexicon) Compile() error {
	for i := range l.Categories {
		for j := range l.Categories[i].Patterns {
			p := &l.Categories[i].Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex %s: %w", p.Regex, err)
			}
			p.compiled = re
		}
	}

	for i := range l.Intensifiers {
		in := &l.Intensifiers[i]
		re, err := regexp.Compile(in.Regex)
		if err != nil {
			return fmt.Errorf("failed to compile the intensifier regex %s: %w", in.Regex, err)
		}
		in.compiled = re
	}

	return nil
}
