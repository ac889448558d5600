// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     Category
		wantKnown bool
	}{
		{"exact match", "motivational", CategoryMotivational, true},
		{"uppercase", "ROMANTIC", CategoryRomantic, true},
		{"mixed case with spaces", "  Funny \n", CategoryFunny, true},
		{"inspirational", "inspirational", CategoryInspirational, true},
		{"general", "general", CategoryGeneral, true},
		{"unknown maps to general", "melancholy", CategoryGeneral, false},
		{"empty maps to general", "", CategoryGeneral, false},
		{"model junk maps to general", `{"category": "motivational"}`, CategoryGeneral, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := ParseCategory(tt.raw)
			if got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			if known != tt.wantKnown {
				t.Errorf("ParseCategory(%q) known = %v, want %v", tt.raw, known, tt.wantKnown)
			}
		})
	}
}

func TestCategoryIsEmotional(t *testing.T) {
	for _, c := range EmotionalCategories {
		if !c.IsEmotional() {
			t.Errorf("%q should be emotional", c)
		}
	}
	if CategoryGeneral.IsEmotional() {
		t.Error("general must not be emotional")
	}
}

func TestCategoryPagePath(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryMotivational, "/quotes/motivational"},
		{CategoryRomantic, "/quotes/romantic"},
		{CategoryFunny, "/quotes/funny"},
		{CategoryInspirational, "/quotes/inspirational"},
		{CategoryGeneral, "/quotes"},
	}

	for _, tt := range tests {
		if got := tt.category.PagePath(); got != tt.want {
			t.Errorf("PagePath(%q) = %q, want %q", tt.category, got, tt.want)
		}
	}
}

func TestQuoteValidate(t *testing.T) {
	tests := []struct {
		name    string
		quote   Quote
		wantErr bool
	}{
		{
			name:    "valid quote",
			quote:   Quote{Text: "Stay hungry, stay foolish.", Author: "Steve Jobs", Category: CategoryMotivational},
			wantErr: false,
		},
		{
			name:    "empty text",
			quote:   Quote{Text: "   ", Author: "Someone", Category: CategoryFunny},
			wantErr: true,
		},
		{
			name:    "empty author",
			quote:   Quote{Text: "Words.", Author: "", Category: CategoryFunny},
			wantErr: true,
		},
		{
			name:    "unknown category",
			quote:   Quote{Text: "Words.", Author: "Someone", Category: "wistful"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.quote.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMoodResultClamp(t *testing.T) {
	tests := []struct {
		name           string
		in             MoodResult
		wantConfidence float64
		wantIntensity  float64
	}{
		{"in range untouched", MoodResult{Confidence: 0.7, Intensity: 0.4}, 0.7, 0.4},
		{"negative clamps to zero", MoodResult{Confidence: -0.2, Intensity: -1}, 0, 0},
		{"overflow clamps to one", MoodResult{Confidence: 1.8, Intensity: 2.5}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamp()
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if got.Intensity != tt.wantIntensity {
				t.Errorf("Intensity = %v, want %v", got.Intensity, tt.wantIntensity)
			}
		})
	}
}

func TestNewConversationStats(t *testing.T) {
	tests := []struct {
		name           string
		prior          int
		wantNew        bool
		wantEngagement float64
		wantStage      string
	}{
		{"fresh conversation", 0, true, 0, "opening"},
		{"second message", 2, false, 0.2, "opening"},
		{"ongoing", 5, false, 0.5, "ongoing"},
		{"engagement caps at one", 25, false, 1, "ongoing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewConversationStats(tt.prior)
			if got.IsNewConversation != tt.wantNew {
				t.Errorf("IsNewConversation = %v, want %v", got.IsNewConversation, tt.wantNew)
			}
			if got.EngagementLevel != tt.wantEngagement {
				t.Errorf("EngagementLevel = %v, want %v", got.EngagementLevel, tt.wantEngagement)
			}
			if got.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", got.Stage, tt.wantStage)
			}
		})
	}
}
