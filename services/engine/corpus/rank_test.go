// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

func TestRankScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{
			name: "one keyword, near ideal length",
			// "love" hits; 13 words gives a length score of 8.
			text: "The only way to do great work is to love what you do.",
			want: 11,
		},
		{
			name: "one keyword, far from ideal length",
			text: "Dream bigger. Do bigger.",
			want: 3,
		},
		{
			name: "no keywords",
			// 10 words gives a length score of 5.
			text: "Why don't scientists trust atoms? Because they make up everything!",
			want: 5,
		},
		{
			name: "empty",
			text: "",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RankScore(tt.text))
		})
	}
}

func TestQualityClamped(t *testing.T) {
	dense := "heart soul life love dream hope strength courage wisdom"
	assert.Equal(t, 1.0, Quality(dense))

	assert.InDelta(t, 3.0/19.0, Quality("Dream bigger. Do bigger."), 0.001)
	assert.GreaterOrEqual(t, Quality(""), 0.0)
}

func TestRank(t *testing.T) {
	strong := datatypes.Quote{Text: "The only way to do great work is to love what you do."}
	weak := datatypes.Quote{Text: "Dream bigger. Do bigger."}

	ranked := Rank([]datatypes.Quote{weak, strong}, 1)
	assert.Len(t, ranked, 1)
	assert.Equal(t, strong.Text, ranked[0].Text)

	both := Rank([]datatypes.Quote{weak, strong}, 5)
	assert.Len(t, both, 2, "count beyond input returns everything")
	assert.Equal(t, strong.Text, both[0].Text)

	original := []datatypes.Quote{weak, strong}
	Rank(original, 1)
	assert.Equal(t, weak.Text, original[0].Text, "input order must not be mutated")
}
