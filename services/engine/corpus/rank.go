// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package corpus

import (
	"sort"
	"strings"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

// qualityKeywords mark quotes with emotional depth. A quote mentioning
// several of these tends to land better than a generic aphorism.
var qualityKeywords = []string{
	"heart", "soul", "life", "love", "dream",
	"hope", "strength", "courage", "wisdom",
}

// idealQuoteWords is the word count the length score centers on.
const idealQuoteWords = 15

// RankScore scores a quote text for selection. Quality keywords weigh
// three points each; the length score peaks at idealQuoteWords and
// falls off one point per word of distance.
func RankScore(text string) int {
	lowered := strings.ToLower(text)

	quality := 0
	for _, keyword := range qualityKeywords {
		if strings.Contains(lowered, keyword) {
			quality++
		}
	}

	distance := len(strings.Fields(lowered)) - idealQuoteWords
	if distance < 0 {
		distance = -distance
	}
	length := 10 - distance
	if length < 0 {
		length = 0
	}

	return quality*3 + length
}

// Quality maps RankScore onto [0, 1] for vector index records. The
// divisor is the practical ceiling: three keyword hits plus a perfect
// length score.
func Quality(text string) float64 {
	q := float64(RankScore(text)) / 19.0
	if q > 1 {
		q = 1
	}
	return q
}

// Rank orders quotes by RankScore descending and returns the top
// count. The sort is stable so equally scored quotes keep the caller's
// order, which is random when they came from the store.
func Rank(quotes []datatypes.Quote, count int) []datatypes.Quote {
	ranked := make([]datatypes.Quote, len(quotes))
	copy(ranked, quotes)

	sort.SliceStable(ranked, func(i, j int) bool {
		return RankScore(ranked[i].Text) > RankScore(ranked[j].Text)
	})

	if count < len(ranked) {
		ranked = ranked[:count]
	}
	return ranked
}
