// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the estimation ratio the fallback counter uses when
// the BPE encoding cannot be loaded.
const charsPerToken = 4

// TokenCounter measures text against the context window budget.
type TokenCounter interface {
	// Count returns the number of tokens in the text.
	Count(text string) int
}

// tiktokenCounter counts with the cl100k_base encoding.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// heuristicCounter estimates tokens from the character count. It is
// the offline fallback: loading cl100k_base needs either a local BPE
// cache or network access.
type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

var (
	counterOnce   sync.Once
	sharedCounter TokenCounter
)

// NewTokenCounter returns the process-wide token counter. The encoding
// is loaded once; every later call returns the same counter.
func NewTokenCounter() TokenCounter {
	counterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("Token encoding unavailable, estimating from character count",
				"encoding", "cl100k_base",
				"error", err)
			sharedCounter = heuristicCounter{}
			return
		}
		sharedCounter = &tiktokenCounter{enc: enc}
	})
	return sharedCounter
}
