// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index provides semantic retrieval over the engine's memory
// corpus. Records (quotes, training prompts, conversation turns) are
// stored in Weaviate with client-supplied vectors and searched by
// embedding similarity. Embeddings come from an Embedder, optionally
// wrapped in a BadgerDB cache so repeated texts never hit the embedding
// model twice.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

// ErrNotFound is returned when a record ID does not exist in the index.
var ErrNotFound = errors.New("record not found in index")

// UnavailableError reports that the vector index could not be reached.
//
// # Description
//
// The mood classifier and composer treat retrieval as optional: when the
// index is down they fall through to their next stage instead of failing
// the turn. Wrapping transport failures in UnavailableError lets callers
// detect that case with errors.As and degrade instead of erroring out.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("vector index unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// RecordKind tags what a stored record represents.
type RecordKind string

const (
	// KindQuote is a quote from the corpus, searchable as an exemplar.
	KindQuote RecordKind = "quote"

	// KindTrainingPrompt is a labeled utterance used by the retrieval
	// pass of the mood classifier.
	KindTrainingPrompt RecordKind = "training_prompt"

	// KindConversationTurn is a past user turn, stored with reduced
	// quality so live chatter never outranks the curated corpus.
	KindConversationTurn RecordKind = "conversation_turn"
)

// Valid reports whether k is one of the known record kinds.
func (k RecordKind) Valid() bool {
	switch k {
	case KindQuote, KindTrainingPrompt, KindConversationTurn:
		return true
	}
	return false
}

// Record is a single entry in the vector index.
//
// # Fields
//
//   - ID: Stable identifier, assigned at insert time if empty.
//   - Kind: What the record represents (quote, training_prompt, conversation_turn).
//   - Text: The content that gets embedded and searched.
//   - Category: The emotional category this record is labeled with.
//   - Quality: Ranking weight in [0, 1]. Curated corpus records carry
//     higher quality than live conversation turns.
//   - SessionID: Owning session, set only for conversation_turn records.
//   - Author: Quote attribution, set only for quote records.
//   - CreatedAt: Insert timestamp, assigned if zero.
type Record struct {
	ID        string             `json:"id"`
	Kind      RecordKind         `json:"kind"`
	Text      string             `json:"text"`
	Category  datatypes.Category `json:"category"`
	Quality   float64            `json:"quality"`
	SessionID string             `json:"session_id,omitempty"`
	Author    string             `json:"author,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Validate checks that the record can be inserted.
func (r Record) Validate() error {
	if r.Text == "" {
		return errors.New("record text must not be empty")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
	if r.Quality < 0 || r.Quality > 1 {
		return fmt.Errorf("quality %f out of range [0, 1]", r.Quality)
	}
	return nil
}

// Hit is a search result: the stored record plus its similarity to the
// query. Similarity is Weaviate's certainty, always in [0, 1], where 1
// means identical direction and 0.5 means orthogonal.
type Hit struct {
	Record     Record
	Similarity float64
}

// SearchOptions narrows a similarity search.
//
// # Fields
//
//   - TopK: Maximum hits to return. Zero uses the index default.
//   - MinSimilarity: Server-side floor on certainty. Hits below it are
//     never returned. Negative values fall back to the index default;
//     use zero for an unfiltered search.
//   - Kinds: Restrict to these record kinds. Empty means all kinds.
//   - Category: Restrict to one category. Empty means all categories.
type SearchOptions struct {
	TopK          int
	MinSimilarity float64
	Kinds         []RecordKind
	Category      datatypes.Category
}

// Index is the retrieval surface the rest of the engine depends on.
//
// # Description
//
// Implementations must filter by MinSimilarity on the server so the
// classifier's confidence floor is enforced before results cross the
// wire. All methods honor context cancellation.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Index interface {
	// EnsureSchema creates the backing storage if missing. Idempotent.
	EnsureSchema(ctx context.Context) error

	// Insert embeds the record text and stores it. Returns the record
	// ID, generating one when rec.ID is empty.
	Insert(ctx context.Context, rec Record) (string, error)

	// Search embeds the query text and returns the most similar
	// records, best first, subject to opts.
	Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error)

	// Count returns how many records of the kind are stored, or of
	// every kind when kind is empty.
	Count(ctx context.Context, kind RecordKind) (int, error)

	// Remove deletes a record by its ID. Returns ErrNotFound when the
	// ID is absent.
	Remove(ctx context.Context, recordID string) error

	// PurgeSession deletes all conversation_turn records owned by the
	// session and returns how many were removed.
	PurgeSession(ctx context.Context, sessionID string) (int, error)
}
