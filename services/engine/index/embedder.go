// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/tmc/langchaingo/textsplitter"
)

// Embedder computes vector embeddings for text.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedModel names the model producing the vectors. Vectors from
	// different models are not comparable, so the cache keys on it.
	EmbedModel() string
}

// TruncateForEmbedding cuts text to at most maxLen bytes, preferring a
// paragraph, sentence, or word boundary over a hard cut.
//
// # Description
//
// Embedding models degrade on over-long input, and the corpus of
// quotes and short utterances rarely exceeds a few hundred bytes, so
// anything longer is trimmed before it reaches the model. The recursive
// splitter finds the best boundary; a hard byte cut is the fallback
// when splitting fails.
func TruncateForEmbedding(text string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(maxLen),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)

	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		slog.Debug("Text splitter failed, hard-truncating", "error", err)
		return text[:maxLen]
	}
	return chunks[0]
}

// OpenCache opens a persistent BadgerDB for the embedding cache.
//
// # Description
//
// The cache maps sha256(model, text) to the embedding vector so a text
// seen twice never hits the embedding model twice. The cache is
// rebuildable from scratch, so writes skip fsync.
//
// # Inputs
//
//   - path: Directory for database files. Created if missing.
//
// # Outputs
//
//   - *badger.DB: The opened database. Caller must Close() it.
//   - error: Non-nil if the path is invalid or the open fails.
func OpenCache(path string) (*badger.DB, error) {
	if path == "" {
		return nil, errors.New("cache path must not be empty")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return db, nil
}

// OpenCacheInMemory opens an in-memory cache for testing.
func OpenCacheInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory embedding cache: %w", err)
	}
	return db, nil
}

// CachedEmbedder wraps an Embedder with a BadgerDB lookaside cache.
//
// # Description
//
// Every corpus record is embedded once at load time and every user
// utterance once per turn. Reloads and repeated utterances ("hello")
// are common, so caching by content hash removes most embedding calls
// after warmup. Cache failures are logged and absorbed: a broken cache
// degrades to calling the model, never to failing the request.
//
// # Thread Safety
//
// CachedEmbedder is safe for concurrent use.
type CachedEmbedder struct {
	inner Embedder
	db    *badger.DB
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with the given cache database.
func NewCachedEmbedder(inner Embedder, db *badger.DB) (*CachedEmbedder, error) {
	if inner == nil {
		return nil, errors.New("inner embedder must not be nil")
	}
	if db == nil {
		return nil, errors.New("cache db must not be nil")
	}
	return &CachedEmbedder{inner: inner, db: db}, nil
}

// Embed returns the cached vector for text, or computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.EmbedModel(), text)

	if vector, ok := c.lookup(key); ok {
		return vector, nil
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.store(key, vector)
	return vector, nil
}

// EmbedModel names the underlying model.
func (c *CachedEmbedder) EmbedModel() string {
	return c.inner.EmbedModel()
}

// lookup reads a cached vector. A miss or an unreadable entry both
// return ok=false.
func (c *CachedEmbedder) lookup(key []byte) ([]float32, bool) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("Embedding cache read failed", "error", err)
		}
		return nil, false
	}

	vector, err := decodeVector(raw)
	if err != nil {
		slog.Warn("Corrupt embedding cache entry, recomputing", "error", err)
		return nil, false
	}
	return vector, true
}

// store writes a vector to the cache. Failures are non-fatal.
func (c *CachedEmbedder) store(key []byte, vector []float32) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encodeVector(vector))
	})
	if err != nil {
		slog.Warn("Embedding cache write failed", "error", err)
	}
}

// cacheKey hashes the model name and text together so switching the
// embedding model invalidates every entry.
func cacheKey(model, text string) []byte {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return []byte("emb:" + hex.EncodeToString(sum))
}

// encodeVector packs a vector as little-endian float32 words.
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a vector encoded by encodeVector.
func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(raw))
	}
	vector := make([]float32, len(raw)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vector, nil
}
