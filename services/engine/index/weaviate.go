// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

var tracer = otel.Tracer("aura.engine.index")

// MoodMemoryClassName is the Weaviate class holding every index record.
const MoodMemoryClassName = "MoodMemory"

// Config holds tunables for the Weaviate-backed index.
type Config struct {
	// DefaultTopK caps search results when SearchOptions.TopK is zero.
	DefaultTopK int

	// DefaultMinSimilarity is the certainty floor applied when
	// SearchOptions.MinSimilarity is negative.
	DefaultMinSimilarity float64

	// MaxEmbedLength is the longest text, in bytes, passed to the
	// embedder. Longer texts are cut at a natural boundary first.
	MaxEmbedLength int
}

// DefaultConfig returns production defaults for the index.
func DefaultConfig() Config {
	return Config{
		DefaultTopK:          5,
		DefaultMinSimilarity: 0.5,
		MaxEmbedLength:       512,
	}
}

// validateConfig corrects out-of-range values, warning about each one.
func validateConfig(config Config) Config {
	defaults := DefaultConfig()

	if config.DefaultTopK <= 0 {
		slog.Warn("Invalid DefaultTopK config, using default",
			"provided", config.DefaultTopK, "default", defaults.DefaultTopK)
		config.DefaultTopK = defaults.DefaultTopK
	}

	if config.DefaultMinSimilarity < 0 || config.DefaultMinSimilarity > 1 {
		slog.Warn("Invalid DefaultMinSimilarity config, using default",
			"provided", config.DefaultMinSimilarity, "default", defaults.DefaultMinSimilarity)
		config.DefaultMinSimilarity = defaults.DefaultMinSimilarity
	}

	if config.MaxEmbedLength < 1 {
		slog.Warn("Invalid MaxEmbedLength config, using default",
			"provided", config.MaxEmbedLength, "default", defaults.MaxEmbedLength)
		config.MaxEmbedLength = defaults.MaxEmbedLength
	}

	return config
}

// NewClientFromURL builds a Weaviate client from a full service URL
// such as "http://localhost:8080".
func NewClientFromURL(rawURL string) (*weaviate.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL %q: %v", rawURL, err)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// GetMoodMemorySchema returns the Weaviate class definition for index
// records.
//
// # Description
//
// Vectorizer is "none": vectors are computed client-side by the
// configured Embedder and supplied on insert, so the same embedding
// model serves both writes and queries.
//
// # Outputs
//
//   - *models.Class: The Weaviate class definition.
func GetMoodMemorySchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	indexSearchable := new(bool)
	*indexSearchable = true

	return &models.Class{
		Class:       MoodMemoryClassName,
		Description: "Quotes, training prompts, and conversation turns searched by embedding similarity",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "recordId",
				DataType:        []string{"text"},
				Description:     "Stable identifier for the record (UUID)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "content",
				DataType:        []string{"text"},
				Description:     "The text that was embedded",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:            "recordKind",
				DataType:        []string{"text"},
				Description:     "Kind: quote, training_prompt, conversation_turn",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Emotional category label",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "quality",
				DataType:    []string{"number"},
				Description: "Ranking weight from 0.0 to 1.0",
			},
			{
				Name:            "sessionId",
				DataType:        []string{"text"},
				Description:     "Owning session for conversation_turn records",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "author",
				DataType:     []string{"text"},
				Description:  "Quote attribution",
				Tokenization: "word",
			},
			{
				Name:        "createdAt",
				DataType:    []string{"date"},
				Description: "When the record was inserted",
			},
		},
	}
}

// VectorIndex implements Index on top of Weaviate.
//
// # Description
//
// VectorIndex stores all record kinds in a single MoodMemory class and
// narrows searches with recordKind and category filters. Similarity is
// Weaviate's certainty, so scores are always in [0, 1] regardless of
// the distance metric. The MinSimilarity floor is pushed into the
// nearVector clause and enforced server-side.
//
// # Thread Safety
//
// VectorIndex is safe for concurrent use. The underlying Weaviate
// client handles connection pooling.
//
// # Example
//
//	client, _ := index.NewClientFromURL("http://localhost:8080")
//	idx, _ := index.NewVectorIndex(client, embedder, index.DefaultConfig())
//	hits, err := idx.Search(ctx, "I need motivation", index.SearchOptions{
//	    Kinds: []index.RecordKind{index.KindTrainingPrompt},
//	})
type VectorIndex struct {
	client   *weaviate.Client
	embedder Embedder
	config   Config
}

var _ Index = (*VectorIndex)(nil)

// NewVectorIndex creates a Weaviate-backed index.
//
// # Inputs
//
//   - client: Weaviate client. Must not be nil.
//   - embedder: Computes vectors for inserts and queries. Must not be nil.
//   - config: Tunables (use DefaultConfig() for defaults). Out-of-range
//     values are corrected with a warning.
//
// # Outputs
//
//   - *VectorIndex: Ready to use index.
//   - error: Non-nil if client or embedder is nil.
func NewVectorIndex(client *weaviate.Client, embedder Embedder, config Config) (*VectorIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("weaviate client must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder must not be nil")
	}
	return &VectorIndex{
		client:   client,
		embedder: embedder,
		config:   validateConfig(config),
	}, nil
}

// EnsureSchema creates the MoodMemory class if it does not exist.
// Idempotent; safe to call on every startup.
func (x *VectorIndex) EnsureSchema(ctx context.Context) error {
	_, err := x.client.Schema().ClassGetter().WithClassName(MoodMemoryClassName).Do(ctx)
	if err == nil {
		slog.Debug("MoodMemory schema already exists")
		return nil
	}

	slog.Info("Creating MoodMemory schema")
	if err := x.client.Schema().ClassCreator().WithClass(GetMoodMemorySchema()).Do(ctx); err != nil {
		return &UnavailableError{Op: "ensure schema", Err: err}
	}

	slog.Info("MoodMemory schema created")
	return nil
}

// Insert embeds the record text and stores it with its vector.
//
// # Description
//
// Fills in ID and CreatedAt when unset, validates the record, computes
// the embedding, and writes the object. The round trip through the
// embedder means an insert costs one embedding call unless the text is
// already cached.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - rec: The record to store. Text and a valid Kind are required.
//
// # Outputs
//
//   - string: The record ID (generated when rec.ID was empty).
//   - error: Validation error, embedding error, or *UnavailableError
//     when Weaviate cannot be reached.
func (x *VectorIndex) Insert(ctx context.Context, rec Record) (string, error) {
	ctx, span := tracer.Start(ctx, "Insert")
	defer span.End()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("validating record: %w", err)
	}

	vector, err := x.embedder.Embed(ctx, TruncateForEmbedding(rec.Text, x.config.MaxEmbedLength))
	if err != nil {
		return "", fmt.Errorf("embedding record text: %w", err)
	}

	properties := map[string]interface{}{
		"recordId":   rec.ID,
		"content":    rec.Text,
		"recordKind": string(rec.Kind),
		"category":   string(rec.Category),
		"quality":    rec.Quality,
		"sessionId":  rec.SessionID,
		"author":     rec.Author,
		"createdAt":  rec.CreatedAt.Format(time.RFC3339),
	}

	_, err = x.client.Data().Creator().
		WithClassName(MoodMemoryClassName).
		WithProperties(properties).
		WithVector(vector).
		Do(ctx)
	if err != nil {
		return "", &UnavailableError{Op: "insert", Err: err}
	}

	slog.Debug("Inserted index record",
		"record_id", rec.ID,
		"kind", rec.Kind,
		"category", rec.Category)
	return rec.ID, nil
}

// Search embeds the query and returns the nearest records, best first.
//
// # Description
//
// The query is truncated to MaxEmbedLength, embedded, and matched with
// a nearVector search. When a similarity floor applies it is passed as
// the certainty argument so filtering happens inside Weaviate, not in
// this process.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: The text to match against stored records.
//   - opts: TopK, similarity floor, and kind/category filters.
//
// # Outputs
//
//   - []Hit: Matching records with similarity scores, best first.
//     Empty slice when nothing clears the floor.
//   - error: Embedding error, or *UnavailableError when Weaviate
//     cannot be reached.
func (x *VectorIndex) Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	topK := opts.TopK
	if topK <= 0 {
		topK = x.config.DefaultTopK
	}
	minSim := opts.MinSimilarity
	if minSim < 0 {
		minSim = x.config.DefaultMinSimilarity
	}

	vector, err := x.embedder.Embed(ctx, TruncateForEmbedding(query, x.config.MaxEmbedLength))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	nearVector := x.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	if minSim > 0 {
		nearVector = nearVector.WithCertainty(float32(minSim))
	}

	builder := x.client.GraphQL().Get().
		WithClassName(MoodMemoryClassName).
		WithFields(queryFields()...).
		WithNearVector(nearVector).
		WithLimit(topK)

	if where := buildWhere(opts); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, &UnavailableError{Op: "search", Err: err}
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search query error: %s", result.Errors[0].Message)
	}

	hits := parseHits(result)
	slog.Debug("Index search complete",
		"hits", len(hits),
		"top_k", topK,
		"min_similarity", minSim)
	return hits, nil
}

// Remove deletes a record by its ID.
//
// # Outputs
//
//   - error: ErrNotFound when the ID is absent, *UnavailableError when
//     Weaviate cannot be reached, nil on success.
func (x *VectorIndex) Remove(ctx context.Context, recordID string) error {
	ctx, span := tracer.Start(ctx, "Remove")
	defer span.End()

	weaviateID, err := x.lookupWeaviateID(ctx, recordID)
	if err != nil {
		return err
	}

	if err := x.client.Data().Deleter().
		WithClassName(MoodMemoryClassName).
		WithID(weaviateID).
		Do(ctx); err != nil {
		return &UnavailableError{Op: "remove", Err: err}
	}

	slog.Info("Removed index record", "record_id", recordID)
	return nil
}

// PurgeSession batch-deletes every conversation_turn record owned by
// the session. Quotes and training prompts are never touched.
//
// # Outputs
//
//   - int: How many records were deleted.
//   - error: *UnavailableError when Weaviate cannot be reached.
func (x *VectorIndex) PurgeSession(ctx context.Context, sessionID string) (int, error) {
	ctx, span := tracer.Start(ctx, "PurgeSession")
	defer span.End()

	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"sessionId"}).
				WithOperator(filters.Equal).
				WithValueText(sessionID),
			filters.Where().
				WithPath([]string{"recordKind"}).
				WithOperator(filters.Equal).
				WithValueText(string(KindConversationTurn)),
		})

	resp, err := x.client.Batch().ObjectsBatchDeleter().
		WithClassName(MoodMemoryClassName).
		WithWhere(where).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return 0, &UnavailableError{Op: "purge session", Err: err}
	}
	if resp == nil || resp.Results == nil {
		return 0, nil
	}

	if resp.Results.Failed > 0 {
		slog.Warn("Some session records failed to delete",
			"session_id", sessionID,
			"failed", resp.Results.Failed,
			"successful", resp.Results.Successful)
	}
	return int(resp.Results.Successful), nil
}

// Count returns the number of stored records of one kind, or of every
// kind when kind is empty.
func (x *VectorIndex) Count(ctx context.Context, kind RecordKind) (int, error) {
	ctx, span := tracer.Start(ctx, "Count")
	defer span.End()

	agg := x.client.GraphQL().Aggregate().
		WithClassName(MoodMemoryClassName).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		})
	if kind != "" {
		agg = agg.WithWhere(filters.Where().
			WithPath([]string{"recordKind"}).
			WithOperator(filters.Equal).
			WithValueText(string(kind)))
	}

	result, err := agg.Do(ctx)
	if err != nil {
		return 0, &UnavailableError{Op: "count", Err: err}
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("aggregate query error: %s", result.Errors[0].Message)
	}
	return parseAggregateCount(result.Data)
}

// parseAggregateCount extracts meta.count from an aggregate response.
func parseAggregateCount(data map[string]models.JSONObject) (int, error) {
	// Marshal and unmarshal for type safety
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("marshal aggregate response: %w", err)
	}

	var response struct {
		Aggregate struct {
			MoodMemory []struct {
				Meta struct {
					Count float64 `json:"count"`
				} `json:"meta"`
			} `json:"MoodMemory"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(jsonBytes, &response); err != nil {
		return 0, fmt.Errorf("unmarshal aggregate response: %w", err)
	}

	if len(response.Aggregate.MoodMemory) == 0 {
		return 0, nil
	}
	return int(response.Aggregate.MoodMemory[0].Meta.Count), nil
}

// Reset drops and recreates the MoodMemory class. Every stored record
// is lost; the caller reloads the corpus afterwards. Used by the
// reindex path, never during normal startup.
func (x *VectorIndex) Reset(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Reset")
	defer span.End()

	if err := x.client.Schema().ClassDeleter().
		WithClassName(MoodMemoryClassName).
		Do(ctx); err != nil {
		return &UnavailableError{Op: "reset", Err: err}
	}

	slog.Info("Dropped index class", "class", MoodMemoryClassName)
	return x.EnsureSchema(ctx)
}

// lookupWeaviateID resolves our recordId to the Weaviate object UUID.
func (x *VectorIndex) lookupWeaviateID(ctx context.Context, recordID string) (string, error) {
	where := filters.Where().
		WithPath([]string{"recordId"}).
		WithOperator(filters.Equal).
		WithValueString(recordID)

	result, err := x.client.GraphQL().Get().
		WithClassName(MoodMemoryClassName).
		WithFields(graphql.Field{Name: "_additional { id }"},
			graphql.Field{Name: "recordId"}).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return "", &UnavailableError{Op: "lookup", Err: err}
	}
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("lookup query error: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return "", ErrNotFound
	}
	objects, ok := data[MoodMemoryClassName].([]interface{})
	if !ok || len(objects) == 0 {
		return "", ErrNotFound
	}
	obj, ok := objects[0].(map[string]interface{})
	if !ok {
		return "", ErrNotFound
	}
	additional, ok := obj["_additional"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("missing _additional field in lookup result")
	}
	id, ok := additional["id"].(string)
	if !ok {
		return "", fmt.Errorf("missing id in _additional")
	}
	return id, nil
}

// buildWhere translates SearchOptions filters into a Weaviate where
// clause. Returns nil when no filters apply.
func buildWhere(opts SearchOptions) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	switch len(opts.Kinds) {
	case 0:
		// No kind filter.
	case 1:
		operands = append(operands, filters.Where().
			WithPath([]string{"recordKind"}).
			WithOperator(filters.Equal).
			WithValueString(string(opts.Kinds[0])))
	default:
		kindOperands := make([]*filters.WhereBuilder, 0, len(opts.Kinds))
		for _, kind := range opts.Kinds {
			kindOperands = append(kindOperands, filters.Where().
				WithPath([]string{"recordKind"}).
				WithOperator(filters.Equal).
				WithValueString(string(kind)))
		}
		operands = append(operands, filters.Where().
			WithOperator(filters.Or).
			WithOperands(kindOperands))
	}

	if opts.Category != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueString(string(opts.Category)))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}

// queryFields returns the fields retrieved by Search.
func queryFields() []graphql.Field {
	return []graphql.Field{
		{Name: "recordId"},
		{Name: "content"},
		{Name: "recordKind"},
		{Name: "category"},
		{Name: "quality"},
		{Name: "sessionId"},
		{Name: "author"},
		{Name: "createdAt"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}
}

// parseHits converts a GraphQL response into Hit values.
func parseHits(result *models.GraphQLResponse) []Hit {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []Hit{}
	}
	objects, ok := data[MoodMemoryClassName].([]interface{})
	if !ok {
		return []Hit{}
	}

	hits := make([]Hit, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue // skip malformed objects
		}

		category, _ := datatypes.ParseCategory(getString(obj, "category"))
		rec := Record{
			ID:        getString(obj, "recordId"),
			Kind:      RecordKind(getString(obj, "recordKind")),
			Text:      getString(obj, "content"),
			Category:  category,
			Quality:   getFloat64(obj, "quality"),
			SessionID: getString(obj, "sessionId"),
			Author:    getString(obj, "author"),
		}
		if createdStr := getString(obj, "createdAt"); createdStr != "" {
			if t, err := time.Parse(time.RFC3339, createdStr); err == nil {
				rec.CreatedAt = t
			}
		}

		var similarity float64
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			similarity = getFloat64(additional, "certainty")
		}

		hits = append(hits, Hit{Record: rec, Similarity: similarity})
	}

	return hits
}

// getString safely extracts a string from a map.
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// getFloat64 safely extracts a float64 from a map.
func getFloat64(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		}
	}
	return 0
}
