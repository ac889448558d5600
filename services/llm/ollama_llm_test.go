// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestOllama points a client at an httptest server.
func newTestOllama(t *testing.T, handler http.HandlerFunc) (*OllamaClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &OllamaClient{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		model:      "llama3.2:1b",
		embedModel: "all-minilm",
	}, srv
}

func TestOllamaGenerate_Success(t *testing.T) {
	var gotPath string
	var gotBody ollamaGenerateRequest
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    "llama3.2:1b",
			Response: "Every journey begins with a single step.",
			Done:     true,
		})
	})

	out, err := client.Generate(context.Background(), "say something wise", GenerationParams{})

	require.NoError(t, err)
	assert.Equal(t, "/api/generate", gotPath)
	assert.Equal(t, "llama3.2:1b", gotBody.Model)
	assert.False(t, gotBody.Stream, "non-streaming generation expected")
	assert.Equal(t, "Every journey begins with a single step.", out)
}

func TestOllamaGenerate_ModelNotFound(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model 'llama3.2:1b' not found"}`))
	})

	_, err := client.Generate(context.Background(), "hello", GenerationParams{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull",
		"model-not-found should surface the pull hint")
}

func TestOllamaGenerate_RespectsContextTimeout(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect;
		// with an unread body r.Context() is never canceled and
		// srv.Close would deadlock in cleanup.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Generate(ctx, "hang", GenerationParams{})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 2*time.Second, "call must return shortly after ctx deadline")
}

func TestOllamaClassify_MatchesLabel(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Low temperature is part of the classify contract.
		assert.InDelta(t, 0.1, req.Options["temperature"], 0.001)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response: "The category is Motivational.",
			Done:     true,
		})
	})

	label, err := client.Classify(context.Background(), "classify this",
		[]string{"motivational", "romantic", "funny", "inspirational", "general"})

	require.NoError(t, err)
	assert.Equal(t, "motivational", label)
}

func TestOllamaClassify_NoLabelMatched(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response: "I cannot help with that.",
			Done:     true,
		})
	})

	_, err := client.Classify(context.Background(), "classify this",
		[]string{"motivational", "romantic"})

	require.ErrorIs(t, err, ErrNoLabel)
}

func TestOllamaEmbed_ParsesVector(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Model:      "all-minilm",
			Embeddings: [][]float32{{0.1, 0.2, 0.3}},
		})
	})

	vec, err := client.Embed(context.Background(), "I need motivation")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaEmbed_EmptyVectorIsError(t *testing.T) {
	client, _ := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{}})
	})

	_, err := client.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestMatchLabel(t *testing.T) {
	labels := []string{"motivational", "romantic", "funny", "inspirational", "general"}

	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{"bare label", "funny", "funny", false},
		{"label in sentence", "This is clearly a romantic message.", "romantic", false},
		{"mixed case", "GENERAL", "general", false},
		{"earliest match wins", "funny, maybe romantic", "funny", false},
		{"json-wrapped", `{"category": "inspirational"}`, "inspirational", false},
		{"no label", "sparkly", "", true},
		{"empty output", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchLabel(tt.output, labels)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("matchLabel(%q) expected error, got %q", tt.output, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("matchLabel(%q) unexpected error: %v", tt.output, err)
			}
			if got != tt.want {
				t.Errorf("matchLabel(%q) = %q, want %q", tt.output, got, tt.want)
			}
		})
	}
}
