// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

func TestGetQuotesByCategoryReturnsQuotes(t *testing.T) {
	eng := &mockEngine{
		Quotes: []datatypes.Quote{
			{ID: "q1", Text: "Keep going.", Author: "Anon", Category: datatypes.CategoryMotivational},
			{ID: "q2", Text: "Never give up.", Author: "Anon", Category: datatypes.CategoryMotivational},
		},
	}

	w := perform(t, "GET", "/v1/quotes/motivational", "",
		func(r *gin.Engine) { r.GET("/v1/quotes/:category", GetQuotesByCategory(eng)) })

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, datatypes.CategoryMotivational, eng.LastCategory)
	assert.Equal(t, defaultQuoteLimit, eng.LastQuoteLimit)

	body := decodeBody(t, w)
	assert.Equal(t, "motivational", body["category"])
	assert.Equal(t, float64(2), body["count"])
	quotes, ok := body["quotes"].([]any)
	require.True(t, ok, "quotes should be an array")
	assert.Len(t, quotes, 2)
}

func TestGetQuotesByCategoryUnknownCategory(t *testing.T) {
	eng := &mockEngine{}

	w := perform(t, "GET", "/v1/quotes/melancholic", "",
		func(r *gin.Engine) { r.GET("/v1/quotes/:category", GetQuotesByCategory(eng)) })

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, eng.QuoteCalls)
}

func TestGetQuotesByCategoryLimitCapped(t *testing.T) {
	eng := &mockEngine{}

	w := perform(t, "GET", "/v1/quotes/funny?limit=500", "",
		func(r *gin.Engine) { r.GET("/v1/quotes/:category", GetQuotesByCategory(eng)) })

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxQuoteLimit, eng.LastQuoteLimit)
}

func TestGetQuotesByCategoryStoreFailure(t *testing.T) {
	eng := &mockEngine{QuotesErr: fmt.Errorf("database is locked")}

	w := perform(t, "GET", "/v1/quotes/romantic", "",
		func(r *gin.Engine) { r.GET("/v1/quotes/:category", GetQuotesByCategory(eng)) })

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateQuoteStoresQuote(t *testing.T) {
	eng := &mockEngine{
		AddResp: datatypes.Quote{
			ID:       "q-new",
			Text:     "Dream big.",
			Author:   "Aura",
			Category: datatypes.CategoryInspirational,
		},
	}

	w := perform(t, "POST", "/v1/quotes",
		`{"quote": "Dream big.", "author": "Aura", "category": "inspirational"}`,
		func(r *gin.Engine) { r.POST("/v1/quotes", CreateQuote(eng)) })

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Dream big.", eng.LastQuote.Text)
	assert.Equal(t, "Aura", eng.LastQuote.Author)
	assert.Equal(t, datatypes.CategoryInspirational, eng.LastQuote.Category)

	body := decodeBody(t, w)
	assert.Equal(t, "q-new", body["id"])
}

func TestCreateQuoteRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"quote": `},
		{"missing author", `{"quote": "x", "category": "funny"}`},
		{"missing text", `{"author": "x", "category": "funny"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng := &mockEngine{}
			w := perform(t, "POST", "/v1/quotes", tc.body,
				func(r *gin.Engine) { r.POST("/v1/quotes", CreateQuote(eng)) })

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, eng.AddCalls)
		})
	}
}

func TestCreateQuoteRejectsUnknownCategory(t *testing.T) {
	eng := &mockEngine{}

	w := perform(t, "POST", "/v1/quotes",
		`{"quote": "x", "author": "y", "category": "melancholic"}`,
		func(r *gin.Engine) { r.POST("/v1/quotes", CreateQuote(eng)) })

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "unknown category", body["error"])
	assert.Zero(t, eng.AddCalls)
}

func TestCreateQuoteStoreFailure(t *testing.T) {
	eng := &mockEngine{AddErr: fmt.Errorf("database is locked")}

	w := perform(t, "POST", "/v1/quotes",
		`{"quote": "x", "author": "y", "category": "funny"}`,
		func(r *gin.Engine) { r.POST("/v1/quotes", CreateQuote(eng)) })

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListCategoriesReturnsCatalog(t *testing.T) {
	w := perform(t, "GET", "/v1/quotes/categories", "",
		func(r *gin.Engine) { r.GET("/v1/quotes/categories", ListCategories) })

	require.Equal(t, http.StatusOK, w.Code)

	// The general bucket is a routing fallback, not a browsable
	// collection, so the catalog lists only the four emotional
	// categories.
	body := decodeBody(t, w)
	assert.Equal(t, float64(4), body["count"])

	categories, ok := body["categories"].([]any)
	require.True(t, ok, "categories should be an array")
	require.Len(t, categories, 4)

	first, ok := categories[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "motivational", first["name"])
	assert.Equal(t, "💪", first["emoji"])
	assert.NotEmpty(t, first["description"])
}
