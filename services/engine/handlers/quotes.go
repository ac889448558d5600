// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

const (
	defaultQuoteLimit = 10
	maxQuoteLimit     = 50
)

// CreateQuoteRequest is the admin insert payload. The JSON field names
// match the quote export format, so a seed file entry posts as is.
type CreateQuoteRequest struct {
	Text     string `json:"quote" binding:"required"`
	Author   string `json:"author" binding:"required"`
	Category string `json:"category" binding:"required"`
}

// GetQuotesByCategory serves GET /v1/quotes/:category.
func GetQuotesByCategory(eng Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetQuotesByCategory")
		defer span.End()

		raw := c.Param("category")
		category, ok := datatypes.ParseCategory(raw)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
			return
		}

		limit := queryInt(c, "limit", defaultQuoteLimit, maxQuoteLimit)
		quotes, err := eng.QuotesByCategory(ctx, category, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to fetch quotes", "category", category, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch quotes"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"category": category,
			"quotes":   quotes,
			"count":    len(quotes),
		})
	}
}

// CreateQuote serves POST /v1/quotes.
func CreateQuote(eng Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CreateQuote")
		defer span.End()

		var req CreateQuoteRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Warn("Failed to parse quote request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		category, ok := datatypes.ParseCategory(req.Category)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
			return
		}

		stored, err := eng.AddQuote(ctx, datatypes.Quote{
			Text:     req.Text,
			Author:   req.Author,
			Category: category,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to store quote", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store quote"})
			return
		}

		slog.Info("Quote added via API", "quote_id", stored.ID, "category", stored.Category)
		c.JSON(http.StatusCreated, stored)
	}
}

// ListCategories serves GET /v1/quotes/categories.
func ListCategories(c *gin.Context) {
	catalog := datatypes.CategoryCatalog()
	c.JSON(http.StatusOK, gin.H{
		"categories": catalog,
		"count":      len(catalog),
	})
}
