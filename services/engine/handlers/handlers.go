// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers holds the gin handlers for the engine's HTTP API.
// Handlers stay thin: parse, delegate to the engine, translate the
// result. All behavior lives behind the Engine interface.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

var tracer = otel.Tracer("aura.engine.handlers")

// Engine is the slice of the engine the HTTP layer needs.
type Engine interface {
	// HandleTurn processes one chat turn end to end.
	HandleTurn(ctx context.Context, req datatypes.TurnRequest) (datatypes.TurnResponse, error)

	// GetHistory returns a session's turn log with flow stats.
	GetHistory(ctx context.Context, sessionID string) (datatypes.HistoryResponse, error)

	// ListSessions returns known sessions, most recently active first.
	ListSessions(ctx context.Context, limit int) ([]datatypes.Session, error)

	// DeleteSession removes a session and everything it owns.
	DeleteSession(ctx context.Context, sessionID string) error

	// QuotesByCategory returns up to limit quotes, best ranked first.
	QuotesByCategory(ctx context.Context, category datatypes.Category, limit int) ([]datatypes.Quote, error)

	// AddQuote stores a new quote and mirrors it into the index.
	AddQuote(ctx context.Context, q datatypes.Quote) (datatypes.Quote, error)
}

// HealthCheck reports liveness. It deliberately checks nothing
// downstream: the engine serves degraded turns without its backends,
// so a reachable process is a healthy one.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "aura-engine",
	})
}
