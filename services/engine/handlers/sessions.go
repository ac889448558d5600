// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/auraquotes/aura/services/engine/session"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// ListSessions serves GET /v1/sessions.
func ListSessions(eng Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ListSessions")
		defer span.End()

		limit := queryInt(c, "limit", defaultSessionLimit, maxSessionLimit)
		sessions, err := eng.ListSessions(ctx, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to list sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"sessions": sessions,
			"count":    len(sessions),
		})
	}
}

// DeleteSession serves DELETE /v1/sessions/:sessionId. Deletion
// cascades to the session's turns and its conversation vectors.
func DeleteSession(eng Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "DeleteSession")
		defer span.End()

		sessionID := c.Param("sessionId")
		if err := eng.DeleteSession(ctx, sessionID); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to delete session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}

		slog.Info("Session deleted via API", "session_id", sessionID)
		c.JSON(http.StatusOK, gin.H{
			"status":             "success",
			"deleted_session_id": sessionID,
		})
	}
}

// queryInt parses an integer query parameter with a default and a cap.
func queryInt(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return def
	}
	if val > max {
		return max
	}
	return val
}
