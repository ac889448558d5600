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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/session"
)

func TestListSessionsReturnsSessions(t *testing.T) {
	now := time.Now().UTC()
	eng := &mockEngine{
		Sessions: []datatypes.Session{
			{ID: "sess-1", CreatedAt: now.Add(-time.Hour), LastActive: now},
			{ID: "sess-2", CreatedAt: now.Add(-2 * time.Hour), LastActive: now.Add(-time.Hour)},
		},
	}

	w := perform(t, "GET", "/v1/sessions", "",
		func(r *gin.Engine) { r.GET("/v1/sessions", ListSessions(eng)) })

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultSessionLimit, eng.LastLimit)

	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["count"])
	sessions, ok := body["sessions"].([]any)
	require.True(t, ok, "sessions should be an array")
	assert.Len(t, sessions, 2)
}

func TestListSessionsLimitParameter(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"explicit limit", "?limit=5", 5},
		{"missing limit uses default", "", defaultSessionLimit},
		{"invalid limit uses default", "?limit=abc", defaultSessionLimit},
		{"zero limit uses default", "?limit=0", defaultSessionLimit},
		{"oversized limit is capped", "?limit=99999", maxSessionLimit},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng := &mockEngine{}
			w := perform(t, "GET", "/v1/sessions"+tc.query, "",
				func(r *gin.Engine) { r.GET("/v1/sessions", ListSessions(eng)) })

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.want, eng.LastLimit)
		})
	}
}

func TestListSessionsStoreFailure(t *testing.T) {
	eng := &mockEngine{ListErr: fmt.Errorf("database is locked")}

	w := perform(t, "GET", "/v1/sessions", "",
		func(r *gin.Engine) { r.GET("/v1/sessions", ListSessions(eng)) })

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDeleteSessionSucceeds(t *testing.T) {
	eng := &mockEngine{}

	w := perform(t, "DELETE", "/v1/sessions/sess-42", "",
		func(r *gin.Engine) { r.DELETE("/v1/sessions/:sessionId", DeleteSession(eng)) })

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-42", eng.LastDeletedID)

	body := decodeBody(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "sess-42", body["deleted_session_id"])
}

func TestDeleteSessionUnknownSession(t *testing.T) {
	eng := &mockEngine{DeleteErr: session.ErrSessionNotFound}

	w := perform(t, "DELETE", "/v1/sessions/nope", "",
		func(r *gin.Engine) { r.DELETE("/v1/sessions/:sessionId", DeleteSession(eng)) })

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSessionStoreFailure(t *testing.T) {
	eng := &mockEngine{DeleteErr: fmt.Errorf("database is locked")}

	w := perform(t, "DELETE", "/v1/sessions/sess-42", "",
		func(r *gin.Engine) { r.DELETE("/v1/sessions/:sessionId", DeleteSession(eng)) })

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
