// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

// HTTPChatService implements ChatService against a running engine.
// One instance serves one conversation.
type HTTPChatService struct {
	baseURL string
	client  *http.Client
}

var _ ChatService = (*HTTPChatService)(nil)

// NewHTTPChatService returns a client for the engine at baseURL.
func NewHTTPChatService(baseURL string) *HTTPChatService {
	return &HTTPChatService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// SendMessage posts one turn and returns the engine's reply. The
// session ID may be empty on the first turn; the engine mints one and
// returns it in the response.
func (s *HTTPChatService) SendMessage(ctx context.Context, sessionID, message string) (datatypes.TurnResponse, error) {
	body, err := json.Marshal(datatypes.TurnRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return datatypes.TurnResponse{}, fmt.Errorf("encoding turn request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return datatypes.TurnResponse{}, fmt.Errorf("building turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return datatypes.TurnResponse{}, fmt.Errorf("reaching engine at %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return datatypes.TurnResponse{}, apiError(resp)
	}

	var turn datatypes.TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		return datatypes.TurnResponse{}, fmt.Errorf("decoding turn response: %w", err)
	}
	return turn, nil
}

// History fetches the conversation log for a session. The chat command
// uses it to verify a --resume target before the first prompt.
func (s *HTTPChatService) History(ctx context.Context, sessionID string) (datatypes.HistoryResponse, error) {
	url := fmt.Sprintf("%s/v1/chat/history/%s", s.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return datatypes.HistoryResponse{}, fmt.Errorf("building history request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return datatypes.HistoryResponse{}, fmt.Errorf("reaching engine at %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return datatypes.HistoryResponse{}, apiError(resp)
	}

	var history datatypes.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return datatypes.HistoryResponse{}, fmt.Errorf("decoding history response: %w", err)
	}
	return history, nil
}

// Close releases idle connections.
func (s *HTTPChatService) Close() {
	s.client.CloseIdleConnections()
}

// apiError surfaces the engine's JSON error body, falling back to the
// bare HTTP status.
func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("engine returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("engine returned %s", resp.Status)
}
