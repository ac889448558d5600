// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/auraquotes/aura/pkg/ux"
	"github.com/auraquotes/aura/services/engine/datatypes"
)

// runSessionList prints the sessions a running engine currently holds,
// most recently active first.
func runSessionList(cmd *cobra.Command, args []string) {
	url := fmt.Sprintf("%s/v1/sessions?limit=%d", getServerBaseURL(), sessionLimit)

	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("Failed to reach engine: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Engine returned an error: %s", resp.Status)
	}

	var result struct {
		Sessions []datatypes.Session `json:"sessions"`
		Count    int                 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("Failed to parse engine response: %v", err)
	}

	if len(result.Sessions) == 0 {
		ux.Info("no active sessions")
		return
	}

	ux.Title("Sessions")
	for _, s := range result.Sessions {
		idle := time.Since(s.LastActive).Round(time.Minute)
		ux.Info(fmt.Sprintf("%s  idle %s", s.ID, idle))
	}
}

// runSessionDelete removes one session and its conversation log.
func runSessionDelete(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	url := fmt.Sprintf("%s/v1/sessions/%s", getServerBaseURL(), sessionID)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		log.Fatalf("Failed to create delete request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to reach engine: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Fatalf("Session %s not found", sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Engine returned an error: %s", resp.Status)
	}

	ux.Success(fmt.Sprintf("deleted session %s", sessionID))
}
