// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/auraquotes/aura/pkg/logging"
)

const (
	defaultServerHost = "localhost"
	defaultServerPort = 7171
)

// getServerBaseURL resolves the engine endpoint for commands that talk
// to a running instance.
func getServerBaseURL() string {
	// 1. Priority: --server flag
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	// 2. Environment variable (used by tests and container overrides)
	if url := os.Getenv("AURA_SERVER_URL"); url != "" {
		return strings.TrimRight(url, "/")
	}
	// 3. Default: standard host/port
	return fmt.Sprintf("http://%s:%d", defaultServerHost, defaultServerPort)
}

func logLevelFromEnv() logging.Level {
	switch strings.ToLower(os.Getenv("AURA_LOG_LEVEL")) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
