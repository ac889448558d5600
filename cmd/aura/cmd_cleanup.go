// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/auraquotes/aura/pkg/ux"
	"github.com/auraquotes/aura/services/engine"
)

// runCleanup runs one idle-session cleanup cycle against the local
// stores. A running engine does this on its own interval; the command
// exists for cron jobs and for reclaiming space while the engine is
// down.
func runCleanup(cmd *cobra.Command, args []string) {
	eng, err := engine.New(engine.LoadConfig())
	if err != nil {
		log.Fatalf("Failed to construct engine: %v", err)
	}
	defer eng.Close()

	result, err := eng.Cleaner().RunNow(context.Background())
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}

	ux.Success("cleanup complete")
	ux.KeyValues([][2]string{
		{"sessions found", strconv.Itoa(result.SessionsFound)},
		{"sessions deleted", strconv.Itoa(result.SessionsDeleted)},
		{"duration", result.Duration().Round(time.Millisecond).String()},
	})
	for _, msg := range result.Errors {
		ux.Warning(msg)
	}
}
