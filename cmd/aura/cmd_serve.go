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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/auraquotes/aura/pkg/logging"
	"github.com/auraquotes/aura/services/engine"
)

// runServe boots the engine in the foreground and blocks until SIGINT
// or SIGTERM.
func runServe(cmd *cobra.Command, args []string) {
	// Server logs go to the console as JSON for collection instead of
	// the per-user file the interactive commands use.
	logger := logging.New(logging.Config{
		Level:   logLevelFromEnv(),
		Service: "aura-engine",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := engine.LoadConfig()
	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("Failed to construct engine: %v", err)
	}
	defer eng.Close()

	// Set up graceful shutdown with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutdown signal received")
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		log.Fatalf("Engine error: %v", err)
	}
}
