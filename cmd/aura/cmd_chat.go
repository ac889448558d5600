// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// runChatCommand opens an interactive conversation against a running
// engine.
func runChatCommand(cmd *cobra.Command, args []string) {
	baseURL := getServerBaseURL()
	resumeID, _ := cmd.Flags().GetString("resume")

	runner := NewChatRunner(ChatRunnerConfig{
		BaseURL:   baseURL,
		SessionID: resumeID,
	})
	defer runner.Close()

	// Set up graceful shutdown with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Chat error: %v", err)
	}
}
