// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/auraquotes/aura/pkg/logging"
	"github.com/auraquotes/aura/pkg/ux"
)

// --- Global Command Variables ---
var (
	plainOutput     bool
	serverURL       string // CLI override for the engine base URL
	quotesSource    string
	promptsSource   string
	credentialsFile string
	skipMirror      bool
	quoteLimit      int
	sessionLimit    int

	cliLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "aura",
		Short: "A cli to run and talk to the Aura quote engine",
		Long: `Aura recommends quotes that match how you feel. The cli runs the
				engine, manages its quote corpus and sessions, and opens an
				interactive chat against a running instance.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if plainOutput {
				ux.SetPlain(true)
			} else {
				ux.InitPlain()
			}
			// File logging keeps the console free for ux output. The serve
			// command replaces this with a console JSON logger.
			cliLogger = logging.New(logging.Config{
				Level:   logLevelFromEnv(),
				LogDir:  "~/.aura/logs",
				Service: "aura",
				Quiet:   true,
			})
			slog.SetDefault(cliLogger.Slog())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cliLogger != nil {
				cliLogger.Close()
			}
		},
	}

	// --- Engine ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the Aura engine HTTP server",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Corpus ---
	corpusCmd = &cobra.Command{
		Use:   "corpus",
		Short: "Manage the quote corpus",
	}
	corpusLoadCmd = &cobra.Command{
		Use:   "load",
		Short: "Seed the quote store and mirror it into the vector index",
		Run:   runCorpusLoad, // Defined in cmd_corpus.go
	}
	corpusStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show quote counts per category",
		Run:   runCorpusStats, // Defined in cmd_corpus.go
	}

	// --- Sessions ---
	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions idle past their TTL",
		Run:   runCleanup, // Defined in cmd_cleanup.go
	}
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}
	sessionListCmd = &cobra.Command{
		Use:   "list",
		Short: "List conversation sessions on a running engine",
		Run:   runSessionList, // Defined in cmd_session.go
	}
	sessionDeleteCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a specific conversation session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionDelete, // Defined in cmd_session.go
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat with a running engine",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}

	// --- Quotes ---
	quotesCmd = &cobra.Command{
		Use:   "quotes [category]",
		Short: "Browse quote categories on a running engine",
		Args:  cobra.MaximumNArgs(1),
		Run:   runQuotes, // Defined in cmd_quotes.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Plain output for scripts: no colors, no spinners, stable prefixes")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Engine base URL (default AURA_SERVER_URL or http://localhost:7171)")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(corpusCmd)
	corpusCmd.AddCommand(corpusLoadCmd)
	corpusCmd.AddCommand(corpusStatsCmd)
	corpusLoadCmd.Flags().StringVar(&quotesSource, "quotes", "",
		"Quote seed source: local path or gs://bucket/object (default embedded seed)")
	corpusLoadCmd.Flags().StringVar(&promptsSource, "prompts", "",
		"Training prompt seed source: local path or gs://bucket/object")
	corpusLoadCmd.Flags().StringVar(&credentialsFile, "credentials", "",
		"Service account key file for gs:// sources")
	corpusLoadCmd.Flags().BoolVar(&skipMirror, "skip-mirror", false,
		"Seed the store only, skip embedding into the vector index")

	rootCmd.AddCommand(cleanupCmd)

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionListCmd.Flags().IntVar(&sessionLimit, "limit", 50, "Maximum sessions to list")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("resume", "", "Resume a conversation using a specific session ID.")

	rootCmd.AddCommand(quotesCmd)
	quotesCmd.Flags().IntVar(&quoteLimit, "limit", 10, "Maximum quotes to fetch")
}
