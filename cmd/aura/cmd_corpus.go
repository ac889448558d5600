// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/auraquotes/aura/pkg/ux"
	"github.com/auraquotes/aura/services/engine"
	"github.com/auraquotes/aura/services/engine/corpus"
	"github.com/auraquotes/aura/services/engine/datatypes"
)

// runCorpusLoad seeds the quote store from the configured source and
// mirrors it into the vector index. Embedding a full corpus can take a
// while, so Ctrl-C interrupts cleanly.
func runCorpusLoad(cmd *cobra.Command, args []string) {
	cfg := engine.LoadConfig()
	if quotesSource != "" {
		cfg.Loader.QuotesSource = quotesSource
	}
	if promptsSource != "" {
		cfg.Loader.PromptsSource = promptsSource
	}
	if credentialsFile != "" {
		cfg.Loader.GCSCredentialsFile = credentialsFile
	}
	if skipMirror {
		// Without an index wired the loader seeds the store only.
		cfg.WeaviateURL = ""
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("Failed to construct engine: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var report corpus.LoadReport
	err = ux.WithSpinner("Loading corpus", func() error {
		var loadErr error
		report, loadErr = eng.Loader().Load(ctx)
		return loadErr
	})
	if err != nil {
		log.Fatalf("Corpus load failed: %v", err)
	}

	ux.Success("corpus loaded")
	ux.KeyValues([][2]string{
		{"quotes seeded", strconv.Itoa(report.QuotesSeeded)},
		{"quotes indexed", strconv.Itoa(report.QuotesIndexed)},
		{"prompts indexed", strconv.Itoa(report.PromptsIndexed)},
	})
}

// runCorpusStats reads counts straight from the quote database; it does
// not need a running engine.
func runCorpusStats(cmd *cobra.Command, args []string) {
	cfg := engine.LoadConfig()
	store, err := corpus.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open quote store at %q: %v", cfg.DBPath, err)
	}
	defer store.Close()

	total, err := store.Count()
	if err != nil {
		log.Fatalf("Failed to count quotes: %v", err)
	}
	byCategory, err := store.CountByCategory()
	if err != nil {
		log.Fatalf("Failed to count quotes by category: %v", err)
	}

	ux.Title("Corpus")
	pairs := [][2]string{{"total quotes", strconv.Itoa(total)}}
	for _, info := range datatypes.CategoryCatalog() {
		label := info.Emoji + " " + string(info.Name)
		if ux.Plain() {
			label = string(info.Name)
		}
		pairs = append(pairs, [2]string{label, strconv.Itoa(byCategory[info.Name])})
		delete(byCategory, info.Name)
	}

	// Anything left is outside the browsable catalog, the general
	// routing bucket included.
	rest := make([]datatypes.Category, 0, len(byCategory))
	for category := range byCategory {
		rest = append(rest, category)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, category := range rest {
		pairs = append(pairs, [2]string{string(category), strconv.Itoa(byCategory[category])})
	}
	ux.KeyValues(pairs)

	if total == 0 {
		ux.Warning(fmt.Sprintf("quote store at %q is empty, run 'aura corpus load'", cfg.DBPath))
	}
}
