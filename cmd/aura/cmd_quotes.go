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

	"github.com/spf13/cobra"

	"github.com/auraquotes/aura/pkg/ux"
	"github.com/auraquotes/aura/services/engine/datatypes"
)

// runQuotes browses the corpus over the engine's read API. Without an
// argument it lists the categories; with one it fetches quotes from it.
func runQuotes(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		listCategories()
		return
	}
	fetchQuotes(args[0])
}

func listCategories() {
	resp, err := http.Get(getServerBaseURL() + "/v1/quotes/categories")
	if err != nil {
		log.Fatalf("Failed to reach engine: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Engine returned an error: %s", resp.Status)
	}

	var result struct {
		Categories []datatypes.CategoryInfo `json:"categories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("Failed to parse engine response: %v", err)
	}

	ux.Title("Categories")
	for _, info := range result.Categories {
		line := fmt.Sprintf("%s %s  %s", info.Emoji, info.Name, info.Description)
		if ux.Plain() {
			line = string(info.Name)
		}
		ux.Info(line)
	}
}

func fetchQuotes(category string) {
	url := fmt.Sprintf("%s/v1/quotes/%s?limit=%d", getServerBaseURL(), category, quoteLimit)

	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("Failed to reach engine: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Fatalf("Category %q not found. Run 'aura quotes' to list categories.", category)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Engine returned an error: %s", resp.Status)
	}

	var result struct {
		Category string            `json:"category"`
		Quotes   []datatypes.Quote `json:"quotes"`
		Count    int               `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("Failed to parse engine response: %v", err)
	}

	if len(result.Quotes) == 0 {
		ux.Warning(fmt.Sprintf("no quotes in %s yet, run 'aura corpus load'", category))
		return
	}

	for _, q := range result.Quotes {
		printQuote(q)
	}
}

func printQuote(q datatypes.Quote) {
	if ux.Plain() {
		ux.Info(fmt.Sprintf("%s | %s | %s", q.Category, q.Text, q.Author))
		return
	}

	style := ux.CategoryStyle(string(q.Category))
	line := fmt.Sprintf("❝ %s ❞", q.Text)
	if q.Author != "" {
		line += "\n" + ux.Styles.Muted.Render("— "+q.Author)
	}
	fmt.Println(style.Render(line))
	fmt.Println()
}
