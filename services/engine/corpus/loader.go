// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package corpus

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/auraquotes/aura/services/engine/index"
)

var tracer = otel.Tracer("aura.engine.corpus")

// LoaderConfig selects seed sources and index mirroring parallelism.
type LoaderConfig struct {
	// QuotesSource is the quote seed location: empty for the embedded
	// default, a gs://bucket/object URI, or a local file path.
	QuotesSource string

	// PromptsSource is the training prompt seed location, same forms
	// as QuotesSource.
	PromptsSource string

	// GCSCredentialsFile is an optional service account key used for
	// gs:// sources. Empty uses application default credentials.
	GCSCredentialsFile string

	// IndexWorkers is how many records are embedded and inserted
	// concurrently while mirroring.
	IndexWorkers int
}

// DefaultLoaderConfig returns production defaults.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{IndexWorkers: 4}
}

// LoadReport summarizes what a corpus load did.
type LoadReport struct {
	QuotesSeeded   int `json:"quotes_seeded"`
	QuotesIndexed  int `json:"quotes_indexed"`
	PromptsIndexed int `json:"prompts_indexed"`
}

// Loader seeds the quote store and mirrors the corpus into the vector
// index at startup.
//
// # Description
//
// Load is the one startup step allowed to abort the process: a service
// that cannot load its corpus has nothing to serve. Everything after
// startup degrades instead of failing.
type Loader struct {
	store  *Store
	idx    index.Index
	config LoaderConfig
}

// NewLoader builds a loader. idx may be nil; the corpus then lives in
// SQLite only and the classifier's retrieval pass stays dark.
func NewLoader(store *Store, idx index.Index, config LoaderConfig) (*Loader, error) {
	if store == nil {
		return nil, fmt.Errorf("loader requires a quote store")
	}
	if config.IndexWorkers < 1 {
		config.IndexWorkers = DefaultLoaderConfig().IndexWorkers
	}
	return &Loader{store: store, idx: idx, config: config}, nil
}

// Load seeds the quote store when empty and mirrors quotes and
// training prompts into the vector index when the index is empty.
// Both steps are idempotent across restarts.
func (l *Loader) Load(ctx context.Context) (LoadReport, error) {
	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()

	var report LoadReport

	count, err := l.store.Count()
	if err != nil {
		return report, fmt.Errorf("counting quotes: %w", err)
	}

	if count == 0 {
		seeded, err := l.seedStore(ctx)
		if err != nil {
			return report, err
		}
		report.QuotesSeeded = seeded
		count = seeded
	}

	if l.idx == nil {
		slog.Warn("Vector index not configured, corpus will not be mirrored")
		return report, nil
	}

	if err := l.idx.EnsureSchema(ctx); err != nil {
		return report, fmt.Errorf("ensuring index schema: %w", err)
	}

	indexed, err := l.idx.Count(ctx, index.KindQuote)
	if err != nil {
		return report, fmt.Errorf("counting indexed quotes: %w", err)
	}
	if indexed > 0 {
		slog.Info("Vector index already populated, skipping mirror",
			"indexed_quotes", indexed)
		return report, nil
	}

	report.QuotesIndexed, report.PromptsIndexed, err = l.Mirror(ctx)
	if err != nil {
		return report, err
	}

	slog.Info("Corpus load complete",
		"quotes", count,
		"quotes_indexed", report.QuotesIndexed,
		"prompts_indexed", report.PromptsIndexed)
	return report, nil
}

// seedStore loads the quote seed and inserts every quote.
func (l *Loader) seedStore(ctx context.Context) (int, error) {
	raw, err := readSeedSource(ctx, l.config.QuotesSource, defaultQuotes, l.config.GCSCredentialsFile)
	if err != nil {
		return 0, fmt.Errorf("reading quote seed: %w", err)
	}
	quotes, err := ParseQuoteSeed(raw)
	if err != nil {
		return 0, err
	}

	for _, q := range quotes {
		if _, err := l.store.Insert(q); err != nil {
			return 0, fmt.Errorf("seeding quote store: %w", err)
		}
	}

	slog.Info("Seeded quote store", "quotes", len(quotes))
	return len(quotes), nil
}

// Mirror pushes every stored quote and every training prompt into the
// vector index. The caller is responsible for not mirroring twice; use
// it after a fresh schema or an index reset.
func (l *Loader) Mirror(ctx context.Context) (quotesIndexed, promptsIndexed int, err error) {
	ctx, span := tracer.Start(ctx, "Mirror")
	defer span.End()

	total, err := l.store.Count()
	if err != nil {
		return 0, 0, fmt.Errorf("counting quotes: %w", err)
	}
	quotes, err := l.store.All(total)
	if err != nil {
		return 0, 0, fmt.Errorf("listing quotes: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.IndexWorkers)

	for _, q := range quotes {
		g.Go(func() error {
			_, err := l.idx.Insert(gCtx, index.Record{
				ID:       q.ID,
				Kind:     index.KindQuote,
				Text:     fmt.Sprintf("%s - %s", q.Text, q.Author),
				Category: q.Category,
				Quality:  Quality(q.Text),
				Author:   q.Author,
			})
			if err != nil {
				return fmt.Errorf("indexing quote %s: %w", q.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	raw, err := readSeedSource(ctx, l.config.PromptsSource, defaultTrainingPrompts, l.config.GCSCredentialsFile)
	if err != nil {
		return len(quotes), 0, fmt.Errorf("reading prompt seed: %w", err)
	}
	prompts, err := ParsePromptSeed(raw)
	if err != nil {
		return len(quotes), 0, err
	}

	g, gCtx = errgroup.WithContext(ctx)
	g.SetLimit(l.config.IndexWorkers)

	for _, p := range prompts {
		g.Go(func() error {
			_, err := l.idx.Insert(gCtx, index.Record{
				Kind:     index.KindTrainingPrompt,
				Text:     p.Prompt,
				Category: p.Category,
				Quality:  p.Confidence,
			})
			if err != nil {
				return fmt.Errorf("indexing training prompt %q: %w", p.Prompt, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(quotes), 0, err
	}

	return len(quotes), len(prompts), nil
}
