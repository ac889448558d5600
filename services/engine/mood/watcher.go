// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mood

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// LexiconWatcher reloads a lexicon override file when it changes.
//
// # Description
//
// Watches the directory containing the override file, because most
// editors replace files atomically (write to a temp file, then rename)
// and a watch on the file itself would be lost on the first save.
// On each write or create of the target file the lexicon is reloaded
// and, on success, handed to the callback. A file that fails to load
// keeps the previous lexicon active.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type LexiconWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Lexicon)
}

// NewLexiconWatcher creates a watcher for lexicon override changes.
//
// # Inputs
//
//   - path: Path to the override lexicon YAML file.
//   - onReload: Callback invoked with each successfully loaded lexicon.
//     Typically Classifier.SwapLexicon.
//
// # Outputs
//
//   - *LexiconWatcher: Ready-to-start watcher.
//   - error: Non-nil if watcher creation fails.
func NewLexiconWatcher(path string, onReload func(*Lexicon)) (*LexiconWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &LexiconWatcher{
		path:     path,
		watcher:  watcher,
		onReload: onReload,
	}, nil
}

// Start begins watching for lexicon changes.
//
// # Description
//
// Blocks until the context is cancelled. Should be run in a goroutine.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//
// # Example
//
//	watcher, _ := mood.NewLexiconWatcher(path, classifier.SwapLexicon)
//	go watcher.Start(ctx)
func (w *LexiconWatcher) Start(ctx context.Context) {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		slog.Warn("Failed to watch lexicon directory",
			"dir", dir,
			"error", err)
		return
	}

	slog.Debug("Started watching lexicon override",
		"path", w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Lexicon watcher error",
				"error", err)

		case <-ctx.Done():
			slog.Debug("Lexicon watcher stopping")
			return
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *LexiconWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}

	lex, err := LoadLexiconFile(w.path)
	if err != nil {
		slog.Warn("Lexicon override failed to load, keeping previous",
			"path", w.path,
			"error", err)
		return
	}

	slog.Info("Lexicon override reloaded",
		"path", w.path,
		"categories", len(lex.Categories))

	if w.onReload != nil {
		w.onReload(lex)
	}
}

// Stop stops the watcher.
//
// # Description
//
// Stops watching and releases resources. Safe to call multiple times.
func (w *LexiconWatcher) Stop() error {
	return w.watcher.Close()
}
