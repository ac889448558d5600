// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package corpus

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

// defaultQuotes is the embedded seed corpus, used when no external
// quote source is configured.
//
//go:embed seed/quotes.yaml
var defaultQuotes []byte

// defaultTrainingPrompts is the embedded labeled prompt set for the
// classifier's retrieval pass.
//
//go:embed seed/training_prompts.yaml
var defaultTrainingPrompts []byte

type quoteSeedFile struct {
	Quotes []struct {
		Category string `yaml:"category"`
		Quote    string `yaml:"quote"`
		Author   string `yaml:"author"`
	} `yaml:"quotes"`
}

type promptSeedFile struct {
	Prompts []datatypes.TrainingPrompt `yaml:"prompts"`
}

// ParseQuoteSeed parses a quote seed file and validates every entry.
func ParseQuoteSeed(raw []byte) ([]datatypes.Quote, error) {
	var file quoteSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the quote seed: %w", err)
	}
	if len(file.Quotes) == 0 {
		return nil, fmt.Errorf("quote seed contains no quotes")
	}

	quotes := make([]datatypes.Quote, 0, len(file.Quotes))
	for i, entry := range file.Quotes {
		category, known := datatypes.ParseCategory(entry.Category)
		if !known {
			return nil, fmt.Errorf("quote seed entry %d: unknown category %q", i, entry.Category)
		}
		q := datatypes.Quote{
			Text:     entry.Quote,
			Author:   entry.Author,
			Category: category,
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("quote seed entry %d: %w", i, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// ParsePromptSeed parses a training prompt seed file and validates
// every entry.
func ParsePromptSeed(raw []byte) ([]datatypes.TrainingPrompt, error) {
	var file promptSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the prompt seed: %w", err)
	}
	if len(file.Prompts) == 0 {
		return nil, fmt.Errorf("prompt seed contains no prompts")
	}

	for i := range file.Prompts {
		p := &file.Prompts[i]
		if strings.TrimSpace(p.Prompt) == "" {
			return nil, fmt.Errorf("prompt seed entry %d: empty prompt", i)
		}
		category, known := datatypes.ParseCategory(string(p.Category))
		if !known {
			return nil, fmt.Errorf("prompt seed entry %d: unknown category %q", i, p.Category)
		}
		p.Category = category
		if p.Confidence < 0 || p.Confidence > 1 {
			return nil, fmt.Errorf("prompt seed entry %d: confidence %f out of range [0, 1]",
				i, p.Confidence)
		}
	}
	return file.Prompts, nil
}

// readSeedSource resolves a seed source path to its bytes.
//
// # Inputs
//
//   - ctx: Context for remote reads.
//   - source: Empty for the embedded default, a gs://bucket/object URI
//     for Cloud Storage, or a local file path.
//   - embedded: The embedded fallback bytes.
//   - credentialsFile: Optional service account key for gs:// sources.
//     Empty uses application default credentials.
func readSeedSource(ctx context.Context, source string, embedded []byte, credentialsFile string) ([]byte, error) {
	switch {
	case source == "":
		return embedded, nil
	case strings.HasPrefix(source, "gs://"):
		return readGCSObject(ctx, source, credentialsFile)
	default:
		raw, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading seed file %s: %w", source, err)
		}
		return raw, nil
	}
}

// readGCSObject downloads one object from Cloud Storage.
func readGCSObject(ctx context.Context, uri, credentialsFile string) ([]byte, error) {
	bucket, object, err := splitGCSURI(uri)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	defer client.Close()

	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", bucket, object, err)
	}
	return raw, nil
}

// splitGCSURI splits gs://bucket/path/to/object into bucket and object.
func splitGCSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	bucket, object, found := strings.Cut(trimmed, "/")
	if !found || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed GCS URI %q, want gs://bucket/object", uri)
	}
	return bucket, object, nil
}
