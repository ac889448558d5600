// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compose

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Bucket names an intensity band for template selection.
type Bucket string

const (
	BucketCalm    Bucket = "calm"
	BucketSteady  Bucket = "steady"
	BucketIntense Bucket = "intense"
)

// Bucket boundaries over the [0, 1] intensity range. Calm covers
// everything below calmCeiling, intense everything at steadyCeiling
// and above.
const (
	calmCeiling   = 0.4
	steadyCeiling = 0.7
)

// BucketFor maps an emotional intensity onto its template bucket.
func BucketFor(intensity float64) Bucket {
	switch {
	case intensity < calmCeiling:
		return BucketCalm
	case intensity < steadyCeiling:
		return BucketSteady
	default:
		return BucketIntense
	}
}

// Templates is a validated, immutable reply template set.
//
// # Description
//
// Acknowledgment templates are keyed by (category, intensity bucket)
// and may hold several variants; Pick rotates between them. A pair
// with no variants is a deliberate gap: the composer generates for
// those turns instead. The generic line backs every failure path and
// is guaranteed non-empty.
type Templates struct {
	generic string
	acks    map[datatypes.Category]map[Bucket][]string
}

// templatesFile is the YAML shape of a template set.
type templatesFile struct {
	Generic         string                         `yaml:"generic"`
	Acknowledgments map[string]map[string][]string `yaml:"acknowledgments"`
}

// LoadTemplates parses and validates the embedded template set.
func LoadTemplates() (*Templates, error) {
	return loadTemplatesBytes(defaultTemplates)
}

// LoadTemplatesFile parses and validates a template set from disk.
// Used for operator overrides of the embedded replies.
func LoadTemplatesFile(path string) (*Templates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file %s: %w", path, err)
	}
	return loadTemplatesBytes(raw)
}

func loadTemplatesBytes(raw []byte) (*Templates, error) {
	var file templatesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	if strings.TrimSpace(file.Generic) == "" {
		return nil, fmt.Errorf("templates: generic reply must not be empty")
	}

	acks := make(map[datatypes.Category]map[Bucket][]string, len(file.Acknowledgments))
	for rawCategory, buckets := range file.Acknowledgments {
		category, known := datatypes.ParseCategory(rawCategory)
		if !known {
			return nil, fmt.Errorf("templates: unknown category %q", rawCategory)
		}

		byBucket := make(map[Bucket][]string, len(buckets))
		for rawBucket, variants := range buckets {
			bucket := Bucket(rawBucket)
			switch bucket {
			case BucketCalm, BucketSteady, BucketIntense:
			default:
				return nil, fmt.Errorf("templates: category %s has unknown bucket %q",
					category, rawBucket)
			}
			if len(variants) == 0 {
				return nil, fmt.Errorf("templates: category %s bucket %s has no variants",
					category, bucket)
			}
			for i, variant := range variants {
				if strings.TrimSpace(variant) == "" {
					return nil, fmt.Errorf("templates: category %s bucket %s variant %d is empty",
						category, bucket, i)
				}
			}
			byBucket[bucket] = variants
		}
		acks[category] = byBucket
	}

	return &Templates{generic: file.Generic, acks: acks}, nil
}

// Pick returns the acknowledgment for (category, bucket), or false
// when the pair has none. seed rotates between variants so successive
// turns in a session do not repeat the same line; callers pass a
// turn-derived counter.
func (t *Templates) Pick(category datatypes.Category, bucket Bucket, seed int) (string, bool) {
	variants := t.acks[category][bucket]
	if len(variants) == 0 {
		return "", false
	}
	if seed < 0 {
		seed = -seed
	}
	return variants[seed%len(variants)], true
}

// Fallback returns the best template for the pair, degrading to the
// generic empathetic line when the pair has none.
func (t *Templates) Fallback(category datatypes.Category, bucket Bucket, seed int) string {
	if text, ok := t.Pick(category, bucket, seed); ok {
		return text
	}
	return t.generic
}

// Generic returns the fixed generic reply.
func (t *Templates) Generic() string {
	return t.generic
}
