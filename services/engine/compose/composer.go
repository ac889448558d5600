// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compose turns one dispatched turn into the user-facing reply.
//
// # Description
//
// Two routes produce the reply text. The template route serves
// confident classifications from an embedded template set with bounded
// latency and no model call. The generated route assembles one prompt
// from the mood, retrieved exemplar responses, and recent history, and
// makes exactly one gateway call per turn. Generation failures degrade
// to a template, so the composed reply is always non-empty. Tool
// outputs (the support line, the best quote, the explore link) are
// appended to every route's text.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/index"
	"github.com/auraquotes/aura/services/engine/observability"
	"github.com/auraquotes/aura/services/engine/tools"
	"github.com/auraquotes/aura/services/llm"
)

var tracer = otel.Tracer("aura.engine.compose")

// errNoGateway degrades the generated route when no language model is
// configured.
var errNoGateway = errors.New("no language model gateway configured")

// Path identifies which composition route produced a reply.
type Path string

const (
	// PathTemplate is the fast deterministic route. No model call.
	PathTemplate Path = "template"

	// PathGenerated is the model route. One gateway call per turn.
	PathGenerated Path = "generated"

	// PathFallback is a template reply chosen after the model route
	// failed or returned empty text.
	PathFallback Path = "fallback"
)

// Exemplar ranking weights, applied to retrieved hits.
const (
	similarityWeight = 0.6
	qualityWeight    = 0.4
)

// Config holds the composer's tunables.
type Config struct {
	// RoutingThreshold is the minimum mood confidence for the template
	// route. Below it the composer generates.
	RoutingThreshold float64

	// GenerateTimeout bounds the single gateway call per turn.
	GenerateTimeout time.Duration

	// HistoryWindow is how many recent turns the prompt includes.
	HistoryWindow int

	// ExemplarTopK is how many exemplar responses the prompt includes.
	ExemplarTopK int

	// ExemplarQualityFloor excludes low-quality records from the
	// exemplar set.
	ExemplarQualityFloor float64

	// Temperature is the sampling temperature for generation.
	Temperature float32
}

// DefaultConfig returns the documented default tunables.
func DefaultConfig() Config {
	return Config{
		RoutingThreshold:     0.3,
		GenerateTimeout:      8 * time.Second,
		HistoryWindow:        5,
		ExemplarTopK:         3,
		ExemplarQualityFloor: 0.5,
		Temperature:          0.7,
	}
}

// validateConfig corrects out-of-range values, warning about each one.
func validateConfig(config Config) Config {
	defaults := DefaultConfig()

	if config.RoutingThreshold <= 0 || config.RoutingThreshold > 1 {
		slog.Warn("Invalid RoutingThreshold config, using default",
			"provided", config.RoutingThreshold, "default", defaults.RoutingThreshold)
		config.RoutingThreshold = defaults.RoutingThreshold
	}
	if config.GenerateTimeout <= 0 {
		slog.Warn("Invalid GenerateTimeout config, using default",
			"provided", config.GenerateTimeout, "default", defaults.GenerateTimeout)
		config.GenerateTimeout = defaults.GenerateTimeout
	}
	if config.HistoryWindow < 1 {
		slog.Warn("Invalid HistoryWindow config, using default",
			"provided", config.HistoryWindow, "default", defaults.HistoryWindow)
		config.HistoryWindow = defaults.HistoryWindow
	}
	if config.ExemplarTopK < 1 {
		slog.Warn("Invalid ExemplarTopK config, using default",
			"provided", config.ExemplarTopK, "default", defaults.ExemplarTopK)
		config.ExemplarTopK = defaults.ExemplarTopK
	}
	if config.ExemplarQualityFloor < 0 || config.ExemplarQualityFloor > 1 {
		slog.Warn("Invalid ExemplarQualityFloor config, using default",
			"provided", config.ExemplarQualityFloor, "default", defaults.ExemplarQualityFloor)
		config.ExemplarQualityFloor = defaults.ExemplarQualityFloor
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		config.Temperature = defaults.Temperature
	}

	return config
}

// Reply is the composed user-facing response.
type Reply struct {
	// Text is the full reply, never empty.
	Text string

	// Path records which route produced it.
	Path Path
}

// Composer decides the reply route and produces the final text.
//
// # Thread Safety
//
// Composer is safe for concurrent use. The template set is swapped as
// a whole under a lock, never mutated in place.
type Composer struct {
	gateway llm.LLMClient
	idx     index.Index
	config  Config

	mu  sync.RWMutex
	tpl *Templates
}

// NewComposer builds a composer with the embedded template set.
//
// # Inputs
//
//   - gateway: Language model for the generated route. May be nil;
//     generation degrades to the template fallback.
//   - idx: Vector index for exemplar retrieval. May be nil; prompts
//     carry no examples.
//   - config: Tunables (use DefaultConfig() for defaults).
//
// # Outputs
//
//   - *Composer: Ready to compose.
//   - error: Non-nil only if the embedded template set fails to load,
//     which indicates a broken build.
func NewComposer(gateway llm.LLMClient, idx index.Index, config Config) (*Composer, error) {
	tpl, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading embedded templates: %w", err)
	}

	return &Composer{
		gateway: gateway,
		idx:     idx,
		config:  validateConfig(config),
		tpl:     tpl,
	}, nil
}

// Templates returns the active template set.
func (c *Composer) Templates() *Templates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tpl
}

// SwapTemplates atomically replaces the active template set. Used for
// operator overrides.
func (c *Composer) SwapTemplates(tpl *Templates) {
	if tpl == nil {
		return
	}
	c.mu.Lock()
	c.tpl = tpl
	c.mu.Unlock()
	slog.Info("Reply templates swapped", "categories", len(tpl.acks))
}

// Compose produces the reply for one dispatched turn.
//
// # Description
//
// Takes the template route when the mood confidence clears the routing
// threshold and a template exists for the (category, intensity bucket)
// pair; otherwise generates. A failed or empty generation falls back
// to a template, so the reply is always non-empty.
//
// # Inputs
//
//   - ctx: Context for cancellation. The gateway call additionally
//     runs under the configured GenerateTimeout.
//   - turn: The dispatched turn input (message and history).
//   - outcome: The dispatcher's result for the turn. Must be non-nil.
//
// # Outputs
//
//   - Reply: Non-empty text plus the route that produced it.
func (c *Composer) Compose(ctx context.Context, turn tools.TurnInput, outcome *tools.TurnResult) Reply {
	ctx, span := tracer.Start(ctx, "Compose")
	defer span.End()

	mood := outcome.Mood
	bucket := BucketFor(mood.Intensity)
	seed := len(turn.History)
	tpl := c.Templates()

	if mood.Confidence >= c.config.RoutingThreshold {
		if text, ok := tpl.Pick(mood.Label, bucket, seed); ok {
			observability.RecordComposePath(string(PathTemplate))
			return Reply{Text: decorate(text, outcome), Path: PathTemplate}
		}
	}

	text, err := c.generate(ctx, turn, outcome)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				observability.RecordGatewayTimeout()
			}
			slog.Warn("Reply generation failed, using template fallback",
				"error", err, "mood", mood.Label)
		} else {
			slog.Warn("Reply generation returned empty text, using template fallback",
				"mood", mood.Label)
		}
		observability.RecordComposePath(string(PathFallback))
		return Reply{Text: decorate(tpl.Fallback(mood.Label, bucket, seed), outcome), Path: PathFallback}
	}

	observability.RecordComposePath(string(PathGenerated))
	return Reply{Text: decorate(strings.TrimSpace(text), outcome), Path: PathGenerated}
}

// generate runs the model route: exemplar retrieval, one prompt, one
// gateway call. Never calls the gateway more than once.
func (c *Composer) generate(ctx context.Context, turn tools.TurnInput, outcome *tools.TurnResult) (string, error) {
	if c.gateway == nil {
		return "", errNoGateway
	}

	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	exemplars := c.exemplars(ctx, turn.Message, outcome.Mood.Label)
	prompt := buildReplyPrompt(turn, outcome, exemplars, c.config.HistoryWindow)

	genCtx, cancel := context.WithTimeout(ctx, c.config.GenerateTimeout)
	defer cancel()

	temperature := c.config.Temperature
	return c.gateway.Generate(genCtx, prompt, llm.GenerationParams{
		Temperature: &temperature,
	})
}

// exemplars retrieves example responses for the prompt: quotes and
// learned turns of the classified category, filtered by the quality
// floor and ranked by weighted similarity and quality.
func (c *Composer) exemplars(ctx context.Context, utterance string, label datatypes.Category) []index.Hit {
	if c.idx == nil {
		return nil
	}

	// Overfetch so the quality floor has candidates to discard.
	hits, err := c.idx.Search(ctx, utterance, index.SearchOptions{
		TopK:     c.config.ExemplarTopK * 2,
		Kinds:    []index.RecordKind{index.KindQuote, index.KindConversationTurn},
		Category: label,
	})
	if err != nil {
		slog.Warn("Exemplar retrieval failed, composing without examples", "error", err)
		return nil
	}

	kept := hits[:0]
	for _, hit := range hits {
		if hit.Record.Quality >= c.config.ExemplarQualityFloor {
			kept = append(kept, hit)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return exemplarScore(kept[i]) > exemplarScore(kept[j])
	})
	if len(kept) > c.config.ExemplarTopK {
		kept = kept[:c.config.ExemplarTopK]
	}
	return kept
}

// exemplarScore weighs retrieval similarity against stored quality.
func exemplarScore(hit index.Hit) float64 {
	return hit.Similarity*similarityWeight + hit.Record.Quality*qualityWeight
}

// buildReplyPrompt frames one reply generation: persona, the detected
// mood, exemplar responses, the recent history window, and the current
// utterance.
func buildReplyPrompt(turn tools.TurnInput, outcome *tools.TurnResult, exemplars []index.Hit, historyWindow int) string {
	var b strings.Builder

	b.WriteString("You are Aura, a warm companion who recommends quotes matched ")
	b.WriteString("to the user's mood.\n\n")
	b.WriteString("Write the next reply. Acknowledge the feeling in the message, ")
	b.WriteString("keep a natural conversational tone, and close with gentle ")
	b.WriteString("encouragement. Three to five sentences, at most two emoji. ")
	b.WriteString("Do not recite a quote; one is appended separately.\n")

	mood := outcome.Mood
	fmt.Fprintf(&b, "\nDetected mood: %s (confidence %.2f, intensity %.2f)\n",
		mood.Label, mood.Confidence, mood.Intensity)

	if len(exemplars) > 0 {
		b.WriteString("\nLines in the right tone:\n")
		for _, hit := range exemplars {
			fmt.Fprintf(&b, "- %s\n", hit.Record.Text)
		}
	}

	history := turn.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
	}

	fmt.Fprintf(&b, "\nMessage: %q\n\nReply:", turn.Message)
	return b.String()
}

// decorate appends the merged tool outputs: the support line, the best
// quote, and the explore link.
func decorate(text string, outcome *tools.TurnResult) string {
	var b strings.Builder
	b.WriteString(text)

	if outcome.SupportMessage != "" {
		b.WriteString("\n\n")
		b.WriteString(outcome.SupportMessage)
	}
	if len(outcome.Quotes) > 0 {
		quote := outcome.Quotes[0]
		fmt.Fprintf(&b, "\n\n❝ %s ❞\n— %s", quote.Text, quote.Author)
	}
	if outcome.Page != "" && outcome.Navigation != "" {
		fmt.Fprintf(&b, "\n\n🔗 Explore more %s quotes: %s", outcome.Navigation, outcome.Page)
	}
	return b.String()
}
