// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/auraquotes/aura/services/engine/corpus"
	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/mood"
	"github.com/auraquotes/aura/services/engine/session"
)

var tracer = otel.Tracer("aura.engine.tools")

// Sentinel errors for the dispatcher.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates parameter validation failed.
	ErrValidationFailed = errors.New("parameter validation failed")
)

// Per-tool execution bounds. Mood analysis may reach the language
// model on its fallback stage; the store-backed tools only touch
// sqlite.
const (
	analyzeTimeout = 10 * time.Second
	storeTimeout   = 3 * time.Second
)

// Config holds the dispatch thresholds.
type Config struct {
	// RoutingThreshold is the minimum mood confidence for routing the
	// turn to a category collection. It gates navigate and
	// fetch_quotes, which also require an emotional category.
	RoutingThreshold float64

	// IntensityThreshold is the emotional intensity above which
	// emotional_support runs.
	IntensityThreshold float64

	// QuoteCount is how many quotes fetch_quotes returns per turn.
	QuoteCount int

	// DefaultTimeout bounds a tool call whose definition carries no
	// timeout of its own.
	DefaultTimeout time.Duration
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		RoutingThreshold:   0.3,
		IntensityThreshold: 0.6,
		QuoteCount:         3,
		DefaultTimeout:     5 * time.Second,
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
	if config.IntensityThreshold <= 0 || config.IntensityThreshold > 1 {
		slog.Warn("Invalid IntensityThreshold config, using default",
			"provided", config.IntensityThreshold, "default", defaults.IntensityThreshold)
		config.IntensityThreshold = defaults.IntensityThreshold
	}
	if config.QuoteCount < 1 {
		slog.Warn("Invalid QuoteCount config, using default",
			"provided", config.QuoteCount, "default", defaults.QuoteCount)
		config.QuoteCount = defaults.QuoteCount
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}

	return config
}

// TurnInput is everything the dispatcher needs for one turn.
type TurnInput struct {
	// SessionID is the requested session id. Empty means the turn
	// starts a fresh session; manage_session mints the identifier.
	SessionID string

	// Message is the raw user utterance.
	Message string

	// History holds recent turns, most recent last. Empty for new
	// sessions.
	History []datatypes.ConversationTurn
}

// TurnResult carries the typed outcomes of one dispatch run alongside
// the per-call trace.
type TurnResult struct {
	// Mood is the classification driving the gates below.
	Mood datatypes.MoodResult

	// SessionID is the resolved session id, minted by manage_session
	// when the request carried none.
	SessionID string

	// SessionCreated reports whether this turn created the session.
	SessionCreated bool

	// Navigation is the suggested category route, empty when navigate
	// did not run.
	Navigation datatypes.Category

	// Page is the recommended browse page when navigate ran.
	Page string

	// Quotes are the fetched quotes, best-ranked first. Empty when
	// fetch_quotes did not run or degraded.
	Quotes []datatypes.Quote

	// SupportMessage is the emotional support line, empty when
	// emotional_support did not run.
	SupportMessage string

	// Calls are the per-tool trace records in dispatch order.
	Calls []datatypes.ToolCall
}

// Dispatcher executes the deterministic tool pipeline for one turn.
//
// # Description
//
// The pipeline order is fixed: analyze_mood, then navigate and
// fetch_quotes when the mood is an emotional category with confidence
// at or above the routing threshold, then emotional_support when
// intensity exceeds the intensity threshold, then the bookkeeping
// tools, which always run. A failing tool never aborts the turn; its
// trace record carries the error and the pipeline continues with
// default or empty output.
//
// # Thread Safety
//
// Dispatcher is safe for concurrent use; each Run works on its own
// TurnResult.
type Dispatcher struct {
	registry *Registry
	config   Config
}

// NewDispatcher wires the closed tool set and returns a ready
// dispatcher.
//
// # Inputs
//
//   - classifier: Mood classifier backing analyze_mood. Required.
//   - quotes: Quote store backing fetch_quotes. Required.
//   - sessions: Session manager backing the bookkeeping tools.
//     Required.
//   - config: Dispatch thresholds (use DefaultConfig() for defaults).
func NewDispatcher(classifier *mood.Classifier, quotes *corpus.Store, sessions *session.Manager, config Config) (*Dispatcher, error) {
	if classifier == nil {
		return nil, fmt.Errorf("dispatcher requires a mood classifier")
	}
	if quotes == nil {
		return nil, fmt.Errorf("dispatcher requires a quote store")
	}
	if sessions == nil {
		return nil, fmt.Errorf("dispatcher requires a session manager")
	}

	registry := NewRegistry()
	RegisterEngineTools(registry, classifier, quotes, sessions)

	return &Dispatcher{
		registry: registry,
		config:   validateConfig(config),
	}, nil
}

// Registry returns the dispatcher's tool registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Run executes the tool pipeline for one turn. It never returns an
// error: every failure is recorded in the trace and the result holds
// whatever the surviving tools produced.
func (d *Dispatcher) Run(ctx context.Context, turn TurnInput) *TurnResult {
	ctx, span := tracer.Start(ctx, "Dispatch")
	defer span.End()

	result := &TurnResult{SessionID: turn.SessionID}

	out := d.call(ctx, result, ToolAnalyzeMood, map[string]any{
		"message":    turn.Message,
		paramHistory: turn.History,
	})
	result.Mood = moodFromOutput(out)

	if result.Mood.Label.IsEmotional() && result.Mood.Confidence >= d.config.RoutingThreshold {
		out = d.call(ctx, result, ToolNavigate, map[string]any{
			"mood":       string(result.Mood.Label),
			"confidence": result.Mood.Confidence,
		})
		if page, ok := out["recommended_page"].(string); ok {
			result.Navigation = result.Mood.Label
			result.Page = page
		}

		out = d.call(ctx, result, ToolFetchQuotes, map[string]any{
			"category": string(result.Mood.Label),
			"count":    d.config.QuoteCount,
		})
		if quotes, ok := out["quotes"].([]datatypes.Quote); ok {
			result.Quotes = quotes
		}
	}

	if result.Mood.Intensity > d.config.IntensityThreshold {
		out = d.call(ctx, result, ToolEmotionalSupport, map[string]any{
			"mood":      string(result.Mood.Label),
			"intensity": result.Mood.Intensity,
		})
		if message, ok := out["support_message"].(string); ok {
			result.SupportMessage = message
		}
	}

	d.call(ctx, result, ToolManageConversation, map[string]any{
		"session_id": turn.SessionID,
	})

	out = d.call(ctx, result, ToolManageSession, map[string]any{
		"session_id": turn.SessionID,
	})
	if id, ok := out["session_id"].(string); ok && id != "" {
		result.SessionID = id
	}
	result.SessionCreated = out["action"] == "session_created"

	return result
}

// call executes one registered tool and appends its trace record.
//
// Failures never propagate: a failed call is logged, recorded in the
// trace with an error marker, and the returned map is whatever output
// the tool produced before failing, possibly nil.
func (d *Dispatcher) call(ctx context.Context, result *TurnResult, name string, params map[string]any) map[string]any {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	logger := slog.With("tool", name)

	tool, ok := d.registry.Get(name)
	if !ok {
		// Unknown names never enter the trace; every traced name must
		// resolve in the registry.
		logger.Error("Tool missing from registry", "error", ErrToolNotFound)
		return nil
	}

	record := datatypes.ToolCall{Tool: name, Input: snapshotParams(params)}

	if err := validateParams(tool.Definition(), params); err != nil {
		logger.Warn("Parameter validation failed", "error", err)
		record.Error = fmt.Sprintf("%v: %v", ErrValidationFailed, err)
		result.Calls = append(result.Calls, record)
		return nil
	}

	timeout := d.config.DefaultTimeout
	if t := tool.Definition().Timeout; t > 0 {
		timeout = t
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := execute(callCtx, tool, params)
	record.DurationMs = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		logger.Warn("Tool execution failed",
			"error", err, "duration_ms", record.DurationMs)
		record.Error = err.Error()
	case res == nil:
		logger.Warn("Tool returned no result")
		record.Error = "tool returned no result"
	default:
		record.Output = res.Output
		if !res.Success {
			logger.Warn("Tool degraded",
				"error", res.Error, "duration_ms", record.DurationMs)
			record.Error = res.Error
		}
	}

	result.Calls = append(result.Calls, record)
	return record.Output
}

// execute runs the tool and converts a panic into a plain execution
// error, so one broken tool degrades its trace record instead of taking
// the turn down.
func execute(ctx context.Context, tool Tool, params map[string]any) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Error("Panic in tool execution",
				"panic", r,
				"stack", string(buf[:n]))
			res = nil
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Execute(ctx, params)
}

// snapshotParams copies params for the trace. The raw history slice is
// replaced by a turn count; the session log is the durable record of
// turns.
func snapshotParams(params map[string]any) map[string]any {
	snap := make(map[string]any, len(params))
	for key, value := range params {
		if key == paramHistory {
			if turns, ok := value.([]datatypes.ConversationTurn); ok {
				snap["history_turns"] = len(turns)
			}
			continue
		}
		snap[key] = value
	}
	return snap
}

// validateParams checks params against the tool's declared schema:
// required presence, value types, and enum membership.
func validateParams(def ToolDefinition, params map[string]any) error {
	for name, param := range def.Parameters {
		value, present := params[name]
		if !present {
			if param.Required {
				return fmt.Errorf("required parameter %q missing", name)
			}
			continue
		}
		if err := checkParamType(name, param, value); err != nil {
			return err
		}
		if len(param.Enum) > 0 && !enumAllows(param.Enum, value) {
			return fmt.Errorf("parameter %q value %v not in allowed enum", name, value)
		}
	}
	return nil
}

// checkParamType verifies a value against its declared ParamType.
func checkParamType(name string, param ParamDef, value any) error {
	switch param.Type {
	case ParamTypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("parameter %q: expected string, got %T", name, value)
		}
	case ParamTypeInt:
		switch v := value.(type) {
		case int:
		case float64:
			if v != float64(int(v)) {
				return fmt.Errorf("parameter %q: expected integer, got %v", name, v)
			}
		default:
			return fmt.Errorf("parameter %q: expected integer, got %T", name, value)
		}
	case ParamTypeFloat:
		switch value.(type) {
		case float64, int:
		default:
			return fmt.Errorf("parameter %q: expected number, got %T", name, value)
		}
	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q: expected boolean, got %T", name, value)
		}
	case ParamTypeArray:
		// Arrays cross the boundary as typed slices; no shape check.
	}
	return nil
}

// enumAllows reports whether value appears in the enum options.
func enumAllows(enum []any, value any) bool {
	for _, option := range enum {
		if option == value {
			return true
		}
	}
	return false
}
