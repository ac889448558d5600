// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools provides the tool registry and the deterministic
// dispatcher that orchestrates one chat turn.
//
// The engine exposes a closed set of six named tools. Dispatch is not a
// search over possible call orders: mood analysis always runs first and
// its result gates which of the remaining tools run. Every call is
// recorded into the turn trace with its input, output, and duration; a
// failing tool is logged into the trace with an error marker and the
// pipeline degrades past it instead of aborting the turn.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use.
package tools

import (
	"context"
	"time"
)

// Tool names, fixed for the life of the engine. The dispatcher calls
// tools by these names and the turn trace records them; a trace must
// never carry a name absent from the registry.
const (
	ToolAnalyzeMood        = "analyze_mood"
	ToolNavigate           = "navigate"
	ToolFetchQuotes        = "fetch_quotes"
	ToolManageConversation = "manage_conversation"
	ToolManageSession      = "manage_session"
	ToolEmotionalSupport   = "emotional_support"
)

// ToolCategory represents the category a tool belongs to.
type ToolCategory string

const (
	// CategoryAnalysis includes tools that interpret the utterance.
	CategoryAnalysis ToolCategory = "analysis"

	// CategoryRetrieval includes tools that route to and fetch from
	// the quote collections.
	CategoryRetrieval ToolCategory = "retrieval"

	// CategorySupport includes tools that produce emotional support.
	CategorySupport ToolCategory = "support"

	// CategoryBookkeeping includes tools that maintain session and
	// conversation state.
	CategoryBookkeeping ToolCategory = "bookkeeping"
)

// String returns the string representation of the category.
func (c ToolCategory) String() string {
	return string(c)
}

// ParamType represents the type of a tool parameter.
type ParamType string

const (
	// ParamTypeString is a string parameter.
	ParamTypeString ParamType = "string"

	// ParamTypeInt is an integer parameter.
	ParamTypeInt ParamType = "integer"

	// ParamTypeFloat is a floating-point parameter.
	ParamTypeFloat ParamType = "number"

	// ParamTypeBool is a boolean parameter.
	ParamTypeBool ParamType = "boolean"

	// ParamTypeArray is an array parameter. Arrays cross the dispatch
	// boundary as typed slices and are not shape-checked.
	ParamTypeArray ParamType = "array"
)

// ParamDef defines a single parameter for a tool.
type ParamDef struct {
	// Type is the parameter type.
	Type ParamType `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates if the parameter must be provided. Required
	// checks presence, not content; an empty string is valid input.
	Required bool `json:"required"`

	// Default is the value the tool assumes when the parameter is
	// absent.
	Default any `json:"default,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`
}

// ToolDefinition describes a tool's input schema and dispatch traits.
type ToolDefinition struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`

	// Category is the tool category.
	Category ToolCategory `json:"category"`

	// SideEffects indicates if the tool mutates persistent state.
	SideEffects bool `json:"side_effects"`

	// Timeout bounds one execution. Zero means the dispatcher's
	// default applies.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// RequiredParams returns a list of required parameter names.
func (d *ToolDefinition) RequiredParams() []string {
	var required []string
	for name, param := range d.Parameters {
		if param.Required {
			required = append(required, name)
		}
	}
	return required
}

// Tool defines the interface for executable tools.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Category returns the tool category.
	Category() ToolCategory

	// Definition returns the tool's parameter schema.
	Definition() ToolDefinition

	// Execute runs the tool with the given parameters.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   params - Input parameters (validated before call)
	//
	// Outputs:
	//   *Result - Execution result
	//   error - Non-nil if execution failed
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result contains the outcome of a tool execution.
//
// Output doubles as the trace snapshot and the data channel to later
// pipeline stages, so tools place typed values (quote slices, category
// strings) directly into the map.
type Result struct {
	// Success indicates if the tool succeeded. A degraded tool can
	// return Success false together with a partial Output.
	Success bool `json:"success"`

	// Output is the tool's structured output.
	Output map[string]any `json:"output"`

	// Error contains any error message.
	Error string `json:"error,omitempty"`
}
