// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/auraquotes/aura/pkg/ux"
	"github.com/auraquotes/aura/services/engine/datatypes"
)

const defaultMaxHistory = 50

// =============================================================================
// Input readers
// =============================================================================

// InputReader yields one line of user input per call.
type InputReader interface {
	// ReadLine blocks until a full line is available. Returns io.EOF
	// when the source is exhausted: Ctrl+D, a closed pipe, or a
	// drained script.
	ReadLine() (string, error)
}

// PromptingInputReader is an InputReader that renders its own prompt.
// The runner prints the prompt itself for readers that do not.
type PromptingInputReader interface {
	InputReader
	SetPrompt(prompt string)
}

// StdinReader reads plain lines from stdin. It serves piped input and
// terminals without ANSI support.
type StdinReader struct {
	reader *bufio.Reader
}

func NewStdinReader() *StdinReader {
	return &StdinReader{reader: bufio.NewReader(os.Stdin)}
}

func (r *StdinReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// InteractiveInputReader reads lines through a bubbletea text input
// with up-arrow history. Each ReadLine runs a one-shot program; the
// editing UI renders on stderr so stdout keeps only the conversation.
type InteractiveInputReader struct {
	history      []string
	historyIndex int
	maxHistory   int
	prompt       string
}

// NewInteractiveInputReader returns an interactive reader, or a plain
// StdinReader when stdin is not a terminal.
func NewInteractiveInputReader(maxHistory int) InputReader {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return NewStdinReader()
	}

	return &InteractiveInputReader{
		history:      make([]string, 0, maxHistory),
		historyIndex: -1,
		maxHistory:   maxHistory,
		prompt:       "> ",
	}
}

// SetPrompt implements PromptingInputReader; the prompt renders inside
// the text input component.
func (r *InteractiveInputReader) SetPrompt(prompt string) {
	r.prompt = prompt
}

// ReadLine reads one line with editing and history support. Ctrl+C
// clears the current input and returns an empty line; Ctrl+D on an
// empty line returns io.EOF.
func (r *InteractiveInputReader) ReadLine() (string, error) {
	ti := textinput.New()
	ti.Prompt = r.prompt
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 80

	m := inputModel{
		textInput:    ti,
		history:      r.history,
		historyIndex: -1,
	}

	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(inputModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}

	if result.cancelled && result.textInput.Value() == "" {
		return "", io.EOF
	}

	input := strings.TrimSpace(result.textInput.Value())
	if input != "" {
		r.addToHistory(input)
	}
	return input, nil
}

func (r *InteractiveInputReader) addToHistory(input string) {
	// Consecutive duplicates collapse into one entry.
	if len(r.history) > 0 && r.history[len(r.history)-1] == input {
		return
	}
	r.history = append(r.history, input)
	if len(r.history) > r.maxHistory {
		r.history = r.history[1:]
	}
}

// inputModel is the bubbletea model behind one ReadLine call.
type inputModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	currentInput string // in-progress input saved while navigating history
	cancelled    bool
	done         bool
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlC:
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlD:
			m.cancelled = true
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyUp:
			if len(m.history) == 0 {
				return m, nil
			}
			if m.historyIndex == -1 {
				m.currentInput = m.textInput.Value()
				m.historyIndex = len(m.history) - 1
			} else if m.historyIndex > 0 {
				m.historyIndex--
			}
			m.textInput.SetValue(m.history[m.historyIndex])
			m.textInput.CursorEnd()
			return m, nil

		case tea.KeyDown:
			if m.historyIndex == -1 {
				return m, nil
			}
			if m.historyIndex < len(m.history)-1 {
				m.historyIndex++
				m.textInput.SetValue(m.history[m.historyIndex])
			} else {
				m.historyIndex = -1
				m.textInput.SetValue(m.currentInput)
			}
			m.textInput.CursorEnd()
			return m, nil
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	return m.textInput.View()
}

// MockInputReader returns scripted inputs in order, then io.EOF. Tests
// drive the runner with it.
type MockInputReader struct {
	inputs []string
	index  int
}

func NewMockInputReader(inputs []string) *MockInputReader {
	return &MockInputReader{inputs: inputs}
}

func (m *MockInputReader) ReadLine() (string, error) {
	if m.index >= len(m.inputs) {
		return "", io.EOF
	}
	line := m.inputs[m.index]
	m.index++
	return line, nil
}

// =============================================================================
// Chat runner
// =============================================================================

// ChatService is what the runner needs from an engine client. The HTTP
// implementation lives in chat_service.go; tests substitute their own.
type ChatService interface {
	SendMessage(ctx context.Context, sessionID, message string) (datatypes.TurnResponse, error)
	History(ctx context.Context, sessionID string) (datatypes.HistoryResponse, error)
	Close()
}

// ChatRunnerConfig configures a chat session.
type ChatRunnerConfig struct {
	// BaseURL is the engine endpoint.
	BaseURL string

	// SessionID resumes an earlier conversation when set.
	SessionID string
}

// ChatRunner owns the interactive loop: read a line, send it to the
// engine, render the reply, tally the session stats.
type ChatRunner struct {
	service   ChatService
	ui        ux.ChatUI
	input     InputReader
	baseURL   string
	sessionID string
	stats     ux.SessionStats
}

// NewChatRunner wires a runner against a running engine.
func NewChatRunner(cfg ChatRunnerConfig) *ChatRunner {
	return NewChatRunnerWithDeps(
		NewHTTPChatService(cfg.BaseURL),
		ux.NewChatUI(),
		NewInteractiveInputReader(defaultMaxHistory),
		cfg.BaseURL,
		cfg.SessionID,
	)
}

// NewChatRunnerWithDeps wires a runner from explicit parts. Tests use
// it to inject a scripted reader, a capturing UI, and a mock service.
func NewChatRunnerWithDeps(service ChatService, ui ux.ChatUI, input InputReader, baseURL, sessionID string) *ChatRunner {
	return &ChatRunner{
		service:   service,
		ui:        ui,
		input:     input,
		baseURL:   baseURL,
		sessionID: sessionID,
	}
}

// Run drives the conversation until the user exits, input runs out, or
// the context is cancelled. Cancellation returns ctx.Err(); the other
// two ways out are normal and return nil.
func (r *ChatRunner) Run(ctx context.Context) error {
	r.stats = ux.SessionStats{StartTime: time.Now()}

	// A resume target the engine does not know (expired, mistyped)
	// falls back to a fresh session instead of failing the chat.
	if r.sessionID != "" {
		history, err := r.service.History(ctx, r.sessionID)
		if err != nil {
			ux.Warning(fmt.Sprintf("session %s not found, starting fresh", r.sessionID))
			r.sessionID = ""
		} else {
			ux.Muted(fmt.Sprintf("resuming with %d earlier turns", len(history.Turns)))
		}
	}

	r.ui.Header(r.baseURL, r.sessionID)

	for {
		// Check for cancellation before blocking on input.
		select {
		case <-ctx.Done():
			r.finish()
			return ctx.Err()
		default:
		}

		// Readers that render their own prompt get ours; the rest have
		// it printed for them.
		if p, ok := r.input.(PromptingInputReader); ok {
			p.SetPrompt(r.ui.Prompt())
		} else {
			fmt.Print(r.ui.Prompt())
		}
		input, err := r.input.ReadLine()
		if err != nil {
			if err == io.EOF {
				r.finish()
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if input == "" {
			continue
		}

		// Bubbletea clears its render area on exit; restore the line.
		if _, interactive := r.input.(*InteractiveInputReader); interactive {
			fmt.Printf("%s%s\n", r.ui.Prompt(), input)
		}

		if isExitCommand(input) {
			r.finish()
			return nil
		}

		if err := r.handleMessage(ctx, input); err != nil {
			if ctx.Err() != nil {
				r.finish()
				return ctx.Err()
			}
			r.ui.Error(err)
			continue
		}
	}
}

// Close releases the underlying HTTP client.
func (r *ChatRunner) Close() error {
	r.service.Close()
	return nil
}

func (r *ChatRunner) handleMessage(ctx context.Context, message string) error {
	var turn datatypes.TurnResponse
	err := ux.WithSpinner("Thinking", func() error {
		var sendErr error
		turn, sendErr = r.service.SendMessage(ctx, r.sessionID, message)
		return sendErr
	})
	if err != nil {
		return err
	}

	r.sessionID = turn.SessionID
	r.stats.Record(string(turn.Mood.Label))
	r.ui.Response(turnView(turn))
	return nil
}

func (r *ChatRunner) finish() {
	r.ui.SessionEnd(r.sessionID, r.stats)
}

// turnView maps an engine response onto the display struct.
func turnView(turn datatypes.TurnResponse) ux.TurnView {
	return ux.TurnView{
		Text:        turn.ResponseText,
		MoodLabel:   string(turn.Mood.Label),
		MoodEmoji:   categoryEmoji(turn.Mood.Label),
		Confidence:  turn.Mood.Confidence,
		ExplorePath: string(turn.NavigationSuggestion),
	}
}

// categoryEmoji looks up the display emoji from the catalog. Categories
// outside it, the general routing bucket included, have none.
func categoryEmoji(category datatypes.Category) string {
	for _, info := range datatypes.CategoryCatalog() {
		if info.Name == category {
			return info.Emoji
		}
	}
	return ""
}

// isExitCommand reports whether input ends the session. Matching is
// case-sensitive: "exit" and "quit" only.
func isExitCommand(input string) bool {
	return input == "exit" || input == "quit"
}
