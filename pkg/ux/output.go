// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal styling for the Aura CLI.
//
// All color and layout decisions live here so the command code stays
// free of lipgloss calls. Plain mode strips decoration for scripts and
// piped output; enable it with SetPlain or let InitPlain detect it.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Output destinations, swappable in tests.
var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// Aura color palette. Warm dusk tones: gold for drive, rose for warmth,
// iris for wonder, foam for levity.
var (
	ColorGold  = lipgloss.Color("#F6C177")
	ColorRose  = lipgloss.Color("#EBBCBA")
	ColorLove  = lipgloss.Color("#EB6F92")
	ColorIris  = lipgloss.Color("#C4A7E7")
	ColorFoam  = lipgloss.Color("#9CCFD8")
	ColorPine  = lipgloss.Color("#31748F")
	ColorMuted = lipgloss.Color("#6E6A86")

	ColorSuccess = lipgloss.Color("#9CCFD8")
	ColorWarning = lipgloss.Color("#F6C177")
	ColorError   = lipgloss.Color("#EB6F92")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box      lipgloss.Style
	QuoteBox lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorIris),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorPine),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Bold(true).Foreground(ColorGold),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPine).
		Padding(0, 1),
	QuoteBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorIris).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// categoryStyles maps quote categories to their display color.
var categoryStyles = map[string]lipgloss.Style{
	"motivational":  lipgloss.NewStyle().Bold(true).Foreground(ColorGold),
	"romantic":      lipgloss.NewStyle().Bold(true).Foreground(ColorLove),
	"funny":         lipgloss.NewStyle().Bold(true).Foreground(ColorFoam),
	"inspirational": lipgloss.NewStyle().Bold(true).Foreground(ColorIris),
}

// CategoryStyle returns the style for a quote category. Unknown
// categories, including the general fallback, render muted.
func CategoryStyle(category string) lipgloss.Style {
	if style, ok := categoryStyles[category]; ok {
		return style
	}
	return Styles.Muted
}

// MoodBadge formats a detected mood as "emoji label (NN%)" with the
// category color. In plain mode the badge is bare text.
func MoodBadge(label, emoji string, confidence float64) string {
	pct := fmt.Sprintf("%.0f%%", confidence*100)
	if Plain() {
		return fmt.Sprintf("%s %s", label, pct)
	}
	name := CategoryStyle(label).Render(label)
	if emoji != "" {
		name = emoji + " " + name
	}
	return fmt.Sprintf("%s %s", name, Styles.Muted.Render("("+pct+")"))
}

// Icon is a themed status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
	IconArrow   Icon = "→"
	IconSpark   Icon = "✦"
)

// Render returns the icon with its status color applied.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconSpark:
		return Styles.Highlight.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Plain mode
// =============================================================================

var plainMode atomic.Bool

// SetPlain switches plain output on or off. Call once during startup.
func SetPlain(plain bool) {
	plainMode.Store(plain)
}

// Plain reports whether plain output is active.
func Plain() bool {
	return plainMode.Load()
}

// InitPlain enables plain mode when stdout is not a terminal or the
// NO_COLOR convention is set.
func InitPlain() {
	if os.Getenv("NO_COLOR") != "" {
		SetPlain(true)
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		SetPlain(true)
	}
}

// =============================================================================
// Print helpers
// =============================================================================

// Title prints a styled title line. Suppressed in plain mode.
func Title(text string) {
	if Plain() {
		return
	}
	fmt.Fprintln(out, Styles.Title.Render(text))
}

// Success prints a success message with a checkmark.
func Success(text string) {
	if Plain() {
		fmt.Fprintf(out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	if Plain() {
		fmt.Fprintf(errOut, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if Plain() {
		fmt.Fprintf(errOut, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints a secondary information line.
func Info(text string) {
	if Plain() {
		fmt.Fprintln(out, text)
		return
	}
	fmt.Fprintf(out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints de-emphasized text. Suppressed in plain mode.
func Muted(text string) {
	if Plain() {
		return
	}
	fmt.Fprintln(out, Styles.Muted.Render(text))
}

// Box prints content in a rounded box under a title.
func Box(title, content string) {
	if Plain() {
		fmt.Fprintf(out, "%s: %s\n", title, content)
		return
	}
	titleLine := Styles.Title.Render(title)
	fmt.Fprintln(out, Styles.Box.Width(boxWidth).Render(titleLine+"\n"+content))
}

// KeyValues prints aligned key-value rows, one per line. Used by the
// stats commands.
func KeyValues(pairs [][2]string) {
	width := 0
	for _, pair := range pairs {
		if len(pair[0]) > width {
			width = len(pair[0])
		}
	}
	for _, pair := range pairs {
		if Plain() {
			fmt.Fprintf(out, "%s=%s\n", strings.ReplaceAll(pair[0], " ", "_"), pair[1])
			continue
		}
		fmt.Fprintf(out, "  %s  %s\n",
			Styles.Muted.Render(fmt.Sprintf("%-*s", width, pair[0])),
			pair[1],
		)
	}
}

const boxWidth = 60
