// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// TurnView is the display-ready form of one assistant turn. The CLI
// maps engine responses into this struct so ux stays independent of
// the service types.
type TurnView struct {
	Text        string
	MoodLabel   string
	MoodEmoji   string
	Confidence  float64
	ExplorePath string
}

// SessionStats accumulates per-session counters for the end-of-chat
// summary.
type SessionStats struct {
	MessageCount int
	MoodCounts   map[string]int
	StartTime    time.Time
}

// Record tallies one exchange.
func (s *SessionStats) Record(moodLabel string) {
	s.MessageCount++
	if s.MoodCounts == nil {
		s.MoodCounts = make(map[string]int)
	}
	s.MoodCounts[moodLabel]++
}

// ChatUI renders the interactive chat surfaces. The chat runner only
// coordinates; everything the user sees goes through this interface.
type ChatUI interface {
	// Header prints the session banner before the first prompt.
	Header(serverURL, sessionID string)
	// Prompt returns the styled input prompt.
	Prompt() string
	// Response prints one assistant turn.
	Response(view TurnView)
	// Error prints a recoverable chat error; the loop continues after.
	Error(err error)
	// SessionEnd prints the closing summary.
	SessionEnd(sessionID string, stats SessionStats)
}

type terminalChatUI struct {
	w     io.Writer
	plain bool
}

// NewChatUI returns a ChatUI writing to stdout, honoring the package
// plain mode.
func NewChatUI() ChatUI {
	return &terminalChatUI{w: out, plain: Plain()}
}

// NewChatUIWithWriter returns a ChatUI with an explicit destination and
// mode. Tests use this to capture output.
func NewChatUIWithWriter(w io.Writer, plain bool) ChatUI {
	return &terminalChatUI{w: w, plain: plain}
}

func (u *terminalChatUI) Header(serverURL, sessionID string) {
	if u.plain {
		parts := []string{fmt.Sprintf("server=%s", serverURL)}
		if sessionID != "" {
			parts = append(parts, fmt.Sprintf("session=%s", sessionID))
		}
		fmt.Fprintf(u.w, "CHAT_START: %s\n", strings.Join(parts, " "))
		return
	}

	var body strings.Builder
	body.WriteString(Styles.Muted.Render("say how you feel, get a quote back"))
	body.WriteString("\n")
	body.WriteString(Styles.Muted.Render("server ") + serverURL)
	if sessionID != "" {
		body.WriteString("\n" + Styles.Muted.Render("session ") + sessionID)
	}

	title := Styles.Title.Render(string(IconSpark) + " Aura")
	fmt.Fprintln(u.w, Styles.Box.Width(boxWidth).Render(title+"\n"+body.String()))
	fmt.Fprintln(u.w, Styles.Muted.Render(`  type "exit" or "quit" to leave`))
	fmt.Fprintln(u.w)
}

func (u *terminalChatUI) Prompt() string {
	if u.plain {
		return "> "
	}
	return Styles.Highlight.Render("> ")
}

func (u *terminalChatUI) Response(view TurnView) {
	if u.plain {
		fmt.Fprintf(u.w, "RESPONSE: %s\n", view.Text)
		fmt.Fprintf(u.w, "MOOD: %s confidence=%.2f\n", view.MoodLabel, view.Confidence)
		if view.ExplorePath != "" {
			fmt.Fprintf(u.w, "EXPLORE: %s\n", view.ExplorePath)
		}
		return
	}

	fmt.Fprintln(u.w)
	fmt.Fprintln(u.w, view.Text)
	badge := MoodBadge(view.MoodLabel, view.MoodEmoji, view.Confidence)
	fmt.Fprintf(u.w, "%s %s\n", Styles.Muted.Render("mood"), badge)
	if view.ExplorePath != "" {
		hint := fmt.Sprintf("%s explore more: aura quotes %s", string(IconSpark), view.ExplorePath)
		fmt.Fprintln(u.w, Styles.Muted.Render(hint))
	}
	fmt.Fprintln(u.w)
}

func (u *terminalChatUI) Error(err error) {
	if u.plain {
		fmt.Fprintf(u.w, "CHAT_ERROR: %v\n", err)
		return
	}
	fmt.Fprintf(u.w, "%s %s\n", IconError.Render(), Styles.Error.Render(fmt.Sprintf("chat error: %v", err)))
}

func (u *terminalChatUI) SessionEnd(sessionID string, stats SessionStats) {
	duration := time.Duration(0)
	if !stats.StartTime.IsZero() {
		duration = time.Since(stats.StartTime)
	}

	if u.plain {
		fmt.Fprintf(u.w, "CHAT_END: session=%s messages=%d duration=%s\n",
			sessionID, stats.MessageCount, formatDuration(duration))
		for _, mood := range sortedMoods(stats.MoodCounts) {
			fmt.Fprintf(u.w, "MOOD_COUNT: %s=%d\n", mood, stats.MoodCounts[mood])
		}
		return
	}

	var body strings.Builder
	body.WriteString(fmt.Sprintf("%s %d", Styles.Muted.Render("messages"), stats.MessageCount))
	body.WriteString(fmt.Sprintf("\n%s %s", Styles.Muted.Render("duration"), formatDuration(duration)))
	if len(stats.MoodCounts) > 0 {
		body.WriteString("\n" + Styles.Muted.Render("moods"))
		for _, mood := range sortedMoods(stats.MoodCounts) {
			body.WriteString(fmt.Sprintf("\n  %s %s %d",
				string(IconBullet), CategoryStyle(mood).Render(mood), stats.MoodCounts[mood]))
		}
	}
	if sessionID != "" {
		body.WriteString(fmt.Sprintf("\n%s %s", Styles.Muted.Render("resume with"), "--resume "+sessionID))
	}

	title := Styles.Title.Render("until next time")
	fmt.Fprintln(u.w)
	fmt.Fprintln(u.w, Styles.Box.Width(boxWidth).Render(title+"\n"+body.String()))
}

// sortedMoods orders moods by descending count, then name for stable
// output.
func sortedMoods(counts map[string]int) []string {
	moods := make([]string, 0, len(counts))
	for mood := range counts {
		moods = append(moods, mood)
	}
	sort.Slice(moods, func(i, j int) bool {
		if counts[moods[i]] != counts[moods[j]] {
			return counts[moods[i]] > counts[moods[j]]
		}
		return moods[i] < moods[j]
	})
	return moods
}

// formatDuration renders a duration in the largest two useful units.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
