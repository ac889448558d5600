// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/index"
)

var tracer = otel.Tracer("aura.engine.session")

// Config holds the manager's tunables.
type Config struct {
	// HistoryWindow is how many prior turns a prompt context considers
	// before the token budget applies.
	HistoryWindow int

	// ContextTokenBudget is the token ceiling for a rendered context.
	ContextTokenBudget int

	// CacheTurns is how many recent turns each session keeps in memory.
	// Reads inside this window never touch the database.
	CacheTurns int

	// TurnQuality is the quality score for remembered utterances. Kept
	// low so live chatter never outranks the curated corpus.
	TurnQuality float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HistoryWindow:      5,
		ContextTokenBudget: 1024,
		CacheTurns:         20,
		TurnQuality:        0.5,
	}
}

// validateConfig corrects out-of-range values, warning about each one.
func validateConfig(config Config) Config {
	defaults := DefaultConfig()

	if config.HistoryWindow < 1 {
		slog.Warn("Invalid HistoryWindow config, using default",
			"provided", config.HistoryWindow, "default", defaults.HistoryWindow)
		config.HistoryWindow = defaults.HistoryWindow
	}
	if config.ContextTokenBudget < 1 {
		slog.Warn("Invalid ContextTokenBudget config, using default",
			"provided", config.ContextTokenBudget, "default", defaults.ContextTokenBudget)
		config.ContextTokenBudget = defaults.ContextTokenBudget
	}
	if config.CacheTurns < config.HistoryWindow {
		slog.Warn("CacheTurns below HistoryWindow, raising to match",
			"provided", config.CacheTurns, "window", config.HistoryWindow)
		config.CacheTurns = config.HistoryWindow
	}
	if config.TurnQuality <= 0 || config.TurnQuality > 1 {
		config.TurnQuality = defaults.TurnQuality
	}

	return config
}

// sessionState is the in-memory side of one session: its writer lock,
// the cached session row, and a bounded write-through cache of the
// newest turns.
type sessionState struct {
	mu      sync.Mutex
	session datatypes.Session

	// turns holds up to CacheTurns entries in conversation order, most
	// recent last. Valid only when warm: a state hydrated on GetOrCreate
	// starts cold and fills on the first read or append.
	turns   []datatypes.ConversationTurn
	warm    bool
	nextSeq int
}

// Manager owns session lifecycle and the one-writer-per-session rule.
//
// # Description
//
// Every mutating operation on a session runs under that session's own
// lock, so two rapid messages from one client cannot interleave their
// history updates or race on context construction. Operations on
// different sessions proceed fully in parallel. The store stays
// authoritative: writes land in SQLite before the cache, and a cold
// cache rebuilds from the store on demand.
//
// # Thread Safety
//
// Safe for concurrent use.
type Manager struct {
	store   *Store
	idx     index.Index
	config  Config
	counter TokenCounter

	mu     sync.Mutex
	states map[string]*sessionState
}

// NewManager wires a manager over its store.
//
// # Inputs
//
//   - store: Durable session storage. Required.
//   - idx: Vector index for remembered utterances. May be nil; the
//     manager then keeps history only in SQLite.
//   - config: Tunables (use DefaultConfig() for defaults).
func NewManager(store *Store, idx index.Index, config Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session manager requires a store")
	}
	return &Manager{
		store:   store,
		idx:     idx,
		config:  validateConfig(config),
		counter: NewTokenCounter(),
		states:  make(map[string]*sessionState),
	}, nil
}

// state returns the in-memory state for a session id, creating the
// entry on first sight. The caller locks the returned state.
func (m *Manager) state(sessionID string) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sessionID]
	if !ok {
		st = &sessionState{}
		m.states[sessionID] = st
	}
	return st
}

// forget drops a session's in-memory state.
func (m *Manager) forget(sessionID string) {
	m.mu.Lock()
	delete(m.states, sessionID)
	m.mu.Unlock()
}

// GetOrCreate returns the session for the id, creating it when absent.
//
// # Description
//
// An empty id mints a fresh session under a new identifier. A known id
// returns the stored session unchanged, so calling GetOrCreate twice
// with the same id yields the same session and no duplicate row. An
// unknown non-empty id creates the session under that id, which lets
// clients resume with tokens they held before a server restart.
//
// # Outputs
//
//   - datatypes.Session: The existing or freshly created session.
//   - bool: True when this call created the session.
//   - error: Non-nil only on a storage failure.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (datatypes.Session, bool, error) {
	_, span := tracer.Start(ctx, "GetOrCreate")
	defer span.End()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	st := m.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.ID != "" {
		return st.session, false, nil
	}

	created := false
	sess, err := m.store.SessionByID(sessionID)
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound):
		now := time.Now().UTC()
		sess = datatypes.Session{ID: sessionID, CreatedAt: now, LastActive: now}
		if err := m.store.InsertSession(sess); err != nil {
			return datatypes.Session{}, false, err
		}
		created = true
		slog.Info("Session created", "session_id", sessionID)
	default:
		return datatypes.Session{}, false, err
	}

	st.session = sess
	return sess, created, nil
}

// AppendTurn appends one turn to a session's log.
//
// # Description
//
// The manager assigns the sequence number and timestamp, persists the
// turn, updates the session's last-active time, and write-through
// caches the turn. The session must exist; handlers establish it with
// GetOrCreate before appending.
//
// # Outputs
//
//   - datatypes.ConversationTurn: The stored turn with ID, Seq, and
//     CreatedAt filled in.
//   - error: ErrSessionNotFound when the session id is unknown.
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, turn datatypes.ConversationTurn) (datatypes.ConversationTurn, error) {
	_, span := tracer.Start(ctx, "AppendTurn")
	defer span.End()

	st := m.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := m.hydrateLocked(st, sessionID); err != nil {
		return datatypes.ConversationTurn{}, err
	}

	turn.SessionID = sessionID
	turn.Seq = st.nextSeq
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	stored, err := m.store.InsertTurn(turn)
	if err != nil {
		return datatypes.ConversationTurn{}, err
	}
	st.nextSeq++

	now := time.Now().UTC()
	if err := m.store.TouchSession(sessionID, now); err != nil {
		return datatypes.ConversationTurn{}, err
	}
	st.session.LastActive = now

	st.turns = append(st.turns, stored)
	if overflow := len(st.turns) - m.config.CacheTurns; overflow > 0 {
		st.turns = append(st.turns[:0], st.turns[overflow:]...)
	}

	return stored, nil
}

// RecentTurns returns the last n turns in conversation order, most
// recent last. Reads within the cache window skip the database.
func (m *Manager) RecentTurns(ctx context.Context, sessionID string, n int) ([]datatypes.ConversationTurn, error) {
	_, span := tracer.Start(ctx, "RecentTurns")
	defer span.End()

	if n <= 0 {
		return nil, nil
	}

	st := m.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := m.hydrateLocked(st, sessionID); err != nil {
		return nil, err
	}
	return m.recentLocked(st, sessionID, n)
}

// BuildContext assembles the token-budgeted prompt context for the
// current utterance, under the session's writer lock so a concurrent
// append cannot change history mid-build.
func (m *Manager) BuildContext(ctx context.Context, sessionID string, mood datatypes.MoodResult, utterance string) (PromptContext, error) {
	_, span := tracer.Start(ctx, "BuildContext")
	defer span.End()

	st := m.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := m.hydrateLocked(st, sessionID); err != nil {
		return PromptContext{}, err
	}
	history, err := m.recentLocked(st, sessionID, m.config.HistoryWindow)
	if err != nil {
		return PromptContext{}, err
	}
	return BuildContext(mood, history, utterance, m.counter, m.config.ContextTokenBudget), nil
}

// RememberUtterance stores a user utterance in the vector index as a
// conversation_turn record so later classification can retrieve it.
//
// # Description
//
// Records carry the configured low quality score and the owning
// session id, which lets session deletion purge them. A nil index
// makes this a no-op. Failures are the caller's to log into the turn
// trace; history in SQLite is unaffected either way.
func (m *Manager) RememberUtterance(ctx context.Context, sessionID, utterance string, category datatypes.Category) error {
	if m.idx == nil {
		return nil
	}

	_, err := m.idx.Insert(ctx, index.Record{
		Kind:      index.KindConversationTurn,
		Text:      utterance,
		Category:  category,
		Quality:   m.config.TurnQuality,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("remembering utterance: %w", err)
	}
	return nil
}

// Stats derives conversation flow stats from the persisted turn count.
func (m *Manager) Stats(ctx context.Context, sessionID string) (datatypes.ConversationStats, error) {
	_, span := tracer.Start(ctx, "Stats")
	defer span.End()

	n, err := m.store.TurnCount(sessionID)
	if err != nil {
		return datatypes.ConversationStats{}, err
	}
	return datatypes.NewConversationStats(n), nil
}

// List returns up to limit sessions, most recently active first.
func (m *Manager) List(ctx context.Context, limit int) ([]datatypes.Session, error) {
	_, span := tracer.Start(ctx, "List")
	defer span.End()
	return m.store.ListSessions(limit)
}

// IdleSessions returns sessions whose last activity predates cutoff,
// oldest first. The cleanup scheduler feeds these into Delete.
func (m *Manager) IdleSessions(ctx context.Context, cutoff time.Time, limit int) ([]datatypes.Session, error) {
	_, span := tracer.Start(ctx, "IdleSessions")
	defer span.End()
	return m.store.StaleSessions(cutoff, limit)
}

// Delete removes a session, its turns, and its vectors.
//
// # Description
//
// Runs under the session's writer lock so an in-flight append finishes
// or fails cleanly rather than racing the delete. Index purge failures
// are logged and swallowed: orphaned conversation_turn vectors decay
// harmlessly, while a half-deleted SQLite session would not.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	_, span := tracer.Start(ctx, "Delete")
	defer span.End()

	st := m.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := m.store.DeleteSession(sessionID); err != nil {
		return err
	}

	// Reset before forgetting: a goroutine already blocked on this
	// state must rehydrate from the store, not serve deleted rows.
	st.session = datatypes.Session{}
	st.turns = nil
	st.warm = false
	st.nextSeq = 0
	m.forget(sessionID)

	if m.idx != nil {
		purged, err := m.idx.PurgeSession(ctx, sessionID)
		if err != nil {
			slog.Warn("Failed to purge session vectors",
				"session_id", sessionID, "error", err)
		} else if purged > 0 {
			slog.Info("Purged session vectors",
				"session_id", sessionID, "count", purged)
		}
	}

	slog.Info("Session deleted", "session_id", sessionID)
	return nil
}

// hydrateLocked fills a cold state from the store. Must be called with
// the state lock held.
func (m *Manager) hydrateLocked(st *sessionState, sessionID string) error {
	if st.session.ID == "" {
		sess, err := m.store.SessionByID(sessionID)
		if err != nil {
			return err
		}
		st.session = sess
	}
	if !st.warm {
		turns, err := m.store.RecentTurns(sessionID, m.config.CacheTurns)
		if err != nil {
			return err
		}
		next, err := m.store.NextSeq(sessionID)
		if err != nil {
			return err
		}
		st.turns = turns
		st.nextSeq = next
		st.warm = true
	}
	return nil
}

// recentLocked serves the last n turns from cache when they fit, from
// the store otherwise. Must be called with the state lock held.
func (m *Manager) recentLocked(st *sessionState, sessionID string, n int) ([]datatypes.ConversationTurn, error) {
	stored := st.nextSeq - 1
	if n <= len(st.turns) || len(st.turns) == stored {
		turns := st.turns
		if n < len(turns) {
			turns = turns[len(turns)-n:]
		}
		out := make([]datatypes.ConversationTurn, len(turns))
		copy(out, turns)
		return out, nil
	}
	return m.store.RecentTurns(sessionID, n)
}
