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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraquotes/aura/services/engine/datatypes"
	"github.com/auraquotes/aura/services/engine/index"
)

// =============================================================================
// MOCK IMPLEMENTATIONS
// =============================================================================

type mockIndex struct {
	mu         sync.Mutex
	inserted   []index.Record
	purged     []string
	insertErr  error
	purgeErr   error
	purgeCount int
}

func (m *mockIndex) EnsureSchema(ctx context.Context) error { return nil }

func (m *mockIndex) Insert(ctx context.Context, rec index.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.inserted = append(m.inserted, rec)
	return fmt.Sprintf("rec-%d", len(m.inserted)), nil
}

func (m *mockIndex) Search(ctx context.Context, query string, opts index.SearchOptions) ([]index.Hit, error) {
	return nil, nil
}

func (m *mockIndex) Count(ctx context.Context, kind index.RecordKind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted), nil
}

func (m *mockIndex) Remove(ctx context.Context, recordID string) error { return nil }

func (m *mockIndex) PurgeSession(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.purgeErr != nil {
		return 0, m.purgeErr
	}
	m.purged = append(m.purged, sessionID)
	return m.purgeCount, nil
}

func (m *mockIndex) insertedRecords() []index.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]index.Record, len(m.inserted))
	copy(out, m.inserted)
	return out
}

// =============================================================================
// TESTS
// =============================================================================

func newTestManager(t *testing.T) (*Manager, *mockIndex) {
	t.Helper()
	store := openTestStore(t)
	idx := &mockIndex{purgeCount: 2}
	mgr, err := NewManager(store, idx, DefaultConfig())
	require.NoError(t, err)
	return mgr, idx
}

func appendUserTurn(t *testing.T, mgr *Manager, sessionID, content string) datatypes.ConversationTurn {
	t.Helper()
	turn, err := mgr.AppendTurn(context.Background(), sessionID, datatypes.ConversationTurn{
		Role:    datatypes.RoleUser,
		Content: content,
	})
	require.NoError(t, err)
	return turn
}

func TestNewManagerRequiresStore(t *testing.T) {
	_, err := NewManager(nil, nil, DefaultConfig())
	assert.Error(t, err)
}

func TestGetOrCreateMintsSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, created, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.CreatedAt.IsZero())
	assert.False(t, sess.LastActive.IsZero())

	again, created, err := mgr.GetOrCreate(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, again.ID)

	count, err := mgr.store.SessionCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetOrCreateAdoptsClientID(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, created, err := mgr.GetOrCreate(ctx, "client-held-token")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "client-held-token", sess.ID)

	again, created, err := mgr.GetOrCreate(ctx, "client-held-token")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.CreatedAt, again.CreatedAt)

	count, err := mgr.store.SessionCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAppendTurnAssignsSequence(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)

	first := appendUserTurn(t, mgr, sess.ID, "first message")
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, sess.ID, first.SessionID)
	assert.Greater(t, first.ID, int64(0))
	assert.False(t, first.CreatedAt.IsZero())

	second, err := mgr.AppendTurn(ctx, sess.ID, datatypes.ConversationTurn{
		Role:    datatypes.RoleAssistant,
		Content: "second message",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Seq)

	turns, err := mgr.RecentTurns(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first message", turns[0].Content)
	assert.Equal(t, "second message", turns[1].Content)
}

func TestAppendTurnUnknownSessionFails(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.AppendTurn(context.Background(), "ghost", datatypes.ConversationTurn{
		Role:    datatypes.RoleUser,
		Content: "anyone there?",
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendTurnAdvancesLastActive(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)

	// Back-date the session so the append visibly moves last_active.
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, mgr.store.TouchSession(sess.ID, past))

	appendUserTurn(t, mgr, sess.ID, "still here")

	stored, err := mgr.store.SessionByID(sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastActive.After(past))
}

func TestRecentTurnsSurvivesRestart(t *testing.T) {
	store := openTestStore(t)
	mgr, err := NewManager(store, nil, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		appendUserTurn(t, mgr, sess.ID, fmt.Sprintf("message %d", i))
	}

	// A fresh manager over the same store starts with a cold cache.
	fresh, err := NewManager(store, nil, DefaultConfig())
	require.NoError(t, err)

	turns, err := fresh.RecentTurns(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "message 1", turns[0].Content)
	assert.Equal(t, "message 3", turns[2].Content)

	next, err := fresh.AppendTurn(ctx, sess.ID, datatypes.ConversationTurn{
		Role:    datatypes.RoleUser,
		Content: "message 4",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, next.Seq)
}

func TestRecentTurnsBeyondCacheReadsStore(t *testing.T) {
	store := openTestStore(t)
	mgr, err := NewManager(store, nil, Config{
		HistoryWindow:      2,
		ContextTokenBudget: 1024,
		CacheTurns:         2,
		TurnQuality:        0.5,
	})
	require.NoError(t, err)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		appendUserTurn(t, mgr, sess.ID, fmt.Sprintf("message %d", i))
	}

	cached, err := mgr.RecentTurns(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "message 3", cached[0].Content)
	assert.Equal(t, "message 4", cached[1].Content)

	all, err := mgr.RecentTurns(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "message 1", all[0].Content)
	assert.Equal(t, "message 4", all[3].Content)
}

func TestBuildContextUsesRecentHistory(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)
	for i := 1; i <= 7; i++ {
		appendUserTurn(t, mgr, sess.ID, fmt.Sprintf("message %d", i))
	}

	mood := datatypes.MoodResult{
		Label:      datatypes.CategoryMotivational,
		Confidence: 0.8,
	}
	pc, err := mgr.BuildContext(ctx, sess.ID, mood, "one more thing")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(pc.Turns), 5)
	require.NotEmpty(t, pc.Turns)
	assert.Equal(t, "message 7", pc.Turns[len(pc.Turns)-1].Content)
	assert.NotContains(t, pc.Render(), "message 1")
	assert.Contains(t, pc.Render(), "Mood: motivational")
	assert.Contains(t, pc.Render(), "Current message: one more thing")
}

func TestBuildContextUnknownSessionFails(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.BuildContext(context.Background(), "ghost", datatypes.MoodResult{}, "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRememberUtterance(t *testing.T) {
	mgr, idx := newTestManager(t)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)

	err = mgr.RememberUtterance(ctx, sess.ID, "I need motivation", datatypes.CategoryMotivational)
	require.NoError(t, err)

	records := idx.insertedRecords()
	require.Len(t, records, 1)
	assert.Equal(t, index.KindConversationTurn, records[0].Kind)
	assert.Equal(t, "I need motivation", records[0].Text)
	assert.Equal(t, datatypes.CategoryMotivational, records[0].Category)
	assert.Equal(t, 0.5, records[0].Quality)
	assert.Equal(t, sess.ID, records[0].SessionID)
}

func TestRememberUtteranceWithoutIndexIsNoop(t *testing.T) {
	store := openTestStore(t)
	mgr, err := NewManager(store, nil, DefaultConfig())
	require.NoError(t, err)

	err = mgr.RememberUtterance(context.Background(), "sess", "hello", datatypes.CategoryGeneral)
	assert.NoError(t, err)
}

func TestRememberUtteranceReportsIndexFailure(t *testing.T) {
	mgr, idx := newTestManager(t)
	idx.insertErr = errors.New("index down")

	err := mgr.RememberUtterance(context.Background(), "sess", "hello", datatypes.CategoryGeneral)
	assert.ErrorContains(t, err, "index down")
}

func TestDeleteRemovesSessionAndVectors(t *testing.T) {
	mgr, idx := newTestManager(t)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)
	appendUserTurn(t, mgr, sess.ID, "soon gone")

	require.NoError(t, mgr.Delete(ctx, sess.ID))

	_, err = mgr.store.SessionByID(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, []string{sess.ID}, idx.purged)

	assert.ErrorIs(t, mgr.Delete(ctx, sess.ID), ErrSessionNotFound)

	// The id is free again: get-or-create starts a fresh session.
	reborn, created, err := mgr.GetOrCreate(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, sess.ID, reborn.ID)

	turns, err := mgr.RecentTurns(ctx, sess.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDeleteSurvivesPurgeFailure(t *testing.T) {
	mgr, idx := newTestManager(t)
	idx.purgeErr = errors.New("index down")
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, sess.ID))

	_, err = mgr.store.SessionByID(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStats(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)

	stats, err := mgr.Stats(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, stats.IsNewConversation)
	assert.Equal(t, "opening", stats.Stage)

	for i := 0; i < 3; i++ {
		appendUserTurn(t, mgr, sess.ID, "another message")
	}

	stats, err = mgr.Stats(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, stats.IsNewConversation)
	assert.Equal(t, 3, stats.MessageCount)
	assert.Equal(t, "ongoing", stats.Stage)
	assert.InDelta(t, 0.3, stats.EngagementLevel, 1e-9)
}

func TestListAndIdleSessions(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	oldSess, _, err := mgr.GetOrCreate(ctx, "old-session")
	require.NoError(t, err)
	_, _, err = mgr.GetOrCreate(ctx, "fresh-session")
	require.NoError(t, err)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, mgr.store.TouchSession(oldSess.ID, cutoff.Add(-time.Hour)))

	sessions, err := mgr.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, "fresh-session", sessions[0].ID)

	idle, err := mgr.IdleSessions(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, "old-session", idle[0].ID)
}

func TestConcurrentAppendsStaySequential(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, _, err := mgr.GetOrCreate(ctx, "")
	require.NoError(t, err)

	const writers = 4
	const perWriter = 5

	errs := make(chan error, writers*perWriter)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := mgr.AppendTurn(ctx, sess.ID, datatypes.ConversationTurn{
					Role:    datatypes.RoleUser,
					Content: "racing message",
				})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	turns, err := mgr.RecentTurns(ctx, sess.ID, writers*perWriter)
	require.NoError(t, err)
	require.Len(t, turns, writers*perWriter)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Seq)
	}
}

func TestValidateConfigDefaults(t *testing.T) {
	config := validateConfig(Config{})
	defaults := DefaultConfig()

	assert.Equal(t, defaults.HistoryWindow, config.HistoryWindow)
	assert.Equal(t, defaults.ContextTokenBudget, config.ContextTokenBudget)
	assert.Equal(t, defaults.TurnQuality, config.TurnQuality)
	// CacheTurns rises to the history window, not to the full default.
	assert.Equal(t, config.HistoryWindow, config.CacheTurns)

	kept := validateConfig(DefaultConfig())
	assert.Equal(t, defaults, kept)
}
