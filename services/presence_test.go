package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gamesync/models"
)

func startedSession(t *testing.T, env *testEnv, players ...models.Identity) *models.GameSession {
	t.Helper()
	session := env.create(t, players[0], 4)
	for _, p := range players[1:] {
		env.join(t, p, session.GameCode)
	}
	if _, err := env.games.StartGame(context.Background(), players[0], session.ID); err != nil {
		t.Fatalf("StartGame() error: %v", err)
	}
	return session
}

func TestUpdateCursorThrottles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 3)
	env.join(t, bob, session.GameCode)

	steps := []struct {
		advance time.Duration
		want    bool
	}{
		{0, true},
		{10 * time.Millisecond, false},
		{30 * time.Millisecond, false},
		{20 * time.Millisecond, true},
	}
	for i, step := range steps {
		env.clock.Advance(step.advance)
		got, err := env.presence.UpdateCursor(ctx, alice, session.ID, float64(i), 1)
		if err != nil {
			t.Fatalf("step %d: UpdateCursor() error: %v", i, err)
		}
		if got != step.want {
			t.Errorf("step %d: UpdateCursor() = %v, want %v", i, got, step.want)
		}
	}

	cursors, err := env.presence.ActiveCursors(ctx, bob, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cursors) != 1 || cursors[0].PlayerID != alice.UID || cursors[0].X != 3 {
		t.Fatalf("ActiveCursors() = %+v, want alice at x=3", cursors)
	}
	if cursors[0].Color != colorFor(alice.UID) {
		t.Errorf("Color = %q, want %q", cursors[0].Color, colorFor(alice.UID))
	}

	if own, _ := env.presence.ActiveCursors(ctx, alice, session.ID); len(own) != 0 {
		t.Errorf("ActiveCursors(self) = %+v, want none", own)
	}

	env.clock.Advance(models.StaleAfter + time.Millisecond)
	if stale, _ := env.presence.ActiveCursors(ctx, bob, session.ID); len(stale) != 0 {
		t.Errorf("ActiveCursors() after %s = %+v, want none", models.StaleAfter, stale)
	}

	if _, err := env.presence.UpdateCursor(ctx, carol, session.ID, 1, 1); !errors.Is(err, ErrNotInSession) {
		t.Errorf("UpdateCursor(stranger) error = %v, want %v", err, ErrNotInSession)
	}
}

func TestCursorDoesNotResurrectDeletedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 2)
	if err := env.games.LeaveGameSession(ctx, alice, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.presence.UpdateCursor(ctx, alice, session.ID, 1, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("UpdateCursor() error = %v, want %v", err, ErrSessionNotFound)
	}
	snap, _ := env.store.Get(ctx, sessionPath(session.ID))
	if snap.Exists {
		t.Error("session document was recreated")
	}
	if snap, _ := env.store.Get(ctx, cursorPath(session.ID)); snap.Exists {
		t.Error("cursor document exists for a deleted session")
	}
}

func TestRejectedCursorDoesNotUseThrottle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 3)

	if _, err := env.presence.UpdateCursor(ctx, bob, session.ID, 1, 1); !errors.Is(err, ErrNotInSession) {
		t.Fatalf("UpdateCursor(before join) error = %v, want %v", err, ErrNotInSession)
	}
	env.join(t, bob, session.GameCode)
	ok, err := env.presence.UpdateCursor(ctx, bob, session.ID, 2, 2)
	if err != nil || !ok {
		t.Errorf("UpdateCursor(after join) = %v, %v; want true, nil", ok, err)
	}

	env.clock.Advance(DefaultCursorThrottle)
	if _, err := env.games.StartGame(ctx, alice, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.games.FinishGame(ctx, alice, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.presence.UpdateCursor(ctx, alice, session.ID, 3, 3); !errors.Is(err, ErrGameFinished) {
		t.Errorf("UpdateCursor(finished) error = %v, want %v", err, ErrGameFinished)
	}
	if snap, _ := env.store.Get(ctx, cursorPath(session.ID)); snap.Exists {
		t.Error("finished game still has cursors")
	}
}

func TestCursorMovesLeaveSessionUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 3)
	env.join(t, bob, session.GameCode)

	before, err := env.store.Get(ctx, sessionPath(session.ID))
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	published := 0
	unsub, err := env.directory.Watch(ctx, func([]models.GameSession) {
		mu.Lock()
		published++
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return published == 1
	})

	var seen []models.Cursor
	var seenMu sync.Mutex
	stop, err := env.presence.WatchCursors(ctx, bob, session.ID, func(cursors []models.Cursor) {
		seenMu.Lock()
		seen = cursors
		seenMu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	for i := 0; i < 5; i++ {
		env.clock.Advance(DefaultCursorThrottle)
		if _, err := env.presence.UpdateCursor(ctx, alice, session.ID, float64(i), 1); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool {
		seenMu.Lock()
		defer seenMu.Unlock()
		return len(seen) == 1 && seen[0].X == 4
	})

	after, err := env.store.Get(ctx, sessionPath(session.ID))
	if err != nil {
		t.Fatal(err)
	}
	if string(after.Value) != string(before.Value) {
		t.Errorf("session document changed on cursor moves:\n%s\nwant\n%s", after.Value, before.Value)
	}
	mu.Lock()
	defer mu.Unlock()
	if published != 1 {
		t.Errorf("directory published %d times, want 1", published)
	}
}

func TestWordLocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := startedSession(t, env, alice, bob)
	board, err := env.words.NewRound(ctx, alice, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	wordID := board.Words[0].ID

	if _, err := env.presence.ClaimWord(ctx, alice, session.ID, wordID); err != nil {
		t.Fatalf("ClaimWord() error: %v", err)
	}
	if _, err := env.presence.ClaimWord(ctx, bob, session.ID, wordID); !errors.Is(err, ErrWordLocked) {
		t.Errorf("ClaimWord(bob) error = %v, want %v", err, ErrWordLocked)
	}
	if err := env.presence.ReleaseWord(ctx, bob, session.ID, wordID); !errors.Is(err, ErrWordLocked) {
		t.Errorf("ReleaseWord(bob) error = %v, want %v", err, ErrWordLocked)
	}
	if _, err := env.presence.ClaimWord(ctx, alice, session.ID, "w999"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("ClaimWord(unknown) error = %v, want %v", err, ErrInvalidRequest)
	}

	env.clock.Advance(models.StaleAfter + time.Second)
	lock, err := env.presence.ClaimWord(ctx, bob, session.ID, wordID)
	if err != nil {
		t.Fatalf("ClaimWord(abandoned) error: %v", err)
	}
	if lock.DraggedBy != bob.UID {
		t.Errorf("DraggedBy = %q, want %q", lock.DraggedBy, bob.UID)
	}

	env.presence.UpdateCursor(ctx, bob, session.ID, 5, 5)
	if err := env.games.LeaveGameSession(ctx, bob, session.ID); err != nil {
		t.Fatal(err)
	}
	if cursors, _ := env.presence.ActiveCursors(ctx, alice, session.ID); len(cursors) != 0 {
		t.Errorf("cursors after leave = %+v, want none", cursors)
	}
	got := env.session(t, session.ID)
	if _, ok := got.DraggedWords[wordID]; ok {
		t.Error("drag lock survived leave")
	}

	if err := env.presence.ReleaseWord(ctx, alice, session.ID, wordID); err != nil {
		t.Errorf("ReleaseWord(unlocked) error = %v, want nil", err)
	}
}
