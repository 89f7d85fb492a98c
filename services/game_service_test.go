package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gamesync/models"
)

func TestGameLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.games.newCode = func() string { return "ABC123" }
	ctx := context.Background()

	created := env.create(t, alice, 4)
	if created.GameCode != "ABC123" {
		t.Fatalf("GameCode = %q, want %q", created.GameCode, "ABC123")
	}
	if created.Status != models.StatusWaiting {
		t.Errorf("Status = %q, want %q", created.Status, models.StatusWaiting)
	}
	if host := created.Host(); host == nil || host.ID != alice.UID {
		t.Errorf("Host() = %+v, want %s", host, alice.UID)
	}

	id, err := env.games.JoinGameSession(ctx, bob, "  abc123 ")
	if err != nil {
		t.Fatalf("JoinGameSession() error: %v", err)
	}
	if id != created.ID {
		t.Errorf("joined id = %q, want %q", id, created.ID)
	}

	ready, err := env.games.TogglePlayerReady(ctx, bob, id)
	if err != nil || !ready {
		t.Fatalf("TogglePlayerReady() = %v, %v; want true, nil", ready, err)
	}

	if _, err := env.games.StartGame(ctx, bob, id); !errors.Is(err, ErrNotHost) {
		t.Errorf("StartGame(non-host) error = %v, want %v", err, ErrNotHost)
	}

	env.clock.Advance(time.Second)
	started, err := env.games.StartGame(ctx, alice, id)
	if err != nil {
		t.Fatalf("StartGame() error: %v", err)
	}
	if started.Status != models.StatusPlaying {
		t.Errorf("Status = %q, want %q", started.Status, models.StatusPlaying)
	}
	for _, uid := range []string{alice.UID, bob.UID} {
		if got := started.PlayerScores[uid]; got != startingScore {
			t.Errorf("score[%s] = %d, want %d", uid, got, startingScore)
		}
	}
	if started.Timer == nil || !started.Timer.Initialized || started.Timer.Duration != 300 {
		t.Errorf("Timer = %+v, want 300s initialized", started.Timer)
	}
	if started.Timer.StartTime != env.clock.Now().UnixMilli() {
		t.Errorf("Timer.StartTime = %d, want %d", started.Timer.StartTime, env.clock.Now().UnixMilli())
	}

	if _, err := env.games.JoinGameSession(ctx, carol, "ABC123"); !errors.Is(err, ErrGameStarted) {
		t.Errorf("join after start error = %v, want %v", err, ErrGameStarted)
	}
	if _, err := env.games.StartGame(ctx, alice, id); !errors.Is(err, ErrGameStarted) {
		t.Errorf("second StartGame() error = %v, want %v", err, ErrGameStarted)
	}

	env.clock.Advance(time.Second)
	if err := env.games.LeaveGameSession(ctx, bob, id); err != nil {
		t.Fatalf("LeaveGameSession() during play error: %v", err)
	}
	after := env.session(t, id)
	if after.Status != models.StatusPlaying {
		t.Errorf("Status after leave = %q, want %q", after.Status, models.StatusPlaying)
	}
	if len(after.Players) != 1 || after.Players[0].ID != alice.UID {
		t.Errorf("players after leave = %+v, want only alice", after.Players)
	}
	if host := after.Host(); host == nil || host.ID != alice.UID {
		t.Errorf("Host() after leave = %+v, want %s", host, alice.UID)
	}

	texts := env.chatTexts(t, id)
	want := []string{"Bob joined the game", "The game has started", "Bob left the game"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("chat = %q, want %q", texts, want)
	}
}

func TestJoinGameSessionErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	full := env.create(t, alice, 1)
	finished := env.create(t, carol, 3)
	if _, err := env.games.StartGame(ctx, carol, finished.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.games.FinishGame(ctx, carol, finished.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		code string
		want error
	}{
		{"unknown code", "ZZZZZZ", ErrSessionNotFound},
		{"empty code", "   ", ErrSessionNotFound},
		{"illegal characters", "AB.C#1", ErrSessionNotFound},
		{"over capacity", full.GameCode, ErrGameFull},
		{"finished", finished.GameCode, ErrGameFinished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.games.JoinGameSession(ctx, bob, tt.code)
			if !errors.Is(err, tt.want) {
				t.Errorf("JoinGameSession(%q) error = %v, want %v", tt.code, err, tt.want)
			}
		})
	}

	if got := len(env.session(t, full.ID).Players); got != 1 {
		t.Errorf("players after rejected join = %d, want 1", got)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	session := env.create(t, alice, 4)

	env.join(t, bob, session.GameCode)
	env.join(t, bob, session.GameCode)
	env.join(t, alice, session.GameCode)

	got := env.session(t, session.ID)
	if len(got.Players) != 2 {
		t.Errorf("players = %d, want 2", len(got.Players))
	}

	joins := 0
	for _, text := range env.chatTexts(t, session.ID) {
		if text == "Bob joined the game" {
			joins++
		}
	}
	if joins != 1 {
		t.Errorf("join announcements = %d, want 1", joins)
	}
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	env := newTestEnv(t)
	session := env.create(t, alice, 5)

	const joiners = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		full     int
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := user("u-"+string(rune('a'+i)), "P")
			_, err := env.games.JoinGameSession(context.Background(), who, session.GameCode)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrGameFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if accepted != 4 || full != joiners-4 {
		t.Errorf("accepted = %d, full = %d; want 4, %d", accepted, full, joiners-4)
	}
	got := env.session(t, session.ID)
	if len(got.Players) != 5 {
		t.Errorf("players = %d, want 5", len(got.Players))
	}
	hosts := 0
	for _, p := range got.Players {
		if p.IsHost {
			hosts++
		}
	}
	if hosts != 1 {
		t.Errorf("hosts = %d, want 1", hosts)
	}
}

func TestLeaveTransfersHost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 4)
	env.join(t, bob, session.GameCode)
	env.join(t, carol, session.GameCode)

	if err := env.games.LeaveGameSession(ctx, alice, session.ID); err != nil {
		t.Fatalf("LeaveGameSession() error: %v", err)
	}

	got := env.session(t, session.ID)
	if len(got.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(got.Players))
	}
	if host := got.Host(); host == nil || host.ID != bob.UID {
		t.Errorf("Host() = %+v, want %s", host, bob.UID)
	}
	if p, _ := got.Player(carol.UID); p == nil || p.IsHost {
		t.Errorf("carol = %+v, want non-host member", p)
	}

	texts := env.chatTexts(t, session.ID)
	for _, want := range []string{"Alice left the game", "Bob is now the host"} {
		if !contains(texts, want) {
			t.Errorf("chat %q missing %q", texts, want)
		}
	}

	if err := env.games.LeaveGameSession(ctx, alice, session.ID); !errors.Is(err, ErrNotInSession) {
		t.Errorf("second leave error = %v, want %v", err, ErrNotInSession)
	}
}

func TestLastLeaveDeletesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 4)
	env.join(t, bob, session.GameCode)
	if _, err := env.games.UpdateGameState(ctx, alice, session.ID, models.GameState{"progress": 10}); err != nil {
		t.Fatal(err)
	}

	for _, who := range []models.Identity{alice, bob} {
		if err := env.games.LeaveGameSession(ctx, who, session.ID); err != nil {
			t.Fatalf("LeaveGameSession(%s) error: %v", who.UID, err)
		}
	}

	if _, err := env.games.GetSession(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want %v", err, ErrSessionNotFound)
	}
	if _, err := env.games.FindByCode(ctx, session.GameCode); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("FindByCode() error = %v, want %v", err, ErrSessionNotFound)
	}
	if texts := env.chatTexts(t, session.ID); len(texts) != 0 {
		t.Errorf("chat after delete = %q, want empty", texts)
	}
	state, err := env.games.GetGameState(ctx, session.ID)
	if err != nil || len(state) != 0 {
		t.Errorf("GetGameState() = %v, %v; want empty", state, err)
	}
	snap, _ := env.store.Get(ctx, codePath(session.GameCode))
	if snap.Exists {
		t.Errorf("code claim %s still exists", session.GameCode)
	}
}

func TestCreateSkipsTakenCodes(t *testing.T) {
	env := newTestEnv(t)
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	env.games.newCode = func() string {
		code := codes[0]
		codes = codes[1:]
		return code
	}

	first := env.create(t, alice, 2)
	second := env.create(t, bob, 2)
	if first.GameCode != "AAAAAA" || second.GameCode != "BBBBBB" {
		t.Errorf("codes = %q, %q; want AAAAAA, BBBBBB", first.GameCode, second.GameCode)
	}

	found, err := env.games.FindByCode(context.Background(), "bbbbbb")
	if err != nil {
		t.Fatalf("FindByCode() error: %v", err)
	}
	if found.ID != second.ID {
		t.Errorf("FindByCode() = %s, want %s", found.ID, second.ID)
	}
}

func TestCreateReleasesOnlyAbandonedClaims(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now().UnixMilli()

	// A create that reserved FRESH1 but has not written its session yet, and
	// a claim left behind long ago by a session that no longer exists.
	env.store.Set(ctx, codePath("FRESH1"), models.GameCodeClaim{SessionID: "pending", CreatedAt: now})
	env.store.Set(ctx, codePath("STALE1"), models.GameCodeClaim{SessionID: "gone", CreatedAt: now - 2*claimGrace.Milliseconds()})

	codes := []string{"FRESH1", "STALE1", "STALE1"}
	env.games.newCode = func() string {
		code := codes[0]
		codes = codes[1:]
		return code
	}

	session := env.create(t, alice, 2)
	if session.GameCode != "STALE1" {
		t.Errorf("GameCode = %q, want %q", session.GameCode, "STALE1")
	}

	snap, err := env.store.Get(ctx, codePath("FRESH1"))
	if err != nil {
		t.Fatal(err)
	}
	var claim models.GameCodeClaim
	snap.Decode(&claim)
	if !snap.Exists || claim.SessionID != "pending" {
		t.Errorf("fresh claim = %+v (exists %v), want it kept for %q", claim, snap.Exists, "pending")
	}

	found, err := env.games.FindByCode(ctx, "STALE1")
	if err != nil || found.ID != session.ID {
		t.Errorf("FindByCode(STALE1) = %v, %v; want %s", found, err, session.ID)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		req  CreateSessionRequest
	}{
		{"blank name", CreateSessionRequest{Name: "  ", TimeLimit: 5, MaxPlayers: 2}},
		{"no time", CreateSessionRequest{Name: "x", TimeLimit: 0, MaxPlayers: 2}},
		{"no room", CreateSessionRequest{Name: "x", TimeLimit: 5, MaxPlayers: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.games.CreateGameSession(context.Background(), alice, &tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want %v", err, ErrInvalidRequest)
			}
		})
	}
}

func TestExpireGame(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 2)

	if err := env.games.ExpireGame(ctx, session.ID); err != nil {
		t.Fatalf("ExpireGame(waiting) error: %v", err)
	}
	if _, err := env.games.StartGame(ctx, alice, session.ID); err != nil {
		t.Fatal(err)
	}

	env.clock.Advance(4 * time.Minute)
	if err := env.games.ExpireGame(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if got := env.session(t, session.ID).Status; got != models.StatusPlaying {
		t.Errorf("Status before deadline = %q, want %q", got, models.StatusPlaying)
	}

	env.clock.Advance(time.Minute)
	if err := env.games.ExpireGame(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	got := env.session(t, session.ID)
	if got.Status != models.StatusFinished {
		t.Errorf("Status after deadline = %q, want %q", got.Status, models.StatusFinished)
	}
	if got.Timer.Remaining(env.clock.Now()) != 0 {
		t.Errorf("Remaining() = %d, want 0", got.Timer.Remaining(env.clock.Now()))
	}
	if !contains(env.chatTexts(t, session.ID), "Time's up! The game has finished") {
		t.Errorf("missing expiry announcement")
	}

	if err := env.games.ExpireGame(ctx, "missing"); err != nil {
		t.Errorf("ExpireGame(missing) error = %v, want nil", err)
	}
}

func TestFinishGameRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 3)
	env.join(t, bob, session.GameCode)

	if _, err := env.games.FinishGame(ctx, alice, session.ID); !errors.Is(err, ErrGameNotPlaying) {
		t.Errorf("FinishGame(waiting) error = %v, want %v", err, ErrGameNotPlaying)
	}
	env.games.StartGame(ctx, alice, session.ID)
	if _, err := env.games.FinishGame(ctx, bob, session.ID); !errors.Is(err, ErrNotHost) {
		t.Errorf("FinishGame(non-host) error = %v, want %v", err, ErrNotHost)
	}
	if _, err := env.games.FinishGame(ctx, carol, session.ID); !errors.Is(err, ErrNotInSession) {
		t.Errorf("FinishGame(stranger) error = %v, want %v", err, ErrNotInSession)
	}

	finished, err := env.games.FinishGame(ctx, alice, session.ID)
	if err != nil {
		t.Fatalf("FinishGame() error: %v", err)
	}
	if finished.Status != models.StatusFinished || finished.FinishedAt != env.clock.Now().UnixMilli() {
		t.Errorf("finished = %q at %d, want %q at %d", finished.Status, finished.FinishedAt, models.StatusFinished, env.clock.Now().UnixMilli())
	}
	if !contains(env.chatTexts(t, session.ID), "Alice ended the game") {
		t.Error("missing finish announcement")
	}
	if _, err := env.games.FinishGame(ctx, alice, session.ID); !errors.Is(err, ErrGameNotPlaying) {
		t.Errorf("second FinishGame() error = %v, want %v", err, ErrGameNotPlaying)
	}
}

func TestUpdateGameStateMerges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 3)
	env.join(t, bob, session.GameCode)

	var wg sync.WaitGroup
	for i, who := range []models.Identity{alice, bob} {
		wg.Add(1)
		go func(key string, who models.Identity) {
			defer wg.Done()
			if _, err := env.games.UpdateGameState(ctx, who, session.ID, models.GameState{key: 1}); err != nil {
				t.Errorf("UpdateGameState() error: %v", err)
			}
		}([]string{"currentTurn", "progress"}[i], who)
	}
	wg.Wait()

	state, err := env.games.GetGameState(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := state["currentTurn"]; !ok {
		t.Errorf("state %v lost currentTurn", state)
	}
	if _, ok := state["progress"]; !ok {
		t.Errorf("state %v lost progress", state)
	}

	state, err = env.games.UpdateGameState(ctx, alice, session.ID, models.GameState{"currentTurn": nil})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := state["currentTurn"]; ok {
		t.Errorf("state %v still has currentTurn after nil update", state)
	}

	if _, err := env.games.UpdateGameState(ctx, carol, session.ID, models.GameState{"x": 1}); !errors.Is(err, ErrNotInSession) {
		t.Errorf("UpdateGameState(stranger) error = %v, want %v", err, ErrNotInSession)
	}
}

func TestAddChatMessage(t *testing.T) {
	env := newTestEnv(t)
	env.games.UseModerator(NewModerator([]string{"darn"}))
	ctx := context.Background()
	session := env.create(t, alice, 2)

	tests := []struct {
		name string
		who  models.Identity
		text string
		want error
	}{
		{"member", alice, "hello", nil},
		{"empty", alice, "   ", ErrInvalidRequest},
		{"too long", alice, strings.Repeat("x", maxChatLength+1), ErrInvalidRequest},
		{"stranger", carol, "hi", ErrNotInSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.games.AddChatMessage(ctx, tt.who, session.ID, tt.text, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	msg, err := env.games.AddChatMessage(ctx, alice, session.ID, "oh darn it", false)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Message != "oh **** it" {
		t.Errorf("Message = %q, want %q", msg.Message, "oh **** it")
	}
	if msg.SenderID != alice.UID || msg.IsSystem {
		t.Errorf("message = %+v, want user message from alice", msg)
	}

	sys, err := env.games.AddChatMessage(ctx, models.Identity{}, session.ID, "Round over", true)
	if err != nil {
		t.Fatal(err)
	}
	if !sys.IsSystem || sys.SenderID != models.SystemSenderID {
		t.Errorf("system message = %+v", sys)
	}

	if _, err := env.games.AddChatMessage(ctx, models.Identity{}, "missing", "Round over", true); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("system message to missing game error = %v, want %v", err, ErrSessionNotFound)
	}
	if snap, _ := env.store.Get(ctx, chatPath("missing")); snap.Exists {
		t.Error("system message created a chat for a missing game")
	}
}

func TestAnnouncementAfterDeleteLeavesNoChat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.create(t, alice, 2)
	env.join(t, bob, session.GameCode)

	// Bob's leave committed, then alice's last leave deleted the session and
	// cleaned up before bob's announcement was posted.
	for _, who := range []models.Identity{bob, alice} {
		if err := env.games.LeaveGameSession(ctx, who, session.ID); err != nil {
			t.Fatal(err)
		}
	}
	env.games.announce(ctx, session.ID, "Bob left the game")

	if snap, _ := env.store.Get(ctx, chatPath(session.ID)); snap.Exists {
		t.Errorf("chat for deleted game %s was recreated", session.ID)
	}
}
