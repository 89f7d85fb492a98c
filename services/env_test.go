package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gamesync/models"
	"gamesync/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	store     *store.Store
	clock     *fakeClock
	chat      *ChatChannel
	games     *GameService
	directory *SessionDirectory
	presence  *PresenceService
	templates *TemplateService
	words     *WordGameService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.New(store.NewMemoryBackend())
	clock := newFakeClock()

	chat := NewChatChannel(st)
	chat.now = clock.Now
	games := NewGameService(st, chat)
	games.now = clock.Now
	presence := NewPresenceService(st, DefaultCursorThrottle)
	presence.now = clock.Now
	templates := NewTemplateService(st)
	templates.now = clock.Now
	words := NewWordGameService(st, templates, time.Hour)
	words.now = clock.Now
	words.intn = func(int) int { return 0 }

	t.Cleanup(func() {
		words.Stop()
		st.Close()
	})
	return &testEnv{
		store:     st,
		clock:     clock,
		chat:      chat,
		games:     games,
		directory: NewSessionDirectory(st),
		presence:  presence,
		templates: templates,
		words:     words,
	}
}

func user(uid, name string) models.Identity {
	return models.Identity{UID: uid, DisplayName: name, Email: uid + "@example.com"}
}

var (
	alice = user("u-alice", "Alice")
	bob   = user("u-bob", "Bob")
	carol = user("u-carol", "Carol")
)

func (e *testEnv) create(t *testing.T, host models.Identity, maxPlayers int) *models.GameSession {
	t.Helper()
	session, err := e.games.CreateGameSession(context.Background(), host, &CreateSessionRequest{
		Name:       "Morning practice",
		Category:   "grammar",
		Difficulty: "easy",
		TimeLimit:  5,
		MaxPlayers: maxPlayers,
	})
	if err != nil {
		t.Fatalf("CreateGameSession() error: %v", err)
	}
	return session
}

func (e *testEnv) join(t *testing.T, who models.Identity, code string) {
	t.Helper()
	if _, err := e.games.JoinGameSession(context.Background(), who, code); err != nil {
		t.Fatalf("JoinGameSession(%s) error: %v", who.UID, err)
	}
}

func (e *testEnv) session(t *testing.T, id string) *models.GameSession {
	t.Helper()
	session, err := e.games.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	return session
}

func (e *testEnv) chatTexts(t *testing.T, id string) []string {
	t.Helper()
	msgs, err := e.chat.Messages(context.Background(), id)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Message
	}
	return texts
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
