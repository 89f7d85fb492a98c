package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gamesync/models"
	"gamesync/store"
)

const (
	codeLength      = 6
	codeAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxCodeAttempts = 10
	startingScore   = 100
	maxChatLength   = 500

	// claimGrace is how long a code claim may exist before its session does.
	claimGrace = time.Minute
)

type GameService struct {
	store     *store.Store
	chat      *ChatChannel
	timers    *TimerScheduler
	moderator *Moderator

	now     func() time.Time
	newCode func() string
}

func NewGameService(st *store.Store, chat *ChatChannel) *GameService {
	return &GameService{
		store:   st,
		chat:    chat,
		now:     time.Now,
		newCode: generateCode,
	}
}

// UseScheduler arms timers for started games and disarms them on finish or delete.
func (s *GameService) UseScheduler(t *TimerScheduler) {
	s.timers = t
}

type CreateSessionRequest struct {
	Name        string `json:"name" binding:"required,max=80"`
	Category    string `json:"category" binding:"max=50"`
	Difficulty  string `json:"difficulty" binding:"max=30"`
	TimeLimit   int    `json:"timeLimit" binding:"required,min=1,max=120"`
	MaxPlayers  int    `json:"maxPlayers" binding:"required,min=1,max=50"`
	Description string `json:"description" binding:"max=500"`
}

type JoinSessionRequest struct {
	Code string `json:"code" binding:"required"`
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (r *CreateSessionRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if r.TimeLimit < 1 {
		return fmt.Errorf("%w: time limit must be at least one minute", ErrInvalidRequest)
	}
	if r.MaxPlayers < 1 {
		return fmt.Errorf("%w: a game needs room for at least one player", ErrInvalidRequest)
	}
	return nil
}

// UseModerator masks banned words in player chat messages.
func (s *GameService) UseModerator(m *Moderator) {
	s.moderator = m
}

// CreateGameSession stores a new waiting session with the caller as its only
// player and host, and reserves a join code no live session is using.
func (s *GameService) CreateGameSession(ctx context.Context, caller models.Identity, req *CreateSessionRequest) (*models.GameSession, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	id, err := store.NewKey()
	if err != nil {
		return nil, err
	}
	now := s.now().UnixMilli()

	code, err := s.claimCode(ctx, id, now)
	if err != nil {
		return nil, err
	}

	name := displayName(caller)
	session := models.GameSession{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Category:    req.Category,
		Difficulty:  req.Difficulty,
		TimeLimit:   req.TimeLimit,
		MaxPlayers:  req.MaxPlayers,
		Creator:     name,
		CreatorID:   caller.UID,
		Description: req.Description,
		Status:      models.StatusWaiting,
		Players: []models.Player{{
			ID:       caller.UID,
			Name:     name,
			PhotoURL: caller.PhotoURL,
			IsHost:   true,
			JoinedAt: now,
		}},
		CreatedAt: now,
		GameCode:  code,
	}

	if err := s.store.Set(ctx, sessionPath(id), session); err != nil {
		if rerr := s.store.Remove(ctx, codePath(code)); rerr != nil {
			log.Printf("Failed to release code %s after create failure: %v", code, rerr)
		}
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	log.Printf("Game %s created by %s with code %s", id, caller.UID, code)
	return &session, nil
}

var errCodeTaken = errors.New("code taken")

func (s *GameService) claimCode(ctx context.Context, sessionID string, now int64) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := s.newCode()
		_, err := s.store.Transact(ctx, codePath(code), func(cur store.Snapshot) (any, error) {
			if cur.Exists {
				return nil, errCodeTaken
			}
			return models.GameCodeClaim{SessionID: sessionID, CreatedAt: now}, nil
		})
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, errCodeTaken) {
			return "", fmt.Errorf("failed to reserve game code: %w", err)
		}
		if owner, ok := s.abandonedClaim(ctx, code, now); ok {
			s.releaseCode(ctx, code, owner)
		}
	}
	return "", fmt.Errorf("failed to reserve a unique game code after %d attempts", maxCodeAttempts)
}

// abandonedClaim reports whether the claim on code was left behind by an
// interrupted create or delete, and returns the session it names. A claim
// younger than claimGrace may belong to a create that has not written its
// session yet and is never abandoned.
func (s *GameService) abandonedClaim(ctx context.Context, code string, now int64) (string, bool) {
	snap, err := s.store.Get(ctx, codePath(code))
	if err != nil || !snap.Exists {
		return "", false
	}
	var claim models.GameCodeClaim
	if err := snap.Decode(&claim); err != nil || claim.SessionID == "" {
		return "", false
	}
	if now-claim.CreatedAt < claimGrace.Milliseconds() {
		return "", false
	}
	if _, err := s.GetSession(ctx, claim.SessionID); !errors.Is(err, ErrSessionNotFound) {
		return "", false
	}
	return claim.SessionID, true
}

// releaseCode removes the claim for code. When sessionID is set the claim is
// only removed if it still points at that session.
func (s *GameService) releaseCode(ctx context.Context, code, sessionID string) {
	_, err := s.store.Transact(ctx, codePath(code), func(cur store.Snapshot) (any, error) {
		var claim models.GameCodeClaim
		if err := cur.Decode(&claim); err != nil {
			return nil, err
		}
		if sessionID != "" && cur.Exists && claim.SessionID != sessionID {
			return nil, errNoChange
		}
		return nil, nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		log.Printf("Failed to release game code %s: %v", code, err)
	}
}

// JoinGameSession adds the caller to the session with the given code and
// returns its id. Joining a session the caller is already in is a no-op.
func (s *GameService) JoinGameSession(ctx context.Context, caller models.Identity, code string) (string, error) {
	found, err := s.FindByCode(ctx, code)
	if err != nil {
		return "", err
	}
	id := found.ID

	var joined models.Player
	_, err = s.store.Transact(ctx, sessionPath(id), func(cur store.Snapshot) (any, error) {
		session, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		if p, _ := session.Player(caller.UID); p != nil {
			return nil, errNoChange
		}
		if session.IsFull() {
			return nil, ErrGameFull
		}
		switch session.Status {
		case models.StatusPlaying:
			return nil, ErrGameStarted
		case models.StatusFinished:
			return nil, ErrGameFinished
		}

		joined = models.Player{
			ID:       caller.UID,
			Name:     displayName(caller),
			PhotoURL: caller.PhotoURL,
			JoinedAt: s.now().UnixMilli(),
		}
		session.Players = append(session.Players, joined)
		return session, nil
	})
	if errors.Is(err, errNoChange) {
		return id, nil
	}
	if err != nil {
		return "", err
	}

	s.announce(ctx, id, fmt.Sprintf("%s joined the game", joined.Name))
	return id, nil
}

// LeaveGameSession removes the caller. The last player out deletes the
// session and everything scoped to it; a departing host hands over to the
// longest-standing remaining player.
func (s *GameService) LeaveGameSession(ctx context.Context, caller models.Identity, id string) error {
	var (
		left    models.Player
		newHost *models.Player
		code    string
		deleted bool
	)
	_, err := s.store.Transact(ctx, sessionPath(id), func(cur store.Snapshot) (any, error) {
		newHost, deleted = nil, false
		session, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		p, idx := session.Player(caller.UID)
		if p == nil {
			return nil, ErrNotInSession
		}
		left = *p
		code = session.GameCode

		session.Players = append(session.Players[:idx:idx], session.Players[idx+1:]...)
		if len(session.Players) == 0 {
			deleted = true
			return nil, nil
		}
		if left.IsHost {
			session.Players[0].IsHost = true
			host := session.Players[0]
			newHost = &host
		}
		for wordID, lock := range session.DraggedWords {
			if lock != nil && lock.DraggedBy == caller.UID {
				delete(session.DraggedWords, wordID)
			}
		}
		return session, nil
	})
	if err != nil {
		return err
	}

	if deleted {
		s.cleanup(ctx, id, code)
		log.Printf("Game %s deleted after last player %s left", id, caller.UID)
		return nil
	}

	dropCursor(ctx, s.store, id, caller.UID)
	s.announce(ctx, id, fmt.Sprintf("%s left the game", left.Name))
	if newHost != nil {
		s.announce(ctx, id, fmt.Sprintf("%s is now the host", newHost.Name))
	}
	return nil
}

func (s *GameService) cleanup(ctx context.Context, id, code string) {
	if s.timers != nil {
		s.timers.Cancel(id)
	}
	for _, path := range []string{chatPath(id), statePath(id), cursorPath(id)} {
		if err := s.store.Remove(ctx, path); err != nil {
			log.Printf("Failed to remove %s: %v", path, err)
		}
	}
	if code != "" {
		s.releaseCode(ctx, code, id)
	}
}

// TogglePlayerReady flips the caller's ready flag and returns the new value.
func (s *GameService) TogglePlayerReady(ctx context.Context, caller models.Identity, id string) (bool, error) {
	var ready bool
	_, err := s.store.Transact(ctx, sessionPath(id), func(cur store.Snapshot) (any, error) {
		session, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		p, _ := session.Player(caller.UID)
		if p == nil {
			return nil, ErrNotInSession
		}
		p.IsReady = !p.IsReady
		ready = p.IsReady
		return session, nil
	})
	return ready, err
}

// StartGame moves a waiting session to playing. Scores, timer and status are
// written together so no reader can observe a half-started game.
func (s *GameService) StartGame(ctx context.Context, caller models.Identity, id string) (*models.GameSession, error) {
	var started models.GameSession
	_, err := s.store.Transact(ctx, sessionPath(id), func(cur store.Snapshot) (any, error) {
		session, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		p, _ := session.Player(caller.UID)
		if p == nil {
			return nil, ErrNotInSession
		}
		if !p.IsHost {
			return nil, ErrNotHost
		}
		switch session.Status {
		case models.StatusPlaying:
			return nil, ErrGameStarted
		case models.StatusFinished:
			return nil, ErrGameFinished
		}

		session.PlayerScores = make(map[string]int, len(session.Players))
		for _, player := range session.Players {
			session.PlayerScores[player.ID] = startingScore
		}
		session.Timer = &models.Timer{
			StartTime:   s.now().UnixMilli(),
			Duration:    session.TimeLimit * 60,
			Initialized: true,
		}
		session.Status = models.StatusPlaying
		started = *session
		return session, nil
	})
	if err != nil {
		return nil, err
	}

	if s.timers != nil {
		s.timers.Schedule(id, started.Timer.Deadline())
	}
	s.announce(ctx, id, "The game has started")
	log.Printf("Game %s started by host %s with %d players", id, caller.UID, len(started.Players))
	return &started, nil
}

// FinishGame ends a playing session on the host's request.
func (s *GameService) FinishGame(ctx context.Context, caller models.Identity, id string) (*models.GameSession, error) {
	session, err := s.finish(ctx, id, func(session *models.GameSession) error {
		p, _ := session.Player(caller.UID)
		if p == nil {
			return ErrNotInSession
		}
		if !p.IsHost {
			return ErrNotHost
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.announce(ctx, id, fmt.Sprintf("%s ended the game", displayName(caller)))
	return session, nil
}

// ExpireGame finishes a playing session whose timer has run out. It is a
// no-op for sessions that are gone, already finished, or still have time.
func (s *GameService) ExpireGame(ctx context.Context, id string) error {
	_, err := s.finish(ctx, id, func(session *models.GameSession) error {
		if !session.Timer.Expired(s.now()) {
			return errNoChange
		}
		return nil
	})
	switch {
	case err == nil:
		s.announce(ctx, id, "Time's up! The game has finished")
		log.Printf("Game %s finished: timer expired", id)
		return nil
	case errors.Is(err, errNoChange), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrGameNotPlaying):
		return nil
	default:
		return err
	}
}

func (s *GameService) finish(ctx context.Context, id string, check func(*models.GameSession) error) (*models.GameSession, error) {
	var finished models.GameSession
	_, err := s.store.Transact(ctx, sessionPath(id), func(cur store.Snapshot) (any, error) {
		session, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		if err := check(session); err != nil {
			return nil, err
		}
		if session.Status != models.StatusPlaying {
			return nil, ErrGameNotPlaying
		}
		session.Status = models.StatusFinished
		session.FinishedAt = s.now().UnixMilli()
		session.DraggedWords = nil
		finished = *session
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	if s.timers != nil {
		s.timers.Cancel(id)
	}
	if err := s.store.Remove(ctx, cursorPath(id)); err != nil {
		log.Printf("Failed to clear cursors of game %s: %v", id, err)
	}
	return &finished, nil
}

// AddChatMessage appends to the session chat. User messages require
// membership; system messages are attributed to the service.
func (s *GameService) AddChatMessage(ctx context.Context, caller models.Identity, id, text string, isSystem bool) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	if len([]rune(text)) > maxChatLength {
		return nil, fmt.Errorf("%w: message is longer than %d characters", ErrInvalidRequest, maxChatLength)
	}

	if isSystem {
		msg, err := s.postSystem(ctx, id, text)
		if err != nil {
			return nil, err
		}
		return &msg, nil
	}

	if _, err := s.requireMember(ctx, caller, id); err != nil {
		return nil, err
	}
	if cleaned, masked := s.moderator.Clean(text); masked {
		log.Printf("Masked banned words in message from %s in game %s", caller.UID, id)
		text = cleaned
	}
	msg, err := s.chat.Append(ctx, id, models.ChatMessage{
		SenderID:   caller.UID,
		SenderName: displayName(caller),
		Message:    text,
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateGameState merges partial into the stored game state blob. Keys with
// a nil value are removed. The merge runs against the stored value, so
// concurrent updates to different keys are all kept.
func (s *GameService) UpdateGameState(ctx context.Context, caller models.Identity, id string, partial models.GameState) (models.GameState, error) {
	if _, err := s.requireMember(ctx, caller, id); err != nil {
		return nil, err
	}

	var merged models.GameState
	_, err := s.store.Transact(ctx, statePath(id), func(cur store.Snapshot) (any, error) {
		merged = models.GameState{}
		if err := cur.Decode(&merged); err != nil {
			return nil, fmt.Errorf("failed to decode game state: %w", err)
		}
		for k, v := range partial {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		return merged, nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *GameService) GetGameState(ctx context.Context, id string) (models.GameState, error) {
	snap, err := s.store.Get(ctx, statePath(id))
	if err != nil {
		return nil, err
	}
	state := models.GameState{}
	if err := snap.Decode(&state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *GameService) GetSession(ctx context.Context, id string) (*models.GameSession, error) {
	snap, err := s.store.Get(ctx, sessionPath(id))
	if err != nil {
		return nil, err
	}
	return decodeSession(snap)
}

// FindByCode resolves a join code, case-insensitively, to its live session.
func (s *GameService) FindByCode(ctx context.Context, code string) (*models.GameSession, error) {
	code = normalizeCode(code)
	if code == "" || strings.Trim(code, codeAlphabet) != "" {
		return nil, ErrSessionNotFound
	}
	snap, err := s.store.Get(ctx, codePath(code))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, ErrSessionNotFound
	}
	var claim models.GameCodeClaim
	if err := snap.Decode(&claim); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, claim.SessionID)
}

// WatchSession calls fn with the session on every change, and with nil once
// it has been deleted.
func (s *GameService) WatchSession(ctx context.Context, id string, fn func(*models.GameSession)) (func(), error) {
	return s.store.Subscribe(ctx, sessionPath(id), func(snap store.Snapshot) {
		session, err := decodeSession(snap)
		if err != nil {
			fn(nil)
			return
		}
		fn(session)
	})
}

func (s *GameService) WatchGameState(ctx context.Context, id string, fn func(models.GameState)) (func(), error) {
	return s.store.Subscribe(ctx, statePath(id), func(snap store.Snapshot) {
		state := models.GameState{}
		if err := snap.Decode(&state); err != nil {
			log.Printf("Failed to decode game state for %s: %v", id, err)
			return
		}
		fn(state)
	})
}

// IsMember reports whether uid is currently a player of the session.
func (s *GameService) IsMember(ctx context.Context, id, uid string) (bool, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	p, _ := session.Player(uid)
	return p != nil, nil
}

func (s *GameService) requireMember(ctx context.Context, caller models.Identity, id string) (*models.GameSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, _ := session.Player(caller.UID); p == nil {
		return nil, ErrNotInSession
	}
	return session, nil
}

// announce posts a system message for a transition that has already been
// committed; a failure here does not undo the transition.
func (s *GameService) announce(ctx context.Context, id, text string) {
	if _, err := s.postSystem(ctx, id, text); err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Printf("Failed to post system message to game %s: %v", id, err)
	}
}

// postSystem appends a system message to a live session's chat. The session
// is checked again after the write: if it was deleted in between, its cleanup
// has already run and the chat written here is removed.
func (s *GameService) postSystem(ctx context.Context, id, text string) (models.ChatMessage, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return models.ChatMessage{}, err
	}
	msg, err := s.chat.System(ctx, id, text)
	if err != nil {
		return msg, err
	}
	if _, err := s.GetSession(ctx, id); errors.Is(err, ErrSessionNotFound) {
		if rerr := s.store.Remove(ctx, chatPath(id)); rerr != nil {
			log.Printf("Failed to remove chat of deleted game %s: %v", id, rerr)
		}
		return msg, err
	}
	return msg, nil
}

func decodeSession(snap store.Snapshot) (*models.GameSession, error) {
	if !snap.Exists {
		return nil, ErrSessionNotFound
	}
	var session models.GameSession
	if err := snap.Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode game: %w", err)
	}
	return &session, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateCode() string {
	bytes := make([]byte, codeLength)
	rand.Read(bytes)
	code := make([]byte, codeLength)
	for i, b := range bytes {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code)
}

func displayName(id models.Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(id.Email, "@"); ok && local != "" {
		return local
	}
	return "Player"
}
