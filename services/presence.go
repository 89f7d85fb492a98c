package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sort"
	"sync"
	"time"

	"gamesync/models"
	"gamesync/store"
)

const DefaultCursorThrottle = 50 * time.Millisecond

var cursorColors = []string{
	"#ef4444", "#f97316", "#eab308", "#22c55e",
	"#14b8a6", "#3b82f6", "#8b5cf6", "#ec4899",
}

// PresenceService broadcasts pointer positions and word drag locks for the
// word-placement game. Both are ephemeral and expire after models.StaleAfter.
type PresenceService struct {
	store    *store.Store
	now      func() time.Time
	throttle time.Duration

	mu        sync.Mutex
	lastWrite map[string]time.Time
}

func NewPresenceService(st *store.Store, throttle time.Duration) *PresenceService {
	return &PresenceService{
		store:     st,
		now:       time.Now,
		throttle:  throttle,
		lastWrite: make(map[string]time.Time),
	}
}

type CursorRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UpdateCursor writes the caller's pointer. Updates closer together than the
// throttle interval are dropped and reported as false; only accepted writes
// count towards the interval.
func (p *PresenceService) UpdateCursor(ctx context.Context, caller models.Identity, sessionID string, x, y float64) (bool, error) {
	now := p.now()
	key := sessionID + "/" + caller.UID
	if p.throttled(key, now) {
		return false, nil
	}
	if err := p.requireActive(ctx, caller, sessionID); err != nil {
		return false, err
	}

	cursor := models.Cursor{
		PlayerID:   caller.UID,
		PlayerName: displayName(caller),
		X:          x,
		Y:          y,
		Color:      colorFor(caller.UID),
		LastUpdate: now.UnixMilli(),
	}
	_, err := p.store.Transact(ctx, cursorPath(sessionID), func(cur store.Snapshot) (any, error) {
		cursors := map[string]models.Cursor{}
		if err := cur.Decode(&cursors); err != nil {
			return nil, fmt.Errorf("failed to decode cursors: %w", err)
		}
		cursors[caller.UID] = cursor
		return cursors, nil
	})
	if err != nil {
		return false, err
	}

	// The session may have finished, dropped the caller or been deleted while
	// the cursor was written; its cleanup has then already run.
	if err := p.requireActive(ctx, caller, sessionID); err != nil {
		dropCursor(ctx, p.store, sessionID, caller.UID)
		return false, err
	}
	p.record(key, now)
	return true, nil
}

func (p *PresenceService) throttled(key string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastWrite[key]
	return ok && now.Sub(last) < p.throttle
}

func (p *PresenceService) record(key string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastWrite[key] = now
	if len(p.lastWrite) > 4096 {
		for k, t := range p.lastWrite {
			if now.Sub(t) > models.StaleAfter {
				delete(p.lastWrite, k)
			}
		}
	}
}

func (p *PresenceService) requireActive(ctx context.Context, caller models.Identity, sessionID string) error {
	snap, err := p.store.Get(ctx, sessionPath(sessionID))
	if err != nil {
		return err
	}
	session, err := decodeSession(snap)
	if err != nil {
		return err
	}
	if pl, _ := session.Player(caller.UID); pl == nil {
		return ErrNotInSession
	}
	if session.Status == models.StatusFinished {
		return ErrGameFinished
	}
	return nil
}

// ActiveCursors returns every other player's live cursor.
func (p *PresenceService) ActiveCursors(ctx context.Context, caller models.Identity, sessionID string) ([]models.Cursor, error) {
	snap, err := p.store.Get(ctx, sessionPath(sessionID))
	if err != nil {
		return nil, err
	}
	session, err := decodeSession(snap)
	if err != nil {
		return nil, err
	}
	if pl, _ := session.Player(caller.UID); pl == nil {
		return nil, ErrNotInSession
	}

	snap, err = p.store.Get(ctx, cursorPath(sessionID))
	if err != nil {
		return nil, err
	}
	all := map[string]models.Cursor{}
	if err := snap.Decode(&all); err != nil {
		return nil, fmt.Errorf("failed to decode cursors: %w", err)
	}
	return liveCursors(all, caller.UID, p.now()), nil
}

// WatchCursors calls fn with every other player's live cursor whenever a
// cursor in the session moves.
func (p *PresenceService) WatchCursors(ctx context.Context, caller models.Identity, sessionID string, fn func([]models.Cursor)) (func(), error) {
	return p.store.Subscribe(ctx, cursorPath(sessionID), func(snap store.Snapshot) {
		all := map[string]models.Cursor{}
		if err := snap.Decode(&all); err != nil {
			log.Printf("Failed to decode cursors for %s: %v", sessionID, err)
			return
		}
		fn(liveCursors(all, caller.UID, p.now()))
	})
}

func liveCursors(all map[string]models.Cursor, self string, now time.Time) []models.Cursor {
	cursors := make([]models.Cursor, 0, len(all))
	for id, c := range all {
		if id == self || c.Stale(now) {
			continue
		}
		cursors = append(cursors, c)
	}
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].PlayerID < cursors[j].PlayerID })
	return cursors
}

// dropCursor removes uid's cursor, deleting the session's cursor document
// once it is empty.
func dropCursor(ctx context.Context, st *store.Store, sessionID, uid string) {
	_, err := st.Transact(ctx, cursorPath(sessionID), func(cur store.Snapshot) (any, error) {
		cursors := map[string]models.Cursor{}
		if err := cur.Decode(&cursors); err != nil {
			return nil, err
		}
		if _, ok := cursors[uid]; !ok {
			return nil, errNoChange
		}
		delete(cursors, uid)
		if len(cursors) == 0 {
			return nil, nil
		}
		return cursors, nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		log.Printf("Failed to remove cursor of %s in game %s: %v", uid, sessionID, err)
	}
}

// ClaimWord marks wordID as being dragged by the caller. A live lock held by
// someone else is refused; an abandoned one is taken over.
func (p *PresenceService) ClaimWord(ctx context.Context, caller models.Identity, sessionID, wordID string) (*models.DragLock, error) {
	now := p.now()
	lock := &models.DragLock{
		DraggedBy:  caller.UID,
		PlayerName: displayName(caller),
		Timestamp:  now.UnixMilli(),
	}
	err := p.updateSession(ctx, caller, sessionID, func(session *models.GameSession) error {
		if session.GameState == nil || session.GameState.Word(wordID) == nil {
			return fmt.Errorf("%w: unknown word %q", ErrInvalidRequest, wordID)
		}
		if existing := session.DraggedWords[wordID]; existing != nil && existing.DraggedBy != caller.UID && !existing.Stale(now) {
			return ErrWordLocked
		}
		if session.DraggedWords == nil {
			session.DraggedWords = map[string]*models.DragLock{}
		}
		session.DraggedWords[wordID] = lock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// ReleaseWord drops the caller's lock on wordID.
func (p *PresenceService) ReleaseWord(ctx context.Context, caller models.Identity, sessionID, wordID string) error {
	now := p.now()
	err := p.updateSession(ctx, caller, sessionID, func(session *models.GameSession) error {
		existing := session.DraggedWords[wordID]
		if existing == nil {
			return errNoChange
		}
		if existing.DraggedBy != caller.UID && !existing.Stale(now) {
			return ErrWordLocked
		}
		delete(session.DraggedWords, wordID)
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// updateSession applies fn to the session inside one transaction, after
// checking the caller plays in it and it has not finished.
func (p *PresenceService) updateSession(ctx context.Context, caller models.Identity, sessionID string, fn func(*models.GameSession) error) error {
	_, err := p.store.Transact(ctx, sessionPath(sessionID), func(cur store.Snapshot) (any, error) {
		session, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		if pl, _ := session.Player(caller.UID); pl == nil {
			return nil, ErrNotInSession
		}
		if session.Status == models.StatusFinished {
			return nil, ErrGameFinished
		}
		if err := fn(session); err != nil {
			return nil, err
		}
		return session, nil
	})
	return err
}

func colorFor(uid string) string {
	h := fnv.New32a()
	h.Write([]byte(uid))
	return cursorColors[h.Sum32()%uint32(len(cursorColors))]
}
