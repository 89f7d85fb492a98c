package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"gamesync/models"
	"gamesync/store"
)

const (
	pointsPerWord          = 10
	DefaultRoundResetDelay = 3 * time.Second
)

// WordGameService runs the word-placement mini-game. The board is part of the
// session record, so every placement is applied in the same transaction as
// the score it earns.
type WordGameService struct {
	store      *store.Store
	templates  *TemplateService
	now        func() time.Time
	intn       func(n int) int
	resetDelay time.Duration

	mu     sync.Mutex
	resets map[string]*time.Timer
}

func NewWordGameService(st *store.Store, templates *TemplateService, resetDelay time.Duration) *WordGameService {
	return &WordGameService{
		store:      st,
		templates:  templates,
		now:        time.Now,
		intn:       rand.IntN,
		resetDelay: resetDelay,
		resets:     make(map[string]*time.Timer),
	}
}

type DropRequest struct {
	WordID string `json:"wordId" binding:"required"`
	SlotID string `json:"slotId" binding:"required"`
}

type ReturnWordRequest struct {
	WordID string `json:"wordId" binding:"required"`
}

// DropResult describes the outcome of one placement. A rejected drop is not
// an error: the board is returned unchanged with the reason.
type DropResult struct {
	Accepted  bool              `json:"accepted"`
	Reason    string            `json:"reason,omitempty"`
	Correct   bool              `json:"correct"`
	Completed bool              `json:"completed"`
	Score     int               `json:"score"`
	Board     *models.WordBoard `json:"board"`
}

// NewRound deals a fresh board from a random template, replacing whatever
// round was on the table.
func (w *WordGameService) NewRound(ctx context.Context, caller models.Identity, sessionID string) (*models.WordBoard, error) {
	templates, err := w.templates.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, ErrTemplateNotFound
	}
	board := w.deal(templates[w.intn(len(templates))])

	_, err = w.store.Transact(ctx, sessionPath(sessionID), func(cur store.Snapshot) (any, error) {
		session, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		if pl, _ := session.Player(caller.UID); pl == nil {
			return nil, ErrNotInSession
		}
		if session.Status != models.StatusPlaying {
			return nil, ErrGameNotPlaying
		}
		board.Round = 1
		if session.GameState != nil {
			board.Round = session.GameState.Round + 1
		}
		session.GameState = board
		session.DraggedWords = nil
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Game %s: round %d dealt from template %s", sessionID, board.Round, board.TemplateID)
	return board, nil
}

// deal builds a board with the template's correct words and distractors in
// random order. Word ids are w1..wn, slot ids s1..sn.
func (w *WordGameService) deal(tmpl models.SentenceTemplate) *models.WordBoard {
	texts := make([]string, 0, len(tmpl.Slots)+len(tmpl.Distractors))
	for _, slot := range tmpl.Slots {
		texts = append(texts, slot.CorrectWord)
	}
	texts = append(texts, tmpl.Distractors...)
	for i := len(texts) - 1; i > 0; i-- {
		j := w.intn(i + 1)
		texts[i], texts[j] = texts[j], texts[i]
	}

	board := &models.WordBoard{
		TemplateID: tmpl.ID,
		Sentence:   tmpl.Sentence,
		Slots:      make([]models.SentenceSlot, len(tmpl.Slots)),
		Words:      make([]models.WordItem, len(texts)),
	}
	for i, slot := range tmpl.Slots {
		slot.ID = fmt.Sprintf("s%d", i+1)
		board.Slots[i] = slot
	}
	for i, text := range texts {
		board.Words[i] = models.WordItem{ID: fmt.Sprintf("w%d", i+1), Text: text}
	}
	return board
}

// Drop places wordID into slotID. A word already in another slot moves.
func (w *WordGameService) Drop(ctx context.Context, caller models.Identity, sessionID, wordID, slotID string) (*DropResult, error) {
	var result DropResult
	now := w.now()

	_, err := w.store.Transact(ctx, sessionPath(sessionID), func(cur store.Snapshot) (any, error) {
		result = DropResult{}
		session, board, err := w.playable(cur, caller)
		if err != nil {
			return nil, err
		}
		word := board.Word(wordID)
		if word == nil {
			return nil, fmt.Errorf("%w: unknown word %q", ErrInvalidRequest, wordID)
		}
		slot := board.Slot(slotID)
		if slot == nil {
			return nil, fmt.Errorf("%w: unknown slot %q", ErrInvalidRequest, slotID)
		}
		if lock := session.DraggedWords[wordID]; lock != nil && lock.DraggedBy != caller.UID && !lock.Stale(now) {
			return nil, ErrWordLocked
		}

		result.Board = board
		result.Score = session.PlayerScores[caller.UID]
		if board.CompletedAt != 0 {
			result.Reason = "round is already complete"
			return nil, errNoChange
		}
		if occupant := board.WordInSlot(slotID); occupant != nil {
			if occupant.ID != wordID {
				result.Reason = "slot is already filled"
				return nil, errNoChange
			}
			result.Accepted = true
			result.Correct = strings.EqualFold(word.Text, slot.CorrectWord)
			return nil, errNoChange
		}

		word.IsPlaced = true
		word.PlacedInSlot = slotID
		result.Accepted = true
		result.Correct = strings.EqualFold(word.Text, slot.CorrectWord)
		if result.Correct && !word.Scored {
			word.Scored = true
			if session.PlayerScores == nil {
				session.PlayerScores = map[string]int{}
			}
			session.PlayerScores[caller.UID] += pointsPerWord
		}
		result.Score = session.PlayerScores[caller.UID]

		board.Progress = progress(board)
		if board.Complete() {
			board.CompletedAt = now.UnixMilli()
			result.Completed = true
		}
		delete(session.DraggedWords, wordID)
		session.GameState = board
		return session, nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, err
	}

	if result.Completed {
		w.scheduleReset(sessionID, result.Board.Round)
	}
	return &result, nil
}

// ReturnWord takes a placed word out of its slot and back to the bank.
func (w *WordGameService) ReturnWord(ctx context.Context, caller models.Identity, sessionID, wordID string) (*models.WordBoard, error) {
	var out *models.WordBoard
	now := w.now()
	_, err := w.store.Transact(ctx, sessionPath(sessionID), func(cur store.Snapshot) (any, error) {
		session, board, err := w.playable(cur, caller)
		if err != nil {
			return nil, err
		}
		out = board
		word := board.Word(wordID)
		if word == nil {
			return nil, fmt.Errorf("%w: unknown word %q", ErrInvalidRequest, wordID)
		}
		if lock := session.DraggedWords[wordID]; lock != nil && lock.DraggedBy != caller.UID && !lock.Stale(now) {
			return nil, ErrWordLocked
		}
		if !word.IsPlaced || board.CompletedAt != 0 {
			return nil, errNoChange
		}
		word.IsPlaced = false
		word.PlacedInSlot = ""
		board.Progress = progress(board)
		session.GameState = board
		return session, nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, err
	}
	return out, nil
}

func (w *WordGameService) playable(cur store.Snapshot, caller models.Identity) (*models.GameSession, *models.WordBoard, error) {
	session, err := decodeSession(cur)
	if err != nil {
		return nil, nil, err
	}
	if pl, _ := session.Player(caller.UID); pl == nil {
		return nil, nil, ErrNotInSession
	}
	if session.Status != models.StatusPlaying {
		return nil, nil, ErrGameNotPlaying
	}
	if session.GameState == nil {
		return nil, nil, ErrNoActiveRound
	}
	return session, session.GameState, nil
}

func progress(board *models.WordBoard) float64 {
	if len(board.Slots) == 0 {
		return 0
	}
	p := float64(board.Placed()) / float64(len(board.Slots)) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func (w *WordGameService) scheduleReset(sessionID string, round int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.resets[sessionID]; ok {
		existing.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.resetDelay, func() {
		w.mu.Lock()
		if w.resets[sessionID] == timer {
			delete(w.resets, sessionID)
		}
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
		defer cancel()
		if err := w.resetRound(ctx, sessionID, round); err != nil {
			log.Printf("Failed to reset round %d of game %s: %v", round, sessionID, err)
		}
	})
	w.resets[sessionID] = timer
}

// resetRound deals the next round if round is still the completed one on the
// table. Anything else means a player already moved on.
func (w *WordGameService) resetRound(ctx context.Context, sessionID string, round int) error {
	templates, err := w.templates.ListTemplates(ctx)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return nil
	}
	board := w.deal(templates[w.intn(len(templates))])
	_, err = w.store.Transact(ctx, sessionPath(sessionID), func(cur store.Snapshot) (any, error) {
		session, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		current := session.GameState
		if session.Status != models.StatusPlaying || current == nil || current.Round != round || current.CompletedAt == 0 {
			return nil, errNoChange
		}
		board.Round = round + 1
		session.GameState = board
		session.DraggedWords = nil
		return session, nil
	})
	if errors.Is(err, errNoChange) || errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// PendingResets returns the number of scheduled round resets.
func (w *WordGameService) PendingResets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.resets)
}

// Stop cancels every scheduled round reset.
func (w *WordGameService) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, timer := range w.resets {
		timer.Stop()
		delete(w.resets, id)
	}
}
