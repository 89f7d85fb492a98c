package services

import (
	"context"
	"fmt"
	"log"
	"sort"

	"gamesync/models"
	"gamesync/store"
)

// SessionDirectory lists every session, newest first.
type SessionDirectory struct {
	store *store.Store
}

func NewSessionDirectory(st *store.Store) *SessionDirectory {
	return &SessionDirectory{store: st}
}

type ListOptions struct {
	Status models.SessionStatus `form:"status"`
	Limit  int                  `form:"limit" binding:"min=0,max=200"`
	Offset int                  `form:"offset" binding:"min=0"`
}

func (d *SessionDirectory) List(ctx context.Context, opts ListOptions) ([]models.GameSession, error) {
	snap, err := d.store.Get(ctx, sessionsPath)
	if err != nil {
		return nil, err
	}
	sessions, err := flattenSessions(snap)
	if err != nil {
		return nil, err
	}
	return filterSessions(sessions, opts), nil
}

// Watch republishes the full sorted list every time any session changes.
func (d *SessionDirectory) Watch(ctx context.Context, fn func([]models.GameSession)) (func(), error) {
	return d.store.Subscribe(ctx, sessionsPath, func(snap store.Snapshot) {
		sessions, err := flattenSessions(snap)
		if err != nil {
			log.Printf("Failed to decode session directory: %v", err)
			return
		}
		fn(sessions)
	})
}

func flattenSessions(snap store.Snapshot) ([]models.GameSession, error) {
	byID := map[string]models.GameSession{}
	if err := snap.Decode(&byID); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	sessions := make([]models.GameSession, 0, len(byID))
	for id, session := range byID {
		if session.ID == "" {
			session.ID = id
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt != sessions[j].CreatedAt {
			return sessions[i].CreatedAt > sessions[j].CreatedAt
		}
		return sessions[i].ID > sessions[j].ID
	})
	return sessions, nil
}

func filterSessions(sessions []models.GameSession, opts ListOptions) []models.GameSession {
	if opts.Status != "" {
		kept := sessions[:0]
		for _, s := range sessions {
			if s.Status == opts.Status {
				kept = append(kept, s)
			}
		}
		sessions = kept
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(sessions) {
			return []models.GameSession{}
		}
		sessions = sessions[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(sessions) {
		sessions = sessions[:opts.Limit]
	}
	return sessions
}
