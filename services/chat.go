package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gamesync/models"
	"gamesync/store"
)

// ChatChannel is the append-only message log of one session. Order is by
// message timestamp, with the time-ordered key breaking ties.
type ChatChannel struct {
	store *store.Store
	now   func() time.Time
}

func NewChatChannel(st *store.Store) *ChatChannel {
	return &ChatChannel{store: st, now: time.Now}
}

// Append stores msg under a new key, stamping the time if it is unset.
func (c *ChatChannel) Append(ctx context.Context, sessionID string, msg models.ChatMessage) (models.ChatMessage, error) {
	key, err := store.NewKey()
	if err != nil {
		return msg, err
	}
	msg.ID = key
	if msg.Timestamp == 0 {
		msg.Timestamp = c.now().UnixMilli()
	}
	if err := c.store.Set(ctx, store.JoinPath(chatPath(sessionID), key), msg); err != nil {
		return msg, fmt.Errorf("failed to send message: %w", err)
	}
	return msg, nil
}

// System appends a service-generated message.
func (c *ChatChannel) System(ctx context.Context, sessionID, text string) (models.ChatMessage, error) {
	return c.Append(ctx, sessionID, models.ChatMessage{
		SenderID:   models.SystemSenderID,
		SenderName: "System",
		Message:    text,
		IsSystem:   true,
	})
}

func (c *ChatChannel) Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	snap, err := c.store.Get(ctx, chatPath(sessionID))
	if err != nil {
		return nil, err
	}
	return decodeMessages(snap)
}

// Watch calls fn with the ordered log on every change.
func (c *ChatChannel) Watch(ctx context.Context, sessionID string, fn func([]models.ChatMessage)) (func(), error) {
	return c.store.Subscribe(ctx, chatPath(sessionID), func(snap store.Snapshot) {
		msgs, err := decodeMessages(snap)
		if err != nil {
			return
		}
		fn(msgs)
	})
}

func decodeMessages(snap store.Snapshot) ([]models.ChatMessage, error) {
	byKey := map[string]models.ChatMessage{}
	if err := snap.Decode(&byKey); err != nil {
		return nil, fmt.Errorf("failed to decode chat log: %w", err)
	}
	msgs := make([]models.ChatMessage, 0, len(byKey))
	for key, m := range byKey {
		if m.ID == "" {
			m.ID = key
		}
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}
