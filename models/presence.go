package models

import "time"

// StaleAfter is how long a cursor or drag lock stays live without a refresh.
const StaleAfter = 5 * time.Second

// Cursor is one player's pointer, overwritten on every move. Cursors live
// outside the session document at gameCursors/{sessionId}, keyed by player id.
type Cursor struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Color      string  `json:"color"`
	LastUpdate int64   `json:"lastUpdate"`
}

func (c Cursor) Stale(now time.Time) bool {
	return now.UnixMilli()-c.LastUpdate > StaleAfter.Milliseconds()
}

// DragLock records which player is currently dragging a word.
type DragLock struct {
	DraggedBy  string `json:"draggedBy"`
	PlayerName string `json:"playerName"`
	Timestamp  int64  `json:"timestamp"`
}

func (l *DragLock) Stale(now time.Time) bool {
	return l == nil || now.UnixMilli()-l.Timestamp > StaleAfter.Milliseconds()
}
