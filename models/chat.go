package models

// SystemSenderID marks messages generated by the service itself.
const SystemSenderID = "system"

// ChatMessage is an append-only entry at gameChats/{sessionId}/{id}.
type ChatMessage struct {
	ID         string `json:"id,omitempty"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
	IsSystem   bool   `json:"isSystem"`
}

// GameState is the untyped per-session blob at gameStates/{sessionId}.
// Well-known keys are currentTurn, timeLeft, progress, currentPrompt and scores.
type GameState map[string]any
