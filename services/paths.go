package services

import (
	"strings"

	"gamesync/store"
)

const (
	sessionsPath  = "gameSessions"
	chatsPath     = "gameChats"
	statesPath    = "gameStates"
	codesPath     = "gameCodes"
	cursorsPath   = "gameCursors"
	usersPath     = "users"
	accountsPath  = "accounts"
	templatesPath = "sentenceTemplates"
)

func sessionPath(id string, rest ...string) string {
	return store.JoinPath(append([]string{sessionsPath, id}, rest...)...)
}

func chatPath(sessionID string) string {
	return store.JoinPath(chatsPath, sessionID)
}

func statePath(sessionID string) string {
	return store.JoinPath(statesPath, sessionID)
}

func cursorPath(sessionID string) string {
	return store.JoinPath(cursorsPath, sessionID)
}

func codePath(code string) string {
	return store.JoinPath(codesPath, code)
}

// emailKey maps an email to a store key; '.' is not a legal path character.
func emailKey(email string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(email)), ".", ",")
}
