package services

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")

	ErrSessionNotFound  = errors.New("game not found")
	ErrTemplateNotFound = errors.New("template not found")

	ErrGameFull       = errors.New("game is full")
	ErrGameStarted    = errors.New("game has already started")
	ErrGameFinished   = errors.New("game has already finished")
	ErrGameNotPlaying = errors.New("game is not in progress")
	ErrNoActiveRound  = errors.New("no active round")
	ErrWordLocked     = errors.New("word is being dragged by another player")

	ErrNotHost          = errors.New("only the host can do that")
	ErrNotInSession     = errors.New("you are not a player in this game")
	ErrNotTemplateOwner = errors.New("only the creator can delete this template")
	ErrNotAdmin         = errors.New("only an administrator can do that")

	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// errNoChange aborts a store transaction that has nothing to write.
var errNoChange = errors.New("no change")
