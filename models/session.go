package models

type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
)

// GameSession is one multiplayer match, stored at gameSessions/{id}.
type GameSession struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Difficulty  string        `json:"difficulty"`
	TimeLimit   int           `json:"timeLimit"` // minutes
	MaxPlayers  int           `json:"maxPlayers"`
	Creator     string        `json:"creator"`
	CreatorID   string        `json:"creatorId"`
	Description string        `json:"description"`
	Status      SessionStatus `json:"status"`
	Players     []Player      `json:"players"`
	CreatedAt   int64         `json:"createdAt"`
	GameCode    string        `json:"gameCode"`
	FinishedAt  int64         `json:"finishedAt,omitempty"`

	PlayerScores map[string]int       `json:"playerScores,omitempty"`
	Timer        *Timer               `json:"timer,omitempty"`
	DraggedWords map[string]*DragLock `json:"draggedWords,omitempty"`
	GameState    *WordBoard           `json:"gameState,omitempty"`
}

// Player returns the player with the given id and its index, or -1.
func (s *GameSession) Player(id string) (*Player, int) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i], i
		}
	}
	return nil, -1
}

// Host returns the current host, if any.
func (s *GameSession) Host() *Player {
	for i := range s.Players {
		if s.Players[i].IsHost {
			return &s.Players[i]
		}
	}
	return nil
}

func (s *GameSession) IsFull() bool {
	return len(s.Players) >= s.MaxPlayers
}

// Player is one participant inside a session. ID matches the identity uid.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
	IsHost   bool   `json:"isHost"`
	JoinedAt int64  `json:"joinedAt"`
	IsReady  bool   `json:"isReady"`
}

// GameCodeClaim reserves a join code for a live session, stored at gameCodes/{CODE}.
type GameCodeClaim struct {
	SessionID string `json:"sessionId"`
	CreatedAt int64  `json:"createdAt"`
}
