package handlers

import (
	"log"
	"net/http"

	"gamesync/models"
	"gamesync/services"

	"github.com/gin-gonic/gin"
)

type GameHandler struct {
	gameService *services.GameService
	directory   *services.SessionDirectory
	chat        *services.ChatChannel
	hub         *services.Hub
}

func NewGameHandler(gameService *services.GameService, directory *services.SessionDirectory, chat *services.ChatChannel, hub *services.Hub) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		directory:   directory,
		chat:        chat,
		hub:         hub,
	}
}

func (h *GameHandler) ListSessions(c *gin.Context) {
	var opts services.ListOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessions, err := h.directory.List(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

func (h *GameHandler) CreateSession(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.gameService.CreateGameSession(c.Request.Context(), identity, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *GameHandler) JoinSession(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.gameService.JoinGameSession(c.Request.Context(), identity, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": id})
}

func (h *GameHandler) GetSession(c *gin.Context) {
	id := c.Param("id")
	session, err := h.gameService.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	connected := []string{}
	if h.hub != nil {
		connected = h.hub.GetConnectedPlayers(id)
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "connectedPlayers": connected})
}

func (h *GameHandler) LeaveSession(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	if err := h.gameService.LeaveGameSession(c.Request.Context(), identity, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left game successfully"})
}

func (h *GameHandler) ToggleReady(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	ready, err := h.gameService.TogglePlayerReady(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"isReady": ready})
}

func (h *GameHandler) StartGame(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	id := c.Param("id")
	session, err := h.gameService.StartGame(c.Request.Context(), identity, id)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.hub != nil {
		log.Printf("Game %s started. Connected players: %v", id, h.hub.GetConnectedPlayers(id))
	}
	c.JSON(http.StatusOK, session)
}

func (h *GameHandler) FinishGame(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	session, err := h.gameService.FinishGame(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *GameHandler) GetChat(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	id := c.Param("id")
	member, err := h.gameService.IsMember(c.Request.Context(), id, identity.UID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, services.ErrNotInSession)
		return
	}

	msgs, err := h.chat.Messages(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, msgs)
}

func (h *GameHandler) PostChat(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.gameService.AddChatMessage(c.Request.Context(), identity, c.Param("id"), req.Message, false)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *GameHandler) GetGameState(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	id := c.Param("id")
	member, err := h.gameService.IsMember(c.Request.Context(), id, identity.UID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		respondError(c, services.ErrNotInSession)
		return
	}

	state, err := h.gameService.GetGameState(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *GameHandler) UpdateGameState(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var partial models.GameState
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.gameService.UpdateGameState(c.Request.Context(), identity, c.Param("id"), partial)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}
