package handlers

import (
	"net/http"

	"gamesync/services"

	"github.com/gin-gonic/gin"
)

// BoardHandler serves presence and the word-placement game.
type BoardHandler struct {
	presence *services.PresenceService
	words    *services.WordGameService
	hub      *services.Hub
}

func NewBoardHandler(presence *services.PresenceService, words *services.WordGameService, hub *services.Hub) *BoardHandler {
	return &BoardHandler{presence: presence, words: words, hub: hub}
}

func (h *BoardHandler) UpdateCursor(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.CursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	written, err := h.presence.UpdateCursor(c.Request.Context(), identity, c.Param("id"), req.X, req.Y)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"written": written})
}

func (h *BoardHandler) GetCursors(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	cursors, err := h.presence.ActiveCursors(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cursors)
}

func (h *BoardHandler) ClaimWord(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	lock, err := h.presence.ClaimWord(c.Request.Context(), identity, c.Param("id"), c.Param("wordId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, lock)
}

func (h *BoardHandler) ReleaseWord(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	if err := h.presence.ReleaseWord(c.Request.Context(), identity, c.Param("id"), c.Param("wordId")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Word released"})
}

func (h *BoardHandler) NewRound(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	board, err := h.words.NewRound(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, board)
}

func (h *BoardHandler) Drop(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	result, err := h.words.Drop(c.Request.Context(), identity, id, req.WordID, req.SlotID)
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Completed && h.hub != nil {
		h.hub.BroadcastToSession(id, "round_complete", gin.H{
			"round":       result.Board.Round,
			"completedBy": identity.UID,
		})
	}
	c.JSON(http.StatusOK, result)
}

func (h *BoardHandler) ReturnWord(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.ReturnWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	board, err := h.words.ReturnWord(c.Request.Context(), identity, c.Param("id"), req.WordID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}
