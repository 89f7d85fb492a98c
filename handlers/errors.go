package handlers

import (
	"errors"
	"net/http"

	"gamesync/middleware"
	"gamesync/models"
	"gamesync/services"
	"gamesync/store"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrTemplateNotFound),
		errors.Is(err, store.ErrInvalidPath):
		return http.StatusNotFound
	case errors.Is(err, services.ErrGameFull),
		errors.Is(err, services.ErrGameStarted),
		errors.Is(err, services.ErrGameFinished),
		errors.Is(err, services.ErrGameNotPlaying),
		errors.Is(err, services.ErrNoActiveRound),
		errors.Is(err, services.ErrWordLocked),
		errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotHost),
		errors.Is(err, services.ErrNotInSession),
		errors.Is(err, services.ErrNotTemplateOwner),
		errors.Is(err, services.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func currentIdentity(c *gin.Context) (models.Identity, bool) {
	v, exists := c.Get(middleware.IdentityKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	if !ok || identity.UID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return models.Identity{}, false
	}
	return identity, true
}
