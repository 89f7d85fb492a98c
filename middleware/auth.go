package middleware

import (
	"net/http"
	"strings"

	"gamesync/services"

	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the caller's models.Identity.
const IdentityKey = "identity"

// AuthMiddleware accepts a bearer token, or a token query parameter for
// WebSocket upgrades where browsers cannot set headers.
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		identity, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}
