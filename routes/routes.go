package routes

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"gamesync/handlers"
	"gamesync/middleware"
	"gamesync/models"
	"gamesync/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; browsers authenticate with the token query parameter
	},
}

type Handlers struct {
	Auth     *handlers.AuthHandler
	Game     *handlers.GameHandler
	Board    *handlers.BoardHandler
	Template *handlers.TemplateHandler
	Feature  *handlers.FeatureHandler
}

func SetupRoutes(
	router *gin.Engine,
	h Handlers,
	hub *services.Hub,
	gameService *services.GameService,
	authService *services.AuthService,
) {
	authRequired := middleware.AuthMiddleware(authService)

	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
		}

		protected := api.Group("/")
		protected.Use(authRequired)
		{
			protected.GET("/auth/profile", h.Auth.GetProfile)
			protected.GET("/features/:feature", h.Feature.CheckFeature)
			protected.PUT("/users/:uid/plan", h.Feature.SetPlan)

			sessions := protected.Group("/sessions")
			{
				sessions.GET("", h.Game.ListSessions)
				sessions.POST("", h.Game.CreateSession)
				sessions.POST("/join", h.Game.JoinSession)
				sessions.GET("/:id", h.Game.GetSession)
				sessions.POST("/:id/leave", h.Game.LeaveSession)
				sessions.POST("/:id/ready", h.Game.ToggleReady)
				sessions.POST("/:id/start", h.Game.StartGame)
				sessions.POST("/:id/finish", h.Game.FinishGame)
				sessions.GET("/:id/chat", h.Game.GetChat)
				sessions.POST("/:id/chat", h.Game.PostChat)
				sessions.GET("/:id/state", h.Game.GetGameState)
				sessions.PATCH("/:id/state", h.Game.UpdateGameState)

				sessions.PUT("/:id/cursor", h.Board.UpdateCursor)
				sessions.GET("/:id/cursors", h.Board.GetCursors)
				sessions.POST("/:id/words/:wordId/lock", h.Board.ClaimWord)
				sessions.DELETE("/:id/words/:wordId/lock", h.Board.ReleaseWord)
				sessions.POST("/:id/board", h.Board.NewRound)
				sessions.POST("/:id/board/drop", h.Board.Drop)
				sessions.POST("/:id/board/return", h.Board.ReturnWord)
			}

			templates := protected.Group("/templates")
			{
				templates.GET("", h.Template.ListTemplates)
				templates.POST("", h.Template.CreateTemplate)
				templates.GET("/:id", h.Template.GetTemplate)
				templates.DELETE("/:id", h.Template.DeleteTemplate)
			}
		}
	}

	ws := router.Group("/ws")
	ws.Use(authRequired)
	{
		ws.GET("/lobby", func(c *gin.Context) {
			serveWebSocket(c, hub, "")
		})

		ws.GET("/sessions/:id", func(c *gin.Context) {
			id := c.Param("id")
			identity := c.MustGet(middleware.IdentityKey).(models.Identity)

			// Only players of the game may follow it
			if err := validatePlayerAccess(c.Request.Context(), gameService, id, identity.UID); err != nil {
				log.Printf("Player access validation failed for game %s, player %s: %v", id, identity.UID, err)
				c.JSON(http.StatusForbidden, gin.H{"error": "Player not found in game"})
				return
			}

			serveWebSocket(c, hub, id)
		})
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.ClientCount()})
	})
}

func serveWebSocket(c *gin.Context, hub *services.Hub, sessionID string) {
	identity := c.MustGet(middleware.IdentityKey).(models.Identity)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", identity.UID, err)
		return
	}

	if _, err := hub.RegisterClient(conn, identity, sessionID); err != nil {
		log.Printf("Failed to register WebSocket client for %s: %v", identity.UID, err)
		conn.Close()
		return
	}
	log.Printf("WebSocket connection established for %s (game %q)", identity.UID, sessionID)
}

// validatePlayerAccess checks that uid is a player of the session.
func validatePlayerAccess(ctx context.Context, gameService *services.GameService, id, uid string) error {
	member, err := gameService.IsMember(ctx, id, uid)
	if err != nil {
		return fmt.Errorf("game not found: %w", err)
	}
	if !member {
		return fmt.Errorf("player %s not found in game %s", uid, id)
	}
	return nil
}
