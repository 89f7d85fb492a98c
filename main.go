package main

import (
	"context"
	"log"

	"gamesync/config"
	"gamesync/handlers"
	"gamesync/middleware"
	"gamesync/models"
	"gamesync/routes"
	"gamesync/services"
	"gamesync/store"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	backend, err := openBackend(cfg)
	if err != nil {
		log.Fatal("Failed to open store backend:", err)
	}
	st := store.New(backend)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	// Initialize services
	chat := services.NewChatChannel(st)
	gameService := services.NewGameService(st, chat)
	gameService.UseModerator(services.NewModerator(cfg.BannedWords))
	scheduler := services.NewTimerScheduler(gameService.ExpireGame)
	gameService.UseScheduler(scheduler)
	defer scheduler.Stop()

	directory := services.NewSessionDirectory(st)
	presence := services.NewPresenceService(st, cfg.CursorThrottle)
	templateService := services.NewTemplateService(st)
	wordGame := services.NewWordGameService(st, templateService, cfg.RoundResetDelay)
	defer wordGame.Stop()
	accessService := services.NewAccessService(st)
	accessService.UseAdmins(cfg.AdminEmails)
	authService := services.NewAuthService(st, cfg.JWTSecret)

	// Re-arm timers of games that were playing when the server last stopped
	if sessions, err := directory.List(ctx, services.ListOptions{Status: models.StatusPlaying}); err != nil {
		log.Printf("Failed to resume game timers: %v", err)
	} else {
		log.Printf("Resumed %d game timers", scheduler.Resume(sessions))
	}

	// Initialize WebSocket hub
	hub := services.NewHub(gameService, directory, chat, presence, wordGame)
	go hub.Run()

	// Initialize handlers
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService),
		Game:     handlers.NewGameHandler(gameService, directory, chat, hub),
		Board:    handlers.NewBoardHandler(presence, wordGame, hub),
		Template: handlers.NewTemplateHandler(templateService),
		Feature:  handlers.NewFeatureHandler(accessService),
	}

	// Setup Gin router
	router := gin.Default()
	router.Use(middleware.CORS(cfg.CORSOrigins))

	routes.SetupRoutes(router, h, hub, gameService, authService)

	// Start server
	log.Printf("Server starting on %s (store backend: %s)", cfg.Addr(), cfg.StoreBackend)
	if err := router.Run(cfg.Addr()); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func openBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := config.InitDB(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(&models.StoreNode{}); err != nil {
			return nil, err
		}
		return store.NewPostgresBackend(db), nil
	case config.BackendRedis:
		client := config.InitRedis(cfg)
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		return store.NewRedisBackend(client, cfg.RedisPrefix), nil
	default:
		log.Printf("Using in-memory store; state is lost on restart")
		return store.NewMemoryBackend(), nil
	}
}
