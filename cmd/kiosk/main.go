package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/medkiosk/consult-core/config"
	"github.com/medkiosk/consult-core/internal/call"
	"github.com/medkiosk/consult-core/internal/consult"
	"github.com/medkiosk/consult-core/internal/directory"
	"github.com/medkiosk/consult-core/internal/handlers"
	"github.com/medkiosk/consult-core/internal/middleware"
	"github.com/medkiosk/consult-core/internal/rtc"
	"github.com/medkiosk/consult-core/internal/session"
	"github.com/medkiosk/consult-core/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to the shared signaling store
	signalStore, err := store.NewRedisStore(context.Background(), cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to signaling store: %v", err)
	}
	defer signalStore.Close()

	log.Println("Signaling store connection established")

	// Call core wiring
	consults := consult.NewManager(signalStore)
	notifier := call.NewHTTPNotifier(cfg.Notifier)
	orchestrator := call.NewOrchestrator(consults, notifier, cfg.Call.PhaseTimeout)
	docs := directory.New(signalStore)
	hub := handlers.NewHub()
	mediaSource := rtc.NewSampleMediaSource()

	callService := &handlers.CallService{
		Consults:     consults,
		Orchestrator: orchestrator,
		Directory:    docs,
		Hub:          hub,
	}
	onStatus, onTrack := callService.StatusBroadcaster()
	callService.NewSession = func(roomID string) *session.Session {
		return session.New(session.Config{
			Store: signalStore,
			Media: mediaSource,
			NewLink: func() (rtc.PeerLink, error) {
				return rtc.NewPionLink(cfg.ICE)
			},
			OnStatus:      onStatus,
			OnRemoteTrack: onTrack,
		}, roomID)
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		// Kiosk device login (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret, cfg.KioskSecret))

		// Doctor listing (public, read-only)
		apiGroup.GET("/locations/:locationId/doctors", callService.Doctors)

		// Call placement and teardown (require JWT)
		auth := middleware.JWTAuth(cfg.JWTSecret)
		apiGroup.POST("/calls", auth, callService.PlaceCall)
		apiGroup.POST("/calls/hangup", auth, callService.Hangup)
		apiGroup.GET("/calls/active", auth, callService.ActiveCall)
	}

	// Kiosk UI event stream
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/events", hub.HandleEvents)
	}

	// Start server
	log.Printf("Starting kiosk call daemon on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
