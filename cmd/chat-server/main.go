package main

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/pawlink/pawlink-chat/internal/auth"
	"github.com/pawlink/pawlink-chat/internal/health"
	"github.com/pawlink/pawlink-chat/internal/server"
	"github.com/pawlink/pawlink-chat/pkg/database"
	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/metrics"
	"github.com/pawlink/pawlink-chat/pkg/utils"
)

func main() {
	// Load environment variables from .env if present (optional)
	_ = godotenv.Load()

	// Initialize logger
	logLevel := logger.INFO
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logLevel = logger.DEBUG
	case "warn":
		logLevel = logger.WARN
	case "error":
		logLevel = logger.ERROR
	}
	jsonFormat := os.Getenv("LOG_FORMAT") == "json"
	logger.Init(logLevel, jsonFormat, os.Stdout)

	log := logger.GetLogger().WithContext("component", "chat_server")
	log.Info("starting_chat_server", "version", "1.0.0")

	// Initialize database
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/pawlink.db"
	}

	if err := database.InitDatabase(dbPath); err != nil {
		log.Error("failed_to_initialize_database", "error", err.Error(), "path", dbPath)
		os.Exit(1)
	}
	defer database.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "your-secret-key-change-this-in-production"
		log.Warn("using_default_jwt_secret", "message", "Set JWT_SECRET environment variable in production!")
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
		log.Info("using_default_frontend_url", "url", frontendURL)
	}

	// Realtime plumbing: one hub for WebSocket rooms, one broker for SSE
	// streams. REST writes mirror into both so every transport sees the
	// same events.
	hub := server.NewHub()
	go hub.Run()

	broker := server.NewSSEBroker()
	store := server.NewStore(database.DB)
	wsServer := server.NewWSServer(hub, store, broker, jwtSecret)

	authHandler := auth.NewHandler(jwtSecret)
	chatHandler := server.NewChatHandler(store, hub, broker)
	healthHandler := health.NewHandler(hub, broker)
	metricsHandler := metrics.NewHandler()

	// Setup Gin router
	router := gin.Default()

	// CORS middleware configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{frontendURL}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health and metrics endpoints
	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/readyz", healthHandler.Readyz)
	router.GET("/metrics", metricsHandler.Metrics)

	// Auth routes (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}
	// Protected account routes
	protectedAuth := router.Group("/auth")
	protectedAuth.Use(authHandler.Middleware())
	{
		protectedAuth.POST("/logout", authHandler.Logout)
		protectedAuth.POST("/change-password", authHandler.ChangePassword)
	}

	// Chat REST routes plus the SSE stream and its subscribe side channel
	chatHandler.RegisterRoutes(router)

	// WebSocket endpoint (token validated during the upgrade handshake)
	router.GET("/ws/chat", wsServer.HandleWebSocket)

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	localIP := utils.GetLocalIP()
	log.Info("chat_server_listening", "port", port, "lan_address", localIP+":"+port)
	if err := router.Run(":" + port); err != nil {
		log.Error("failed_to_start_chat_server", "error", err.Error())
		os.Exit(1)
	}
}
