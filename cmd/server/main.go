package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/agent-console/backend/api/handlers"
	"github.com/agent-console/backend/internal/config"
	"github.com/agent-console/backend/internal/correlate"
	"github.com/agent-console/backend/internal/db"
	"github.com/agent-console/backend/internal/runtime"
	"github.com/agent-console/backend/internal/store"
	"github.com/agent-console/backend/internal/tab"
	"github.com/agent-console/backend/internal/transcript"
	"github.com/agent-console/backend/internal/ws"
)

func main() {
	cfgPath := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			log.Fatalf("Invalid PORT: %v", err)
		}
		cfg.Server.Port = p
	}

	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(cfg.Data.DBPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// Initialize database and saved-session store
	database, err := db.InitDB(cfg.Data.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()
	sessionStore := store.New(database)

	// Transcript recording
	transcripts, err := transcript.NewWriter(cfg.Data.TranscriptDir)
	if err != nil {
		log.Fatalf("Failed to initialize transcripts: %v", err)
	}
	defer transcripts.CloseAll()

	// Hub, correlator, registry
	hub := ws.NewHub()
	broker := correlate.New(cfg.UI.AskTimeout)
	broker.SetBroadcast(hub.BroadcastAll)

	factory := runtime.NewProcFactory(runtime.ProcConfig{
		Command: cfg.Agent.Command,
		Args:    cfg.Agent.Args,
		Model:   cfg.Agent.Model,
		Dir:     cfg.Agent.Workdir,
	})
	registry := tab.NewRegistry(factory, hub,
		tab.WithAsker(correlate.Asker{Broker: broker}),
		tab.WithEventLog(transcripts),
	)
	defer registry.CloseAll()

	// The registry is never empty while connections exist; open the first
	// tab before accepting any.
	if _, err := registry.Create("", nil); err != nil {
		log.Fatalf("Failed to create initial tab: %v", err)
	}

	dispatcher := ws.NewDispatcher(hub, registry, sessionStore, broker)
	wsHandler := handlers.NewWebSocketHandler(ws.NewHandler(dispatcher))
	sessionsHandler := handlers.NewSessionsHandler(sessionStore, registry)

	// Initialize Gin router
	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	api := r.Group("/api")
	{
		sessionsHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down server...")
		hub.Close()
		registry.CloseAll()
		transcripts.CloseAll()
		db.CloseDB()
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
