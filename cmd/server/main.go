package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-server/internal/auth"
	"chat-server/internal/config"
	"chat-server/internal/database"
	"chat-server/internal/handlers"
	"chat-server/internal/realtime"
	"chat-server/internal/services"
	"chat-server/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Configure(cfg.Env, cfg.LogLevel)

	// Initialize database
	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to open database: %v", err)
	}
	defer db.Close()

	// Presence persistence is optional
	var hubOpts []realtime.Option
	if cfg.Redis.URL != "" {
		presence, err := database.NewRedisPresenceStore(context.Background(), cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer presence.Close()

		// Nobody is connected to a process that just started.
		n, err := presence.MarkAllOffline(context.Background(), time.Now())
		if err != nil {
			logger.Warn("Failed to reset stored presence: %v", err)
		} else if n > 0 {
			logger.Info("Marked %d stale presence records offline", n)
		}
		hubOpts = append(hubOpts, realtime.WithPresenceStore(presence))
	}

	hubOpts = append(hubOpts, realtime.WithLogger(logger.With().Str("component", "hub").Logger()))
	hub := realtime.NewHub(db, db, cfg.Realtime, hubOpts...)

	// Initialize services
	authService := auth.NewService(db, cfg)
	groupService := services.NewGroupService(db, hub)
	messageService := services.NewMessageService(db)

	router := handlers.NewRouter(handlers.Deps{
		Auth:           authService,
		Hub:            hub,
		Groups:         groupService,
		Messages:       messageService,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            logger.With().Str("component", "http").Logger(),
	})

	// Create server. The websocket route hijacks the connection, so
	// WriteTimeout does not cut long-lived sessions.
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s (store=%s)", cfg.Server.Port, cfg.Database.Driver)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
	hub.Close()
	logger.Info("Server stopped")
}

func openDatabase(cfg *config.Config) (database.Database, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory store; nothing survives a restart")
		return database.NewMemoryDB(), nil
	default:
		db, err := database.NewPostgresDB(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
}
