package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/amiyamandal-dev/feedsync/internal/api"
	"github.com/amiyamandal-dev/feedsync/internal/api/handlers"
	"github.com/amiyamandal-dev/feedsync/internal/auth"
	"github.com/amiyamandal-dev/feedsync/internal/config"
	"github.com/amiyamandal-dev/feedsync/internal/repository"
	"github.com/amiyamandal-dev/feedsync/internal/repository/badger"
	"github.com/amiyamandal-dev/feedsync/internal/repository/sqlite"
	"github.com/amiyamandal-dev/feedsync/internal/service"
	"github.com/amiyamandal-dev/feedsync/internal/socket"
	"github.com/amiyamandal-dev/feedsync/internal/validator"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

const devUserID = "dev-user"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting feed API server",
		"version", "1.0.0",
		"mode", cfg.Server.Mode,
	)

	db, err := openStore(cfg.Database)
	if err != nil {
		log.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	log.Info("Database initialized",
		"driver", cfg.Database.Driver,
		"path", cfg.Database.Path,
		"in_memory", cfg.Database.InMemory(),
	)

	secret := cfg.Auth.TokenSecret
	if secret == "" {
		secret = randomSecret()
		log.Warn("auth.token_secret is not set, tokens will not survive a restart")
	}
	jwtManager := auth.NewJWTManager(secret, cfg.Auth.TokenExpiry)

	hub := socket.NewHub(handlers.AuthorizeFeedJoin, log)
	messageService := service.NewMessageService(db.messages, hub, log)

	router := api.NewRouter(
		handlers.NewFeedHandler(messageService, validator.New(), log),
		handlers.NewMessageHandler(messageService, log),
		handlers.NewSocketHandler(hub, log),
		handlers.NewHealthHandler(db, log),
		jwtManager,
		cfg,
		log,
	)
	engine := router.Setup()
	defer router.Close()

	userID := cfg.API.UserID
	if userID == "" {
		userID = devUserID
	}
	token, expiresAt, err := jwtManager.GenerateUserToken(userID)
	if err != nil {
		log.Error("Failed to issue development token", "error", err)
		os.Exit(1)
	}
	log.Info("Development user token issued",
		"user_id", userID,
		"user_token", token,
		"expires_at", expiresAt,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Server started successfully", "address", addr)

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Hijacked websocket connections are not closed by Shutdown
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server stopped gracefully")
}

// store is the message repository chosen by database.driver
type store struct {
	messages repository.MessageRepository
	health   handlers.HealthChecker
	closer   io.Closer
}

func (s *store) HealthCheck() error { return s.health.HealthCheck() }

func (s *store) Close() error { return s.closer.Close() }

func openStore(cfg config.DatabaseConfig) (*store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &store{messages: sqlite.NewMessageRepo(db), health: db, closer: db}, nil
	default:
		db, err := badger.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &store{messages: badger.NewMessageRepo(db), health: db, closer: db}, nil
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
