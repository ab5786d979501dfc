package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jarvis/internal/api"
	"jarvis/internal/api/handlers"
	"jarvis/internal/repository"
	"jarvis/internal/service"
	"jarvis/pkg/auth"
	"jarvis/pkg/config"
	"jarvis/pkg/logger"

	"go.uber.org/zap"
)

// @title Jarvis API
// @version 1.0
// @description Self-learning assistant: chat, star-rated feedback and learning statistics

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting Jarvis service", zap.String("store_driver", cfg.Store.Driver))

	ctx := context.Background()

	// Snapshot storage
	repo, err := repository.Open(ctx, cfg, logger.Component("repository"))
	if err != nil {
		appLogger.Fatal("Failed to open snapshot store", zap.Error(err))
	}
	defer repo.Close()

	// Online provider is optional; without it every request is answered offline
	var provider service.Provider
	if cfg.GigaChat.Enabled() {
		gigachat, err := service.NewGigaChatProvider(ctx, &cfg.GigaChat, logger.Component("gigachat"))
		if err != nil {
			appLogger.Warn("Online provider unavailable, running offline only", zap.Error(err))
		} else {
			provider = gigachat
			defer gigachat.Close()
		}
	} else {
		appLogger.Info("GIGACHAT_API_KEY not set, running offline only")
	}

	// Initialize services
	assistant := service.NewAssistantService(ctx, cfg, repo, provider, logger.Component("assistant"))

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration)
	adminService := service.NewAdminService(cfg.Admin.PasswordHash, jwtManager, logger.Component("admin"))

	// Initialize handlers
	handlerLogger := logger.Component("http")
	chatHandler := handlers.NewChatHandler(assistant, handlerLogger)
	feedbackHandler := handlers.NewFeedbackHandler(assistant, handlerLogger)
	systemHandler := handlers.NewSystemHandler(assistant, handlerLogger)
	adminHandler := handlers.NewAdminHandler(adminService, assistant, handlerLogger)

	// Setup router
	app := api.SetupRouter(chatHandler, feedbackHandler, systemHandler, adminHandler, jwtManager, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := assistant.Close(flushCtx); err != nil {
		appLogger.Error("Failed to persist learning state", zap.Error(err))
	}
}
