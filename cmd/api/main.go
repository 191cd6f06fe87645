package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/auth"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/chat"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/config"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/database"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/http/handlers"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/http/middleware"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/models"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/repository"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/ws"
)

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	return logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := database.ConnectMySQL(cfg.DBDSN)
	if err != nil {
		logger.Fatalf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Message{}); err != nil {
		logger.Fatalf("failed to migrate: %v", err)
	}
	logger.Info("connected to MySQL, schema up to date")

	messageRepo := repository.NewMessageRepository(db)
	userRepo := repository.NewUserRepository(db)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	hub := ws.NewHub(logger)
	notifier := chat.NewNotifier(hub, logger)
	go notifier.Run()
	defer notifier.Close()

	service := chat.NewService(messageRepo, userRepo, notifier, logger)

	r := gin.Default()

	authH := &handlers.AuthHandler{
		Users:    userRepo,
		Verifier: verifier,
		TokenTTL: cfg.TokenTTL,
		Log:      logger,
	}
	r.POST("/api/v1/auth/register", authH.Register)
	r.POST("/api/v1/auth/login", authH.Login)

	wsH := &handlers.WSHandler{
		Hub:            hub,
		Service:        service,
		Verifier:       verifier,
		OriginPatterns: cfg.WSOriginPatterns,
		Log:            logger,
	}
	r.GET("/ws", wsH.Handle)

	authed := r.Group("/api/v1")
	authed.Use(middleware.AuthMiddleware(verifier))

	chatH := &handlers.ChatHandler{Service: service, Log: logger}
	authed.POST("/messages", chatH.SendMessage)
	authed.GET("/messages/received", chatH.ListReceived)
	authed.GET("/messages/sent", chatH.ListSent)
	authed.GET("/messages/unread-count", chatH.UnreadCount)
	authed.PATCH("/messages/read", chatH.MarkRead)
	authed.DELETE("/messages/:id", chatH.DeleteMessage)
	authed.GET("/conversations", chatH.ListConversations)
	authed.GET("/conversations/:userId/messages", chatH.ListConversationMessages)
	authed.PATCH("/conversations/:userId/read", chatH.MarkConversationRead)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: corsHandler,
	}

	go func() {
		logger.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("server exited")
}
