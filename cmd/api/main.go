// cmd/api/main.go
// Main entry point for the chat API
// This file bootstraps all components and starts the server

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
	"github.com/imadgeboyega/kiekky-chat/internal/common/database"
	"github.com/imadgeboyega/kiekky-chat/internal/common/logger"
	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
	"github.com/imadgeboyega/kiekky-chat/internal/config"
	"github.com/imadgeboyega/kiekky-chat/internal/friends"
	"github.com/imadgeboyega/kiekky-chat/internal/messaging"
)

var startTime = time.Now()

func main() {
	// 1. Load environment variables
	envErr := godotenv.Load()

	// 2. Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// 3. Logger
	zlog, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zlog.Sync()

	if envErr != nil {
		zlog.Info("no .env file found, using environment variables")
	}

	// 4. Database
	db, err := database.NewPostgresDBFromURL(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := runMigrations(migrateCtx, db, zlog); err != nil {
		cancelMigrate()
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}
	cancelMigrate()

	// 5. Last-seen store: redis when configured, process memory otherwise
	var lastSeen messaging.LastSeenStore = messaging.NewMemoryLastSeenStore()
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClientFromURL(cfg.RedisURL)
		if err != nil {
			zlog.Warn("redis unavailable, last seen is kept in memory", zap.Error(err))
		} else {
			defer redisClient.Close()
			lastSeen = messaging.NewRedisLastSeenStore(redisClient, "chat")
		}
	}

	// 6. Auth
	authService := auth.NewService(auth.NewPostgresRepository(db), &auth.Config{
		JWTSecret:         cfg.JWTSecret,
		JWTIssuer:         cfg.JWTIssuer,
		AccessTokenExpiry: cfg.AccessTokenExpiry,
		BCryptCost:        cfg.BCryptCost,
	}, zlog)
	authMiddleware := auth.NewMiddleware(authService)
	authHandler := auth.NewHandler(authService, authMiddleware)

	// 7. Friends
	friendsService := friends.NewService(friends.NewPostgresRepository(db), authService, zlog)
	friendsHandler := friends.NewHandler(friendsService)

	// 8. Messaging
	messagingRepo := messaging.NewPostgresRepository(db)
	messagingService := messaging.NewService(messagingRepo, authService, friendsService, zlog)

	push := messaging.NewLogPushService(zlog)
	if cfg.EnablePushNotifications && cfg.FCMCredentialsFile != "" {
		fcm, err := messaging.NewPushService(context.Background(), cfg.FCMCredentialsFile, messagingRepo, zlog)
		if err != nil {
			zlog.Warn("push notifications disabled", zap.Error(err))
		} else {
			push = fcm
		}
	}

	hub := messaging.NewHub(zlog)
	presence := messaging.NewPresenceTracker(cfg.PresenceOfflineGrace, lastSeen, zlog)
	calls := messaging.NewCallRelay(presence, hub, zlog)
	sessions := messaging.NewSessionManager(messagingService, authService, authService, hub, presence, calls, push, zlog)

	wsHandler := messaging.NewWebSocketHandler(sessions, cfg.WSAllowedOrigins, cfg.WSSendBuffer, zlog)
	messagingHandler := messaging.NewHandler(messagingService, sessions, authService)

	// 9. Routes
	router := newRouter(zlog, hub)
	authHandler.RegisterRoutes(router)
	friends.RegisterRoutes(router, friendsHandler, authMiddleware.Authenticate)
	messaging.RegisterRoutes(router, messagingHandler, wsHandler, authMiddleware.Authenticate)

	// 10. Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := sessions.Shutdown(ctx); err != nil {
		zlog.Warn("realtime sessions did not drain", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}

// newRouter wires the global middleware and the unauthenticated routes
func newRouter(logger *zap.Logger, hub *messaging.Hub) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(loggingMiddleware(logger))
	router.Use(corsMiddleware)

	// mux only runs middleware on a matched route, so preflights need one
	router.Methods(http.MethodOptions).HandlerFunc(preflight)

	router.HandleFunc("/health", healthCheck(hub)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func healthCheck(hub *messaging.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.SuccessResponse(w, map[string]interface{}{
			"status":      "healthy",
			"service":     "kiekky-chat",
			"uptime":      time.Since(startTime).Round(time.Second).String(),
			"connections": hub.Count(),
		}, http.StatusOK)
	}
}

// loggingMiddleware logs all requests
func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	httpLog := logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}
			httpLog.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr))
		})
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
