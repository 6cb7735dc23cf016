// The gateway service terminates user credentials: it issues, refreshes, and
// revokes tokens, authenticates inbound requests, and forwards validated
// fraud checks to the accounts service over the API-key channel.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/finlab/backend/internal/audit"
	"github.com/finlab/backend/internal/auth"
	"github.com/finlab/backend/internal/config"
	"github.com/finlab/backend/internal/handlers"
	"github.com/finlab/backend/internal/kv"
	"github.com/finlab/backend/internal/middleware"
	"github.com/finlab/backend/internal/store"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateGateway(); err != nil {
		log.Fatalf("Invalid gateway config: %v", err)
	}

	db, err := store.Open(cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	kvStore, err := kv.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer kvStore.Close()

	auditSink := audit.NewSink(db, logger, cfg.Audit.QueueSize)
	defer auditSink.Close()

	tokens, err := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:     []byte(cfg.JWT.Secret),
		AccessTTL:  cfg.JWT.AccessExpiration,
		RefreshTTL: cfg.JWT.RefreshExpiration,
	}, kvStore, db, logger)
	if err != nil {
		log.Fatalf("Failed to build token service: %v", err)
	}

	authService := auth.NewService(tokens, db, auditSink, logger)
	seedDefaultUser(db, logger)

	accountsClient := handlers.NewAccountsClient(cfg.Accounts.ServiceURL, cfg.Security.APIKey)
	authHandler := handlers.NewAuthHandler(authService, logger)
	invoiceHandler := handlers.NewInvoiceProxyHandler(accountsClient, auditSink, logger)

	router := mux.NewRouter()
	router.HandleFunc("/actuator/health", handlers.Health("gateway")).Methods(http.MethodGet)

	loginLimiter := middleware.NewRateLimiter(cfg.Security.LoginRateLimit, handlers.ClientIP, logger)

	authRoutes := router.PathPrefix("/api/auth").Subrouter()
	authRoutes.Use(loginLimiter.Middleware)
	authRoutes.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)
	authRoutes.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)
	authRoutes.HandleFunc("/refresh", authHandler.Refresh).Methods(http.MethodPost)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.BearerAuth(tokens, logger))
	api.HandleFunc("/invoices/validate", invoiceHandler.Validate).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("gateway starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	logger.Info("gateway stopped")
}

// seedDefaultUser creates the bootstrap account when SEED_ADMIN_USERNAME and
// SEED_ADMIN_PASSWORD are set. Existing users are never modified.
func seedDefaultUser(db *store.Store, logger *slog.Logger) {
	username := os.Getenv("SEED_ADMIN_USERNAME")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if username == "" || password == "" {
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Error("seed user hash failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	email := os.Getenv("SEED_ADMIN_EMAIL")
	if email == "" {
		email = username + "@localhost"
	}
	if err := db.EnsureUser(ctx, username, email, hash, "Administrator"); err != nil {
		logger.Error("seed user failed", "user", username, "error", err)
		return
	}
	logger.Info("seed user ensured", "user", username)
}
