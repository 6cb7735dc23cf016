// The accounts service runs the fraud scoring engine: five rules fanned out
// per request under a hard deadline, transaction persistence, and velocity
// tracking. Inbound calls are guarded by the pre-shared API key.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finlab/backend/internal/config"
	"github.com/finlab/backend/internal/fraud"
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
	if err := cfg.ValidateAccounts(); err != nil {
		log.Fatalf("Invalid accounts config: %v", err)
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

	metrics := fraud.NewMetrics(nil)
	validator := fraud.NewIBANValidator(kvStore, logger)
	engine := fraud.NewEngine(validator, kvStore, db, db, metrics, logger)
	fraudHandler := handlers.NewFraudHandler(engine, logger)

	router := mux.NewRouter()
	router.Use(middleware.APIKeyAuth(cfg.Security.APIKey, logger))
	router.HandleFunc("/actuator/health", handlers.Health("accounts")).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/invoices/health", handlers.Health("accounts")).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/invoices/validate", fraudHandler.Validate).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

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

	logger.Info("accounts service starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	logger.Info("accounts service stopped")
}
