package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/mewspay/vpos/bank"
	"github.com/mewspay/vpos/checkout"
	"github.com/mewspay/vpos/gateway"
	"github.com/mewspay/vpos/infra/config"
	"github.com/mewspay/vpos/infra/logger"
	"github.com/mewspay/vpos/infra/middle"
	"github.com/mewspay/vpos/infra/opensearch"
	"github.com/mewspay/vpos/infra/response"
	"github.com/mewspay/vpos/infra/store"
	"github.com/mewspay/vpos/infra/validate"
	"github.com/mewspay/vpos/installment"
	"github.com/mewspay/vpos/router"
	v1 "github.com/mewspay/vpos/router/v1"
	"github.com/mewspay/vpos/transaction"
)

var (
	PORT             string
	openSearchLogger *opensearch.Logger
)

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	// init conf
	_ = config.App()
	validate.CustomValidate()

	PORT = config.GetEnv("APP_PORT", "9999")

	// Initialize OpenSearch client and logger
	cfg := config.GetAppConfig()
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}

	if openSearchLogger != nil {
		logger.InitGlobalLogger(openSearchLogger)
	} else {
		logger.InitGlobalLogger(nil)
	}
}

func main() {
	cfg := config.GetAppConfig()

	// Open the backing store for banks, plans and transactions
	sqlStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", cfg.DatabasePath, err)
	}
	defer sqlStore.Close()

	// BIN lookups go through an LRU cache in front of SQLite
	banks := bank.NewCachedDirectory(sqlStore, 10000, 15*time.Minute)
	plans := installment.NewEngine(sqlStore, sqlStore)
	txns := transaction.NewManager(sqlStore)

	opts := []checkout.Option{}
	if openSearchLogger != nil {
		opts = append(opts, checkout.WithAuditLogger(openSearchLogger))
	}
	checkoutService := checkout.NewService(
		banks, txns, plans,
		cfg.BaseCallbackURL,
		cfg.Environment == "production",
		opts...,
	)

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Security Middleware
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.IPWhitelistMiddleware())
	r.Use(middle.RequestValidationMiddleware())
	r.Use(middle.RequestLoggingMiddleware())

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300, // Preflight cache time (second)
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{
			"status":             "ok",
			"timestamp":          time.Now().UTC(),
			"version":            "1.0.0",
			"opensearch_enabled": openSearchLogger != nil,
			"gateways":           gateway.DefaultRegistry.Kinds(),
		}
		_ = response.WriteJSON(w, http.StatusOK, response.Response{
			Success: true,
			Message: "Service is healthy",
			Data:    health,
		})
	})

	// API routes
	deps := v1.Dependencies{
		Checkout: checkoutService,
		Banks:    banks,
		Registry: gateway.DefaultRegistry,
		DB:       sqlStore.DB(),
	}
	if openSearchLogger != nil {
		deps.Logs = openSearchLogger
	}
	router.Routes(r, deps)

	// Not Found
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = response.WriteJSON(w, http.StatusNotFound, response.Response{Success: false, Message: "Not Found"})
	})

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", PORT),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err.Error())
		}
	}()

	log.Println("API is running on", PORT)

	// Block until a signal is received
	<-ctx.Done()

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
