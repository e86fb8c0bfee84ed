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
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/voyasim/backend/internal/config"
	"github.com/voyasim/backend/internal/handler"
	appMiddleware "github.com/voyasim/backend/internal/middleware"
	"github.com/voyasim/backend/internal/repository"
	"github.com/voyasim/backend/internal/service"
	"github.com/voyasim/backend/internal/ws"
	"github.com/voyasim/backend/pkg/esimaccess"
	"github.com/voyasim/backend/pkg/payment"
)

func main() {
	// Load .env file if present (for local development)
	_ = godotenv.Load()

	// Missing provider credentials refuse startup here rather than failing
	// inside a fulfillment triggered by a paid webhook.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database error: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := repository.RunMigrations(ctx, db); err != nil {
		log.Fatalf("❌ Migration error: %v", err)
	}
	log.Println("✅ Database connected & migrated")

	// Repositories
	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	esimRepo := repository.NewEsimRepository(db)
	cacheRepo := repository.NewCacheRepository(db)

	// Provider clients
	provider := esimaccess.New(esimaccess.Config{
		BaseURL:    cfg.EsimAccessBaseURL,
		AccessCode: cfg.EsimAccessAccessCode,
		SecretKey:  cfg.EsimAccessSecretKey,
		SMDPDomain: cfg.EsimSMDPDomain,
	}, nil)
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, "")

	// Services
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, userRepo)
	if err := authSvc.SeedAdmin(ctx); err != nil {
		log.Fatalf("❌ Admin seed error: %v", err)
	}

	catalogSvc := service.NewCatalogService(planRepo, provider, cacheRepo)
	checkoutSvc := service.NewCheckoutService(gateway, planRepo, esimRepo, authSvc, cfg.FrontendURL)
	fulfillmentSvc := service.NewFulfillmentService(provider, esimRepo, planRepo, service.FulfillmentOptions{
		FallbackPackageCode: cfg.FallbackPackageCode,
		PollInterval:        cfg.PollInterval,
		PollMaxAttempts:     cfg.PollMaxAttempts,
	})

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	healthHandler := handler.NewHealthHandler(db)
	userHandler := handler.NewUserHandler(authSvc)
	plansHandler := handler.NewPlansHandler(catalogSvc)
	orderHandler := handler.NewOrderHandler(checkoutSvc, esimRepo, planRepo)
	webhookHandler := handler.NewWebhookHandler(gateway, fulfillmentSvc)
	adminHandler := handler.NewAdminHandler(db, esimRepo)
	watchHandler := ws.NewWatchHandler(esimRepo)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	r.Use(globalRL.Middleware())

	// Health check and public routes (no auth)
	r.Get("/health", healthHandler.Check)
	r.Get("/api/plans", plansHandler.List)
	r.Get("/api/plans/{id}", plansHandler.GetByID)
	r.Post("/api/order", orderHandler.CreateOrder)
	r.Post("/api/topup", orderHandler.CreateTopup)
	r.Get("/api/order/{sessionId}", orderHandler.GetStatus)
	r.Get("/api/order/{sessionId}/watch", func(w http.ResponseWriter, req *http.Request) {
		watchHandler.Handle(w, req, chi.URLParam(req, "sessionId"))
	})

	// Webhooks are public: the payment provider authenticates via signature,
	// the provisioning provider delivers unauthenticated callbacks.
	r.Post("/api/webhooks/payment", webhookHandler.HandlePayment)
	r.Post("/api/webhooks/provider", webhookHandler.HandleProvider)

	// Auth routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.StrictRateLimiter())
		r.Post("/api/auth/login", authHandler.Login)
	})

	// Protected admin routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(authSvc))
		r.Use(appMiddleware.AdminOnly)

		r.Post("/api/admin/sync", plansHandler.Sync)
		r.Get("/api/admin/sync", plansHandler.SyncStatus)
		r.Patch("/api/admin/plans/{id}", plansHandler.Update)
		r.Get("/api/admin/stats", adminHandler.GetStats)
		r.Get("/api/admin/esims", adminHandler.ListEsims)
		r.Get("/api/admin/esims/{id}/topups", adminHandler.ListEsimTopups)
		r.Get("/api/admin/users", userHandler.List)
		r.Post("/api/users", userHandler.Create)
		r.Delete("/api/users/{id}", userHandler.Delete)
	})

	// Start server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must be 0 for WebSocket connections (they are long-lived)
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("🛑 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("🚀 VoyaSim Backend listening at http://%s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("❌ Server error: %v", err)
	}
}
