package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/tradepost/backend/docs"
	"github.com/tradepost/backend/internal/audit"
	"github.com/tradepost/backend/internal/config"
	"github.com/tradepost/backend/internal/database"
	"github.com/tradepost/backend/internal/handlers"
	mW "github.com/tradepost/backend/internal/middleware"
	"github.com/tradepost/backend/internal/repository"
	"github.com/tradepost/backend/internal/services"
)

// @title Tradepost Referral Ledger API
// @version 1.0
// @description Referral bonus ledger, referral sharing and profile ratings
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	config.Init()
	referralCfg := config.LoadReferralConfig()
	purgeCfg := config.LoadPurgeConfig()
	serverCfg := config.LoadServerConfig()
	if err := serverCfg.Validate(); err != nil {
		log.Fatalf("Invalid server configuration: %v", err)
	}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	accounts := repository.NewPostgresAccountRepository(db)
	sinks := []repository.NotificationRepository{repository.NewPostgresNotificationRepository(db)}
	var deduper services.EventDeduper = services.NoopEventDeduper{}
	if redisClient != nil {
		sinks = append(sinks, repository.NewRedisNotificationQueue(redisClient))
		deduper = services.NewRedisEventDeduper(redisClient, referralCfg.EventDedupTTL)
	} else {
		log.Println("[REFERRAL] Redis unavailable: notification queue and event dedup disabled")
	}

	auditLogger := audit.NewAuditLogger()
	notifier := services.NewNotifier(referralCfg.NotifyAttempts, sinks...)
	ledgerService := services.NewReferralLedgerService(accounts, notifier, auditLogger, referralCfg)
	qrService := services.NewReferralQRService(accounts, referralCfg.PublicBaseURL)
	ratingService := services.NewRatingService(accounts)

	referralHandler := handlers.NewReferralHandler(ledgerService, qrService, deduper)
	ratingHandler := handlers.NewRatingHandler(ratingService)

	if purgeCfg.Enabled {
		purgeService := services.NewPurgeService(accounts, auditLogger, purgeCfg)
		scheduler, err := purgeService.StartPurgeScheduler(purgeCfg.Interval)
		if err != nil {
			log.Fatalf("Failed to start purge scheduler: %v", err)
		}
		defer scheduler.Shutdown()
	}

	mW.InitAuthMiddleware(redisClient, serverCfg.JWTSecretKey)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Referral-Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	docs.SwaggerInfo.Schemes = []string{"http", "https"}
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.With(mW.RequireRole(mW.RolePayments)).
				Post("/referrals/qualifying-actions", referralHandler.ProcessQualifyingAction)

			r.Get("/accounts/{accountId}/referrals", referralHandler.GetReferralSummary)
			r.Get("/accounts/{accountId}/referral-qr", referralHandler.GetReferralQR)
			r.Post("/accounts/{accountId}/ratings", ratingHandler.SubmitRating)
		})
	})

	server := &http.Server{
		Addr:         ":" + serverCfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", serverCfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
