package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/clients/shopify"
	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/database"
	"catalog-sync-service/internal/feed"
	"catalog-sync-service/internal/handlers"
	"catalog-sync-service/internal/middleware"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/secrets"
	"catalog-sync-service/internal/services"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize logrus logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.CatalogItem{},
		&models.CatalogVariant{},
		&models.MediaAsset{},
		&models.ShadowRecord{},
		&models.SyncRun{},
		&models.SyncLogEntry{},
		&models.Conflict{},
		&models.WebhookEvent{},
	); err != nil {
		log.Printf("Warning: Auto-migration failed: %v", err)
	}
	log.Println("Database models migrated")

	// Initialize GCP Secret Manager
	var secretManager *secrets.GCPSecretManager
	if cfg.GCPProjectID != "" {
		ctx := context.Background()
		secretManager, err = secrets.NewGCPSecretManager(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Printf("Warning: Failed to initialize GCP Secret Manager: %v", err)
		} else {
			log.Println("GCP Secret Manager initialized")
			defer secretManager.Close()
		}
	}

	// Resolve Shopify credentials, preferring Secret Manager over env vars
	shopDomain := cfg.ShopifyShopDomain
	accessToken := cfg.ShopifyAccessToken
	webhookSecret := cfg.ShopifyWebhookSecret
	if secretManager != nil {
		secretName := secretManager.BuildSecretName("shopify-credentials")
		if secret, err := secretManager.GetSecret(context.Background(), secretName); err == nil {
			if creds, err := secretManager.GetShopifyCredentials(secret); err == nil {
				if creds.Store != "" {
					shopDomain = creds.Store
				}
				if creds.AccessToken != "" {
					accessToken = creds.AccessToken
				}
			}
			if secret.WebhookSecret != "" {
				webhookSecret = secret.WebhookSecret
			}
		}
	}

	// Initialize repositories
	catalogRepo := repository.NewCatalogRepository(db)
	shadowRepo := repository.NewShadowRepository(db)
	syncRepo, err := repository.NewSyncRepository(db)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("Failed to initialize sync repository")
	}
	reviewRepo := repository.NewReviewRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	// Initialize platform client and the single mutation choke point
	shopifyClient := shopify.NewClient(shopDomain, accessToken, webhookSecret, cfg.ShopifyAPIVersion)
	auditService := services.NewAuditService(syncRepo, logger)
	mutationClient := clients.NewMutationClient(shopifyClient, logger,
		clients.WithRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		clients.WithRetryConfig(&clients.RetryConfig{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			BackoffFactor:  2.0,
			Jitter:         0.1,
		}),
		clients.WithBulkChunkSize(cfg.BulkChunkSize),
		clients.WithAuditLogger(auditService),
	)

	// Initialize services
	conflictService := services.NewConflictService(cfg.PriceReviewPercent, logger)
	mediaService := services.NewMediaService(mutationClient, catalogRepo,
		cfg.MediaPollInterval, cfg.MediaPollMaxAttempts, cfg.MediaMaxBytes, logger)
	webhookService := services.NewWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo, logger)
	feedFetcher := feed.NewFetcher(cfg.FeedURL, cfg.FeedAuthToken)
	orchestrator := services.NewSyncOrchestrator(
		services.OrchestratorConfig{
			RunBudget:           cfg.RunBudget,
			FailureAbortPercent: cfg.FailureAbortPercent,
			FailureAbortMinOps:  cfg.FailureAbortMinOps,
			LocationID:          cfg.ShopifyLocationID,
		},
		feedFetcher,
		shopifyClient,
		mutationClient,
		conflictService,
		mediaService,
		auditService,
		services.NewLogNotifier(logger),
		shadowRepo,
		catalogRepo,
		syncRepo,
		reviewRepo,
		logger,
	)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	syncHandler := handlers.NewSyncHandler(orchestrator, syncRepo)
	reviewHandler := handlers.NewReviewHandler(reviewRepo)
	mediaHandler := handlers.NewMediaHandler(mediaService)
	webhookHandler := handlers.NewWebhookHandler(webhookService, shopifyClient)

	// Setup router
	router := setupRouter(cfg, healthHandler, syncHandler, reviewHandler, mediaHandler, webhookHandler)

	// Start server
	log.Printf("Catalog Sync Service starting on port %s (env: %s)", cfg.Port, cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	syncHandler *handlers.SyncHandler,
	reviewHandler *handlers.ReviewHandler,
	mediaHandler *handlers.MediaHandler,
	webhookHandler *handlers.WebhookHandler,
) *gin.Engine {
	router := gin.Default()

	// Security headers middleware
	router.Use(middleware.SecurityHeaders())

	// CORS middleware
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}
	router.Use(middleware.CORS(origins))

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Webhooks are signed by the platform, not CORS-gated
	router.POST("/webhooks/shopify", webhookHandler.HandleShopifyWebhook)

	v1 := router.Group("/api/v1")
	{
		// Sync Runs
		sync := v1.Group("/sync")
		{
			sync.POST("/runs", syncHandler.StartRun)
			sync.GET("/runs", syncHandler.ListRuns)
			sync.GET("/runs/:id", syncHandler.GetRun)
			sync.GET("/runs/:id/logs", syncHandler.GetRunLogs)
		}

		// Conflict Review Queue
		review := v1.Group("/review")
		{
			review.GET("/conflicts", reviewHandler.ListConflicts)
			review.GET("/conflicts/:id", reviewHandler.GetConflict)
			review.POST("/conflicts/:id/resolve", reviewHandler.ResolveConflict)
		}

		// Media Reconciliation
		media := v1.Group("/media")
		{
			media.POST("/reconcile", mediaHandler.ReconcilePending)
		}

		// Webhook Replay
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/reprocess", webhookHandler.ReprocessPending)
		}
	}

	return router
}
