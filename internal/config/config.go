package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"catalog-sync-service/internal/secrets"
)

// Config holds all configuration for the catalog sync service
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// GCP
	GCPProjectID string

	// Shopify
	ShopifyShopDomain    string
	ShopifyAccessToken   string
	ShopifyWebhookSecret string
	ShopifyAPIVersion    string
	ShopifyLocationID    string

	// Feed
	FeedURL       string
	FeedAuthToken string

	// Mutation Client
	RateLimitPerSecond float64
	RateLimitBurst     int
	BulkChunkSize      int
	MaxRetries         int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration

	// Media Upload
	MediaPollInterval    time.Duration
	MediaPollMaxAttempts int
	MediaMaxBytes        int64

	// Sync Run
	RunBudget           time.Duration
	FailureAbortPercent float64
	FailureAbortMinOps  int

	// Conflict Detection
	PriceReviewPercent float64
}

// Load loads configuration from environment variables
func Load() *Config {
	// Build DATABASE_URL from components using GCP Secret Manager for password
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := secrets.GetDBPassword()
		dbName := getEnv("DB_NAME", "catalog_sync")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	config := &Config{
		Port:        getEnv("PORT", "8105"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: databaseURL,

		// GCP
		GCPProjectID: getEnv("GCP_PROJECT_ID", ""),

		// Shopify
		ShopifyShopDomain:    getEnv("SHOPIFY_SHOP_DOMAIN", ""),
		ShopifyAccessToken:   getEnv("SHOPIFY_ACCESS_TOKEN", ""),
		ShopifyWebhookSecret: getEnv("SHOPIFY_WEBHOOK_SECRET", ""),
		ShopifyAPIVersion:    getEnv("SHOPIFY_API_VERSION", "2024-01"),
		ShopifyLocationID:    getEnv("SHOPIFY_LOCATION_ID", ""),

		// Feed
		FeedURL:       getEnv("FEED_URL", ""),
		FeedAuthToken: getEnv("FEED_AUTH_TOKEN", ""),

		// Mutation Client
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 2.0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 1),
		BulkChunkSize:      getEnvAsInt("BULK_CHUNK_SIZE", 250),
		MaxRetries:         getEnvAsInt("MAX_RETRIES", 5),
		InitialBackoff:     getEnvAsDuration("INITIAL_BACKOFF", 1*time.Second),
		MaxBackoff:         getEnvAsDuration("MAX_BACKOFF", 60*time.Second),

		// Media Upload
		MediaPollInterval:    getEnvAsDuration("MEDIA_POLL_INTERVAL", 2*time.Second),
		MediaPollMaxAttempts: getEnvAsInt("MEDIA_POLL_MAX_ATTEMPTS", 15),
		MediaMaxBytes:        int64(getEnvAsInt("MEDIA_MAX_BYTES", 20*1024*1024)),

		// Sync Run
		RunBudget:           getEnvAsDuration("RUN_BUDGET", 50*time.Minute),
		FailureAbortPercent: getEnvAsFloat("FAILURE_ABORT_PERCENT", 20.0),
		FailureAbortMinOps:  getEnvAsInt("FAILURE_ABORT_MIN_OPS", 20),

		// Conflict Detection
		PriceReviewPercent: getEnvAsFloat("PRICE_REVIEW_PERCENT", 10.0),
	}

	// Validate required fields
	if config.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if config.ShopifyShopDomain == "" {
		log.Println("Warning: SHOPIFY_SHOP_DOMAIN not set, platform sync will be disabled")
	}

	if config.ShopifyWebhookSecret == "" {
		log.Println("Warning: SHOPIFY_WEBHOOK_SECRET not set, webhook signature verification will be skipped")
	}

	return config
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
