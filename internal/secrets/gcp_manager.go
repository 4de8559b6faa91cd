package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// PlatformSecret represents the structure of platform secrets stored in GCP
type PlatformSecret struct {
	Credentials      map[string]interface{} `json:"credentials"`
	WebhookSecret    string                 `json:"webhook_secret,omitempty"`
	AdditionalConfig map[string]interface{} `json:"additional_config,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// ShopifyCredentials represents Shopify Admin API credentials
type ShopifyCredentials struct {
	Store       string `json:"store"`        // Store name (without .myshopify.com)
	AccessToken string `json:"access_token"` // OAuth access token or API password
	APIKey      string `json:"api_key,omitempty"`
	APISecret   string `json:"api_secret,omitempty"`
}

// cacheEntry represents a cached secret with expiration
type cacheEntry struct {
	secret    *PlatformSecret
	expiresAt time.Time
}

// GCPSecretManager manages secrets in Google Cloud Secret Manager
type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	cache     map[string]*cacheEntry
	cacheMu   sync.RWMutex
	cacheTTL  time.Duration
}

// NewGCPSecretManager creates a new GCP Secret Manager client
func NewGCPSecretManager(ctx context.Context, projectID string) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  5 * time.Minute,
	}, nil
}

// Close closes the Secret Manager client
func (sm *GCPSecretManager) Close() error {
	if sm.client != nil {
		return sm.client.Close()
	}
	return nil
}

// BuildSecretName constructs the full resource name for a secret ID
func (sm *GCPSecretManager) BuildSecretName(secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", sm.projectID, sanitizeSecretID(secretID))
}

// GetSecret retrieves a secret from GCP Secret Manager
func (sm *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (*PlatformSecret, error) {
	// Check cache first
	sm.cacheMu.RLock()
	if entry, ok := sm.cache[secretName]; ok && time.Now().Before(entry.expiresAt) {
		sm.cacheMu.RUnlock()
		return entry.secret, nil
	}
	sm.cacheMu.RUnlock()

	// Fetch from GCP
	accessRequest := &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName + "/versions/latest",
	}

	result, err := sm.client.AccessSecretVersion(ctx, accessRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to access secret: %w", err)
	}

	var secret PlatformSecret
	if err := json.Unmarshal(result.Payload.Data, &secret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret: %w", err)
	}

	// Cache the result
	sm.cacheMu.Lock()
	sm.cache[secretName] = &cacheEntry{
		secret:    &secret,
		expiresAt: time.Now().Add(sm.cacheTTL),
	}
	sm.cacheMu.Unlock()

	return &secret, nil
}

// GetShopifyCredentials parses Shopify credentials from a PlatformSecret
func (sm *GCPSecretManager) GetShopifyCredentials(secret *PlatformSecret) (*ShopifyCredentials, error) {
	data, err := json.Marshal(secret.Credentials)
	if err != nil {
		return nil, err
	}

	var creds ShopifyCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// InvalidateCache removes a secret from the cache
func (sm *GCPSecretManager) InvalidateCache(secretName string) {
	sm.cacheMu.Lock()
	delete(sm.cache, secretName)
	sm.cacheMu.Unlock()
}

// GetDBPassword resolves the database password. It prefers the plain
// DB_PASSWORD env var; when unset and a GCP project is configured it reads
// the db-password secret from Secret Manager.
func GetDBPassword() string {
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return password
	}

	projectID := os.Getenv("GCP_PROJECT_ID")
	if projectID == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return ""
	}
	defer client.Close()

	secretID := os.Getenv("DB_PASSWORD_SECRET")
	if secretID == "" {
		secretID = "db-password"
	}

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretID),
	})
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(result.Payload.Data))
}

// sanitizeSecretID removes or replaces invalid characters for GCP secret IDs
// Secret IDs can only contain alphanumeric characters, hyphens, and underscores
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}
