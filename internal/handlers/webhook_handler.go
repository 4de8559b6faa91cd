package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"catalog-sync-service/internal/clients/shopify"
	"catalog-sync-service/internal/services"
)

// WebhookHandler handles platform webhook endpoints
type WebhookHandler struct {
	service  *services.WebhookService
	verifier *shopify.Client
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service *services.WebhookService, verifier *shopify.Client) *WebhookHandler {
	return &WebhookHandler{service: service, verifier: verifier}
}

// HandleShopifyWebhook receives one Shopify delivery. Duplicates are
// acknowledged with 200 so the platform stops redelivering them.
func (h *WebhookHandler) HandleShopifyWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if h.verifier != nil && h.verifier.HasWebhookSecret() {
		signature := c.GetHeader("X-Shopify-Hmac-Sha256")
		if err := h.verifier.VerifyWebhook(payload, signature); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
			return
		}
	}

	topic := c.GetHeader("X-Shopify-Topic")
	eventID := c.GetHeader("X-Shopify-Webhook-Id")
	if topic == "" || eventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing webhook headers"})
		return
	}

	applied, err := h.service.HandleEvent(c.Request.Context(), topic, eventID, payload)
	if err != nil {
		// The event is stored with its error; acknowledging stops redelivery
		// of a payload that will never process successfully.
		c.JSON(http.StatusOK, gin.H{"received": true, "processed": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "processed": applied})
}

// ReprocessPending replays stored events that never processed successfully
func (h *WebhookHandler) ReprocessPending(c *gin.Context) {
	processed, err := h.service.ProcessPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"processed": processed})
}
