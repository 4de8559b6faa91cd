package shopify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/models"
)

const defaultAPIVersion = "2024-01"

// Client implements the platform transport for the Shopify Admin API. It
// executes single requests and classifies failures; pacing and retries live
// in the mutation client.
type Client struct {
	httpClient    *http.Client
	storeURL      string
	accessToken   string
	webhookSecret string
	apiVersion    string
}

// NewClient creates a new Shopify Admin API client
func NewClient(shopDomain, accessToken, webhookSecret, apiVersion string) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	storeURL := shopDomain
	if !strings.HasPrefix(storeURL, "http") {
		if !strings.Contains(storeURL, ".") {
			storeURL += ".myshopify.com"
		}
		storeURL = "https://" + storeURL
	}

	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		storeURL:      storeURL,
		accessToken:   accessToken,
		webhookSecret: webhookSecret,
		apiVersion:    apiVersion,
	}
}

// Execute performs one operation against the Admin API and classifies the
// outcome.
func (c *Client) Execute(ctx context.Context, op *clients.Operation) (*clients.Response, error) {
	if op.Query != "" {
		return c.doGraphQL(ctx, op)
	}
	return c.doREST(ctx, op)
}

func (c *Client) doREST(ctx context.Context, op *clients.Operation) (*clients.Response, error) {
	fullURL := fmt.Sprintf("%s/admin/api/%s%s", c.storeURL, c.apiVersion, op.Path)

	var reqBody io.Reader
	if op.Body != nil {
		jsonBody, err := json.Marshal(op.Body)
		if err != nil {
			return nil, &clients.APIError{
				Kind:    clients.ErrorKindValidation,
				Message: fmt.Sprintf("failed to encode request body: %v", err),
				Err:     err,
			}
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, fullURL, reqBody)
	if err != nil {
		return nil, clients.NewTransientError(err)
	}

	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	return c.send(req)
}

func (c *Client) doGraphQL(ctx context.Context, op *clients.Operation) (*clients.Response, error) {
	fullURL := fmt.Sprintf("%s/admin/api/%s/graphql.json", c.storeURL, c.apiVersion)

	payload := map[string]interface{}{
		"query": op.Query,
	}
	if op.Variables != nil {
		payload["variables"] = op.Variables
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &clients.APIError{
			Kind:    clients.ErrorKindValidation,
			Message: fmt.Sprintf("failed to encode graphql request: %v", err),
			Err:     err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, clients.NewTransientError(err)
	}

	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return resp, err
	}

	// GraphQL errors arrive with status 200. Throttling is reported through
	// the THROTTLED error code rather than a 429.
	var envelope struct {
		Errors []struct {
			Message    string `json:"message"`
			Extensions struct {
				Code string `json:"code"`
			} `json:"extensions"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err == nil && len(envelope.Errors) > 0 {
		kind := clients.ErrorKindPermanent
		for _, e := range envelope.Errors {
			if strings.EqualFold(e.Extensions.Code, "THROTTLED") {
				kind = clients.ErrorKindRateLimited
				break
			}
		}
		return resp, &clients.APIError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    envelope.Errors[0].Message,
		}
	}

	return resp, nil
}

func (c *Client) send(req *http.Request) (*clients.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clients.NewTransientError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, clients.NewTransientError(err)
	}

	result := &clients.Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
		RetryAfter: clients.ParseRetryAfter(resp),
	}

	if resp.StatusCode >= 400 {
		return result, classifyResponse(result)
	}

	return result, nil
}

// classifyResponse builds the typed error for a failed HTTP response.
func classifyResponse(resp *clients.Response) *clients.APIError {
	apiErr := &clients.APIError{
		Kind:       clients.ClassifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var errBody struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body, &errBody); err == nil && len(errBody.Errors) > 0 {
		// errors is either a string or a field->messages map
		var msg string
		if json.Unmarshal(errBody.Errors, &msg) == nil {
			apiErr.Message = msg
		} else {
			var fields map[string][]string
			if json.Unmarshal(errBody.Errors, &fields) == nil {
				apiErr.Fields = make(map[string]string, len(fields))
				parts := make([]string, 0, len(fields))
				for field, messages := range fields {
					joined := strings.Join(messages, "; ")
					apiErr.Fields[field] = joined
					parts = append(parts, field+": "+joined)
				}
				apiErr.Message = strings.Join(parts, ", ")
			}
		}
	}

	return apiErr
}

// VerifyWebhook verifies a Shopify webhook HMAC signature
func (c *Client) VerifyWebhook(payload []byte, signature string) error {
	if c.webhookSecret == "" {
		return fmt.Errorf("no webhook secret configured")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expectedSignature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return fmt.Errorf("invalid webhook signature")
	}

	return nil
}

// HasWebhookSecret reports whether signature verification is configured.
func (c *Client) HasWebhookSecret() bool {
	return c.webhookSecret != ""
}

// ListProducts fetches one page of products from the Admin API.
func (c *Client) ListProducts(ctx context.Context, opts clients.ListOptions) (*clients.Page, error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	} else {
		params.Set("limit", "50")
	}
	if opts.PageInfo != "" {
		params.Set("page_info", opts.PageInfo)
	}

	resp, err := c.Execute(ctx, &clients.Operation{
		Name:   "products_list",
		Method: http.MethodGet,
		Path:   "/products.json?" + params.Encode(),
	})
	if err != nil {
		return nil, err
	}

	var response struct {
		Products []shopifyProduct `json:"products"`
	}
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse products response: %w", err)
	}

	page := &clients.Page{
		Products: make([]*models.ProductState, 0, len(response.Products)),
	}
	for _, p := range response.Products {
		page.Products = append(page.Products, convertProduct(p))
	}

	if linkHeader := resp.Headers.Get("Link"); linkHeader != "" {
		if cursor, hasMore := parsePagination(linkHeader); hasMore {
			page.NextPageInfo = cursor
		}
	}

	return page, nil
}

// GetProduct fetches a single product by ID
func (c *Client) GetProduct(ctx context.Context, externalID string) (*models.ProductState, error) {
	resp, err := c.Execute(ctx, &clients.Operation{
		Name:   "product_get",
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/products/%s.json", externalID),
	})
	if err != nil {
		return nil, err
	}

	var response struct {
		Product shopifyProduct `json:"product"`
	}
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse product response: %w", err)
	}

	return convertProduct(response.Product), nil
}

// Shopify data structures
type shopifyProduct struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	BodyHTML  string           `json:"body_html"`
	Vendor    string           `json:"vendor"`
	Type      string           `json:"product_type"`
	Status    string           `json:"status"`
	Tags      string           `json:"tags"`
	Variants  []shopifyVariant `json:"variants"`
	Images    []shopifyImage   `json:"images"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type shopifyVariant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	InventoryQuantity int    `json:"inventory_quantity"`
	InventoryItemID   int64  `json:"inventory_item_id"`
	Position          int    `json:"position"`
}

type shopifyImage struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Src       string `json:"src"`
	Alt       string `json:"alt"`
	Position  int    `json:"position"`
}

// convertProduct maps a Shopify product onto the neutral snapshot shape.
func convertProduct(p shopifyProduct) *models.ProductState {
	state := &models.ProductState{
		ExternalID:  strconv.FormatInt(p.ID, 10),
		Title:       p.Title,
		Description: p.BodyHTML,
		Vendor:      p.Vendor,
		Category:    p.Type,
		Status:      strings.ToUpper(p.Status),
		UpdatedAt:   p.UpdatedAt,
	}

	if p.Tags != "" {
		state.Tags = strings.Split(p.Tags, ", ")
	}

	for _, v := range p.Variants {
		price, err := decimal.NewFromString(v.Price)
		if err != nil {
			price = decimal.Zero
		}
		variant := models.VariantState{
			SKU:               v.SKU,
			Title:             v.Title,
			Price:             price,
			InventoryQuantity: v.InventoryQuantity,
			ExternalID:        strconv.FormatInt(v.ID, 10),
		}
		if v.InventoryItemID != 0 {
			variant.InventoryItemID = strconv.FormatInt(v.InventoryItemID, 10)
		}
		state.Variants = append(state.Variants, variant)
	}

	for _, img := range p.Images {
		state.Images = append(state.Images, models.ImageState{
			URL:      img.Src,
			AltText:  img.Alt,
			Position: img.Position,
		})
	}

	return state
}

func parsePagination(linkHeader string) (string, bool) {
	// Parse Link header for cursor pagination
	// Format: <url>; rel="next", <url>; rel="previous"
	parts := strings.Split(linkHeader, ",")
	for _, part := range parts {
		if strings.Contains(part, `rel="next"`) {
			urlPart := strings.TrimSpace(strings.Split(part, ";")[0])
			urlPart = strings.Trim(urlPart, "<>")
			if parsedURL, err := url.Parse(urlPart); err == nil {
				return parsedURL.Query().Get("page_info"), true
			}
		}
	}
	return "", false
}
