package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/models"
)

// StagedParameter is one storage-provider form field. Order matters for the
// multipart upload and must be preserved exactly as returned.
type StagedParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StagedTarget is the pre-signed upload destination returned by
// stagedUploadsCreate.
type StagedTarget struct {
	URL         string            `json:"url"`
	ResourceURL string            `json:"resourceUrl"`
	Parameters  []StagedParameter `json:"parameters"`
}

// MediaStatus values reported by the platform for processing media.
const (
	MediaStatusUploaded   = "UPLOADED"
	MediaStatusProcessing = "PROCESSING"
	MediaStatusReady      = "READY"
	MediaStatusFailed     = "FAILED"
)

const stagedUploadsCreateMutation = `
mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters {
        name
        value
      }
    }
    userErrors {
      field
      message
    }
  }
}`

const productCreateMediaMutation = `
mutation productCreateMedia($productId: ID!, $media: [CreateMediaInput!]!) {
  productCreateMedia(productId: $productId, media: $media) {
    media {
      ... on MediaImage {
        id
        status
        image {
          url
        }
      }
    }
    mediaUserErrors {
      field
      message
    }
  }
}`

const mediaStatusQuery = `
query mediaStatus($id: ID!) {
  node(id: $id) {
    ... on MediaImage {
      id
      status
      image {
        url
      }
    }
  }
}`

// ProductGID converts a REST product ID to its GraphQL global ID.
func ProductGID(externalID string) string {
	if strings.HasPrefix(externalID, "gid://") {
		return externalID
	}
	return "gid://shopify/Product/" + externalID
}

// BuildStagedUploadsCreate builds the mutation that reserves a pre-signed
// storage destination for one image file.
func BuildStagedUploadsCreate(itemKey, filename, mimeType string, fileSize int64) *clients.Operation {
	return &clients.Operation{
		Name:    "staged_uploads_create",
		Kind:    models.OpUpdate,
		ItemKey: itemKey,
		Query:   stagedUploadsCreateMutation,
		Variables: map[string]interface{}{
			"input": []map[string]interface{}{
				{
					"filename":   filename,
					"mimeType":   mimeType,
					"resource":   "IMAGE",
					"fileSize":   strconv.FormatInt(fileSize, 10),
					"httpMethod": "POST",
				},
			},
		},
	}
}

// ParseStagedUploadsCreate extracts the staged target from the mutation
// reply. User errors are validation failures and are never retried.
func ParseStagedUploadsCreate(resp *clients.Response) (*StagedTarget, error) {
	var envelope struct {
		Data struct {
			StagedUploadsCreate struct {
				StagedTargets []StagedTarget `json:"stagedTargets"`
				UserErrors    []graphqlError `json:"userErrors"`
			} `json:"stagedUploadsCreate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse staged upload response: %w", err)
	}

	payload := envelope.Data.StagedUploadsCreate
	if err := userErrorsToAPIError(payload.UserErrors); err != nil {
		return nil, err
	}
	if len(payload.StagedTargets) == 0 {
		return nil, &clients.APIError{
			Kind:    clients.ErrorKindPermanent,
			Message: "staged upload returned no targets",
		}
	}

	return &payload.StagedTargets[0], nil
}

// UploadToTarget pushes the file bytes to the pre-signed storage
// destination. Google Cloud Storage targets take a bare PUT with no
// Content-Type set by us; every other provider takes a multipart POST with
// the returned parameters written in order and the file field last.
// Content-Length is left to the HTTP client in both cases.
func UploadToTarget(ctx context.Context, httpClient *http.Client, target *StagedTarget, filename string, data []byte) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsed, err := url.Parse(target.URL)
	if err != nil {
		return &clients.APIError{
			Kind:    clients.ErrorKindPermanent,
			Message: fmt.Sprintf("invalid staged target url: %v", err),
			Err:     err,
		}
	}

	var req *http.Request
	if strings.Contains(parsed.Host, "storage.googleapis.com") {
		req, err = http.NewRequestWithContext(ctx, http.MethodPut, target.URL, bytes.NewReader(data))
		if err != nil {
			return clients.NewTransientError(err)
		}
	} else {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		for _, param := range target.Parameters {
			if err := writer.WriteField(param.Name, param.Value); err != nil {
				return clients.NewTransientError(err)
			}
		}
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return clients.NewTransientError(err)
		}
		if _, err := part.Write(data); err != nil {
			return clients.NewTransientError(err)
		}
		if err := writer.Close(); err != nil {
			return clients.NewTransientError(err)
		}

		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &buf)
		if err != nil {
			return clients.NewTransientError(err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return clients.NewTransientError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &clients.APIError{
			Kind:       clients.ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("staged upload rejected: %s", strings.TrimSpace(string(body))),
		}
	}

	return nil
}

// BuildProductCreateMedia builds the mutation that attaches an uploaded
// resource to a product as a media record.
func BuildProductCreateMedia(itemKey, productExternalID, resourceURL, altText string) *clients.Operation {
	media := map[string]interface{}{
		"originalSource":   resourceURL,
		"mediaContentType": "IMAGE",
	}
	if altText != "" {
		media["alt"] = altText
	}

	return &clients.Operation{
		Name:    "product_create_media",
		Kind:    models.OpUpdate,
		ItemKey: itemKey,
		Query:   productCreateMediaMutation,
		Variables: map[string]interface{}{
			"productId": ProductGID(productExternalID),
			"media":     []map[string]interface{}{media},
		},
	}
}

// MediaRecord is the platform's view of one attached media asset.
type MediaRecord struct {
	ID     string
	Status string
	URL    string
}

// ParseProductCreateMedia extracts the created media record.
func ParseProductCreateMedia(resp *clients.Response) (*MediaRecord, error) {
	var envelope struct {
		Data struct {
			ProductCreateMedia struct {
				Media []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Image  *struct {
						URL string `json:"url"`
					} `json:"image"`
				} `json:"media"`
				MediaUserErrors []graphqlError `json:"mediaUserErrors"`
			} `json:"productCreateMedia"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse create media response: %w", err)
	}

	payload := envelope.Data.ProductCreateMedia
	if err := userErrorsToAPIError(payload.MediaUserErrors); err != nil {
		return nil, err
	}
	if len(payload.Media) == 0 {
		return nil, &clients.APIError{
			Kind:    clients.ErrorKindPermanent,
			Message: "create media returned no records",
		}
	}

	record := &MediaRecord{
		ID:     payload.Media[0].ID,
		Status: payload.Media[0].Status,
	}
	if payload.Media[0].Image != nil {
		record.URL = payload.Media[0].Image.URL
	}
	return record, nil
}

// BuildMediaStatusQuery builds the poll query for one media record.
func BuildMediaStatusQuery(mediaID string) *clients.Operation {
	return &clients.Operation{
		Name:  "media_status",
		Query: mediaStatusQuery,
		Variables: map[string]interface{}{
			"id": mediaID,
		},
	}
}

// ParseMediaStatus extracts the processing status and final URL, if any.
// A READY status with a null URL is possible while the CDN record settles
// and must be treated as still pending by callers.
func ParseMediaStatus(resp *clients.Response) (*MediaRecord, error) {
	var envelope struct {
		Data struct {
			Node *struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Image  *struct {
					URL string `json:"url"`
				} `json:"image"`
			} `json:"node"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse media status response: %w", err)
	}

	if envelope.Data.Node == nil {
		return nil, &clients.APIError{
			Kind:    clients.ErrorKindPermanent,
			Message: "media record not found",
		}
	}

	record := &MediaRecord{
		ID:     envelope.Data.Node.ID,
		Status: envelope.Data.Node.Status,
	}
	if envelope.Data.Node.Image != nil {
		record.URL = envelope.Data.Node.Image.URL
	}
	return record, nil
}

type graphqlError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

func userErrorsToAPIError(errs []graphqlError) error {
	if len(errs) == 0 {
		return nil
	}

	fields := make(map[string]string, len(errs))
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.Join(e.Field, ".")
		fields[field] = e.Message
		parts = append(parts, field+": "+e.Message)
	}

	return &clients.APIError{
		Kind:    clients.ErrorKindValidation,
		Message: strings.Join(parts, ", "),
		Fields:  fields,
	}
}
