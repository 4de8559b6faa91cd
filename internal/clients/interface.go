package clients

import (
	"context"
	"net/http"
	"time"

	"catalog-sync-service/internal/models"
)

// Operation is a single platform mutation or query built by a platform
// package and executed through the mutation client. A non-empty Query selects
// the GraphQL transport; otherwise Method and Path describe a REST call.
type Operation struct {
	Name    string
	Kind    models.OperationKind
	ItemKey string

	// REST
	Method string
	Path   string
	Body   interface{}

	// GraphQL
	Query     string
	Variables map[string]interface{}
}

// Response is the raw platform reply for one operation.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	RetryAfter time.Duration
}

// Transport executes a single operation against the commerce platform and
// classifies failures. Implementations do not retry or rate limit; that is
// the mutation client's job.
type Transport interface {
	Execute(ctx context.Context, op *Operation) (*Response, error)
}

// ListOptions controls paginated platform reads.
type ListOptions struct {
	Limit    int
	PageInfo string // opaque cursor from the previous page
}

// Page is one page of platform products plus the cursor for the next.
type Page struct {
	Products     []*models.ProductState
	NextPageInfo string
}

// PlatformReader fetches the current platform catalog view.
type PlatformReader interface {
	ListProducts(ctx context.Context, opts ListOptions) (*Page, error)
	GetProduct(ctx context.Context, externalID string) (*models.ProductState, error)
}

// OperationResult is the terminal outcome of one executed operation.
type OperationResult struct {
	Op       *Operation
	Response *Response
	Attempts int
	Err      error
}

// Succeeded reports whether the operation reached a terminal success.
func (r *OperationResult) Succeeded() bool {
	return r.Err == nil
}

// BulkResult aggregates per-operation outcomes of a bulk execution. One
// failed operation never discards its siblings' results.
type BulkResult struct {
	Results   []OperationResult
	Succeeded int
	Failed    int
}

// AuditLogger receives the terminal outcome of every mutation, successes
// included.
type AuditLogger interface {
	LogOperation(ctx context.Context, op *Operation, outcome models.Outcome, attempts int, errMessage string)
}
