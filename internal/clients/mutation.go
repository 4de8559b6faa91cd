package clients

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"catalog-sync-service/internal/models"
)

const defaultBulkChunkSize = 250

// MutationClient is the single choke point for catalog writes against the
// commerce platform. Every mutation passes through the shared token bucket,
// the retrier and the circuit breaker, so burst traffic from concurrent
// callers still respects the platform budget.
type MutationClient struct {
	transport Transport
	limiter   *rate.Limiter
	retrier   *Retrier
	breaker   *CircuitBreaker
	audit     AuditLogger
	chunkSize int
	logger    *logrus.Logger
}

// MutationClientOption configures a MutationClient.
type MutationClientOption func(*MutationClient)

// WithRateLimit overrides the default request budget.
func WithRateLimit(perSecond float64, burst int) MutationClientOption {
	return func(c *MutationClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg *RetryConfig) MutationClientOption {
	return func(c *MutationClient) {
		c.retrier = NewRetrier(cfg)
	}
}

// WithAuditLogger attaches a terminal-outcome audit sink.
func WithAuditLogger(audit AuditLogger) MutationClientOption {
	return func(c *MutationClient) {
		c.audit = audit
	}
}

// WithBulkChunkSize overrides how many operations one bulk chunk carries.
func WithBulkChunkSize(size int) MutationClientOption {
	return func(c *MutationClient) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// NewMutationClient creates a mutation client over the given transport.
func NewMutationClient(transport Transport, logger *logrus.Logger, opts ...MutationClientOption) *MutationClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &MutationClient{
		transport: transport,
		// Shopify allows 2 requests/second for standard API access
		limiter:   rate.NewLimiter(rate.Limit(2), 1),
		retrier:   NewRetrier(nil),
		breaker:   NewCircuitBreaker(10, 30*time.Second),
		chunkSize: defaultBulkChunkSize,
		logger:    logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Execute runs one operation to a terminal outcome. Rate-limited failures
// and transient failures are retried with backoff; every retry attempt
// passes through the token bucket again. Validation and permanent failures
// return immediately.
func (c *MutationClient) Execute(ctx context.Context, op *Operation) *OperationResult {
	result := &OperationResult{Op: op}

	if !c.breaker.Allow() {
		result.Err = &APIError{
			Kind:    ErrorKindTransient,
			Message: "circuit breaker open for platform requests",
		}
		c.logTerminal(ctx, result)
		return result
	}

	var resp *Response
	retryResult := c.retrier.Do(ctx, op.Name, func(ctx context.Context) (time.Duration, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}

		r, err := c.transport.Execute(ctx, op)
		resp = r
		if err != nil {
			if r != nil {
				return r.RetryAfter, err
			}
			return 0, err
		}
		return 0, nil
	})

	result.Response = resp
	result.Attempts = retryResult.Attempts
	result.Err = retryResult.LastError

	if result.Err != nil {
		c.breaker.RecordFailure()
		c.logger.WithFields(logrus.Fields{
			"operation": op.Name,
			"item_key":  op.ItemKey,
			"attempts":  result.Attempts,
			"error":     result.Err.Error(),
		}).Warn("Platform operation failed")
	} else {
		c.breaker.RecordSuccess()
	}

	c.logTerminal(ctx, result)
	return result
}

// ExecuteBulk runs a batch of operations in chunks. Operations within a
// chunk run sequentially through the shared limiter and each reaches its own
// terminal outcome; a failure never discards sibling results.
func (c *MutationClient) ExecuteBulk(ctx context.Context, ops []*Operation) *BulkResult {
	bulk := &BulkResult{
		Results: make([]OperationResult, 0, len(ops)),
	}

	for start := 0; start < len(ops); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(ops) {
			end = len(ops)
		}

		for _, op := range ops[start:end] {
			if ctx.Err() != nil {
				bulk.Results = append(bulk.Results, OperationResult{Op: op, Err: ctx.Err()})
				bulk.Failed++
				continue
			}

			result := c.Execute(ctx, op)
			bulk.Results = append(bulk.Results, *result)
			if result.Succeeded() {
				bulk.Succeeded++
			} else {
				bulk.Failed++
			}
		}
	}

	return bulk
}

// logTerminal records the terminal outcome with the audit sink. Read-only
// operations carry no kind and are not audited.
func (c *MutationClient) logTerminal(ctx context.Context, result *OperationResult) {
	if c.audit == nil || result.Op.Kind == "" {
		return
	}

	outcome := models.OutcomeSuccess
	errMessage := ""
	if result.Err != nil {
		outcome = models.OutcomeFailed
		errMessage = result.Err.Error()
	}

	c.audit.LogOperation(ctx, result.Op, outcome, result.Attempts, errMessage)
}
