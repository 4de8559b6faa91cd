package clients

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	BackoffFactor  float64       // Multiplier for exponential backoff
	Jitter         float64       // Random jitter factor (0-1)
}

// DefaultRetryConfig returns production-ready retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     60 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}
}

// RetryResult contains the result of a retry operation
type RetryResult struct {
	Attempts      int
	LastError     error
	TotalDuration time.Duration
	RetryAfter    time.Duration // From Retry-After header if present
}

// Retrier handles retry logic with exponential backoff
type Retrier struct {
	config *RetryConfig
}

// NewRetrier creates a new retrier with the given config
func NewRetrier(config *RetryConfig) *Retrier {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &Retrier{config: config}
}

// CalculateBackoff calculates the backoff duration for a given attempt
func (r *Retrier) CalculateBackoff(attempt int, retryAfter time.Duration) time.Duration {
	// Use Retry-After header if provided
	if retryAfter > 0 {
		return retryAfter
	}

	// Calculate exponential backoff
	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.BackoffFactor, float64(attempt))

	// Add jitter
	if r.config.Jitter > 0 {
		jitter := backoff * r.config.Jitter * (rand.Float64()*2 - 1)
		backoff += jitter
	}

	// Cap at max backoff
	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// ParseRetryAfter extracts the Retry-After duration from an HTTP response
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	// Try parsing as seconds
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}

	return 0
}

// RetryableFunc performs one attempt and returns the classified error, plus
// any server-advertised wait duration.
type RetryableFunc func(ctx context.Context) (retryAfter time.Duration, err error)

// Do executes a function with retry logic. Only errors classified as
// retryable are attempted again; validation and permanent failures return
// immediately.
func (r *Retrier) Do(ctx context.Context, operation string, fn RetryableFunc) *RetryResult {
	result := &RetryResult{}
	startTime := time.Now()

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		retryAfter, err := fn(ctx)
		result.LastError = err
		result.RetryAfter = retryAfter

		// Success
		if err == nil {
			result.TotalDuration = time.Since(startTime)
			return result
		}

		// Check if we should retry
		if !IsRetryable(err) {
			result.TotalDuration = time.Since(startTime)
			return result
		}

		// Check if we've exhausted retries
		if attempt >= r.config.MaxRetries {
			result.LastError = fmt.Errorf("max retries exceeded for %s: %w", operation, err)
			result.TotalDuration = time.Since(startTime)
			return result
		}

		// Calculate backoff
		backoff := r.CalculateBackoff(attempt, retryAfter)

		// Wait with context
		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-time.After(backoff):
			// Continue to next attempt
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// CircuitBreaker implements a simple circuit breaker pattern
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     int
	successes    int
	state        CircuitState
	lastFailure  time.Time
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        CircuitClosed,
	}
}

// Allow checks if a request should be allowed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.successes = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return cb.successes < cb.halfOpenMax
	}
	return false
}

// RecordSuccess records a successful operation
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.state = CircuitClosed
			cb.failures = 0
		}
	} else {
		cb.failures = 0
	}
}

// RecordFailure records a failed operation
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.failures >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
}
