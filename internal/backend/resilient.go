package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientClient wraps a Client with retry, circuit breaking and client-side
// rate limiting from fortify.
type ResilientClient struct {
	client         Client
	circuitBreaker circuitbreaker.CircuitBreaker[any]
	retrier        retry.Retry[any]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// ResilientConfig holds configuration for the resilience wrapper.
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableRateLimit      bool

	// RatePerSecond for rate limiting (default: 10)
	RatePerSecond int

	Logger *slog.Logger
}

// DefaultResilientConfig returns sensible defaults for backend calls.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableRateLimit:      true,
		RatePerSecond:        10,
	}
}

// NewResilientClient wraps a client with resilience patterns.
func NewResilientClient(client Client, cfg ResilientConfig) *ResilientClient {
	rc := &ResilientClient{
		client: client,
		logger: cfg.Logger,
	}

	if cfg.EnableCircuitBreaker {
		rc.circuitBreaker = circuitbreaker.New[any](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				if rc.logger != nil {
					rc.logger.Warn("backend circuit breaker state change",
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	if cfg.EnableRetry {
		rc.retrier = retry.New[any](retry.Config{
			MaxAttempts:   3,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryableError,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 10
		}
		rc.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 2,
			Interval: time.Second,
		})
	}

	return rc
}

func (c *ResilientClient) DifficultyState(ctx context.Context, sessionID string) (*DifficultyStatePayload, error) {
	result, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return c.client.DifficultyState(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*DifficultyStatePayload), nil
}

func (c *ResilientClient) RecordDifficulty(ctx context.Context, sessionID string, req RecordDifficultyRequest) error {
	_, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return nil, c.client.RecordDifficulty(ctx, sessionID, req)
	})
	return err
}

func (c *ResilientClient) CreatePractice(ctx context.Context, sessionID string) (*PracticeCreationResponse, error) {
	// Creation is not idempotent on the backend side, so it bypasses retry:
	// only the circuit breaker and rate limiter apply.
	if c.rateLimit != nil && !c.rateLimit.Allow(ctx, "backend") {
		return nil, fmt.Errorf("backend rate limit exceeded")
	}
	op := func(ctx context.Context) (any, error) {
		return c.client.CreatePractice(ctx, sessionID)
	}
	var result any
	var err error
	if c.circuitBreaker != nil {
		result, err = c.circuitBreaker.Execute(ctx, op)
	} else {
		result, err = op(ctx)
	}
	if err != nil {
		return nil, err
	}
	return result.(*PracticeCreationResponse), nil
}

func (c *ResilientClient) Session(ctx context.Context, sessionID string) (*SessionPayload, error) {
	result, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return c.client.Session(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SessionPayload), nil
}

func (c *ResilientClient) execute(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	if c.rateLimit != nil && !c.rateLimit.Allow(ctx, "backend") {
		return nil, fmt.Errorf("backend rate limit exceeded")
	}

	if c.circuitBreaker != nil && c.retrier != nil {
		return c.circuitBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return c.retrier.Do(ctx, op)
		})
	}
	if c.circuitBreaker != nil {
		return c.circuitBreaker.Execute(ctx, op)
	}
	if c.retrier != nil {
		return c.retrier.Do(ctx, op)
	}
	return op(ctx)
}

// Close releases resources held by the wrapper.
func (c *ResilientClient) Close() error {
	if c.rateLimit != nil {
		return c.rateLimit.Close()
	}
	return nil
}

// isRetryableError reports whether a backend failure is worth retrying.
// Not-found is terminal; 429 and 5xx are transient.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Transport-level failures (dial, reset, timeout) arrive unwrapped.
	return true
}
